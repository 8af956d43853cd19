package translate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/polychat/chat-platform/internal/model"
	"github.com/polychat/chat-platform/pkg/logger"
	"github.com/polychat/chat-platform/pkg/metrics"
)

const (
	detectSystem = "You identify the language of chat messages. Respond with " +
		"only the ISO 639-1 code of the dominant language, nothing else."

	translateSystem = "You translate chat messages. Preserve tone, emoji and " +
		"formatting. Respond with only the translated text, no commentary."

	documentSystem = "You translate documents. Preserve structure, headings, " +
		"lists and formatting exactly. Respond with only the translated " +
		"document, no commentary."

	shortMaxTokens    = 1024
	documentMaxTokens = 8192
)

// LLMGateway implements Gateway on top of an LLM provider.
type LLMGateway struct {
	provider Provider
	model    string
	timeout  time.Duration
	log      *logger.Logger
}

// NewLLMGateway creates a gateway using the given provider. model may be
// empty to use the provider default.
func NewLLMGateway(provider Provider, model string, timeout time.Duration, log *logger.Logger) *LLMGateway {
	return &LLMGateway{provider: provider, model: model, timeout: timeout, log: log}
}

var _ Gateway = (*LLMGateway)(nil)

// DetectLanguage returns the ISO 639-1 code of text.
func (g *LLMGateway) DetectLanguage(ctx context.Context, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.provider.Complete(ctx, &CompletionRequest{
		Model:     g.model,
		System:    detectSystem,
		Prompt:    text,
		MaxTokens: 8,
	})
	if err != nil {
		metrics.RecordTranslation(g.provider.Name(), "error", time.Since(start).Seconds())
		return "", fmt.Errorf("language detection: %v: %w", err, model.ErrExternal)
	}
	metrics.RecordTranslation(g.provider.Name(), "ok", time.Since(start).Seconds())

	code := strings.ToLower(strings.TrimSpace(resp.Content))
	if len(code) < 2 {
		return "", fmt.Errorf("language detection returned %q: %w", resp.Content, model.ErrExternal)
	}
	return code[:2], nil
}

// Translate converts text into the target language, biased by the target
// country and region when given.
func (g *LLMGateway) Translate(ctx context.Context, req *Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	system := translateSystem
	maxTokens := shortMaxTokens
	if req.Document {
		system = documentSystem
		maxTokens = documentMaxTokens
	}

	start := time.Now()
	resp, err := g.provider.Complete(ctx, &CompletionRequest{
		Model:     g.model,
		System:    system,
		Prompt:    buildPrompt(req),
		MaxTokens: maxTokens,
	})
	if err != nil {
		metrics.RecordTranslation(g.provider.Name(), "error", time.Since(start).Seconds())
		return "", fmt.Errorf("translate to %s: %v: %w", req.TargetLang, err, model.ErrExternal)
	}
	metrics.RecordTranslation(g.provider.Name(), "ok", time.Since(start).Seconds())

	out := strings.TrimSpace(resp.Content)
	if out == "" {
		return "", fmt.Errorf("empty translation to %s: %w", req.TargetLang, model.ErrExternal)
	}
	return out, nil
}

func buildPrompt(req *Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Translate the following from %s to %s.", req.SourceLang, req.TargetLang)
	if req.TargetCountry != "" {
		fmt.Fprintf(&b, " The reader is in %s", req.TargetCountry)
		if req.TargetRegion != "" {
			fmt.Fprintf(&b, " (%s)", req.TargetRegion)
		}
		b.WriteString("; prefer local vocabulary and register.")
	}
	b.WriteString("\n\n")
	b.WriteString(req.Text)
	return b.String()
}
