package translate

import (
	"context"
)

// CompletionRequest is a completion request to an LLM provider.
type CompletionRequest struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// CompletionResponse is a completion response from an LLM provider.
type CompletionResponse struct {
	Content   string
	Model     string
	LatencyMs int64
}

// Provider is the interface for LLM backends.
type Provider interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string
}

// ProviderKind selects an LLM backend.
type ProviderKind string

const (
	ProviderAnthropic ProviderKind = "anthropic"
	ProviderOpenAI    ProviderKind = "openai"
)

// NewProvider creates an LLM provider of the given kind.
func NewProvider(kind ProviderKind, apiKey string) (Provider, error) {
	switch kind {
	case ProviderOpenAI:
		return NewOpenAIProvider(apiKey)
	default:
		return NewAnthropicProvider(apiKey)
	}
}
