// Package translate provides language detection and translation used as a
// pure capability by the fan-out dispatcher.
package translate

import (
	"context"
)

// Request describes one translation. Country and region bias vocabulary and
// register, not just language choice. Document marks the long-form path
// used for opt-in document translation.
type Request struct {
	Text          string
	SourceLang    string
	TargetLang    string
	TargetCountry string
	TargetRegion  string
	Document      bool
}

// Gateway is the translation capability. A (message, target language) pair
// is translated at most once; callers cache the result on the message.
type Gateway interface {
	// DetectLanguage returns the ISO 639-1 code of text. Never invoked for
	// non-text message types.
	DetectLanguage(ctx context.Context, text string) (string, error)

	// Translate converts text between languages. Failures surface wrapped
	// in model.ErrExternal; callers fall back to the original content.
	Translate(ctx context.Context, req *Request) (string, error)
}
