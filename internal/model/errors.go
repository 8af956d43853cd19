package model

import (
	"errors"
)

// Error taxonomy for the distribution core. Handlers and the dispatcher
// branch on these with errors.Is; call sites wrap them with fmt.Errorf.
var (
	// ErrValidation marks a malformed payload. Dropped and logged, no retry.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks an absent conversation or message. The event is
	// aborted with no partial mutation.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized marks an operation the requester may not perform,
	// rejected before any mutation.
	ErrUnauthorized = errors.New("not permitted")

	// ErrGone marks a registered connection the transport reported as
	// unreachable. The connection is deregistered and fan-out continues.
	ErrGone = errors.New("connection gone")

	// ErrExternal marks a translation or push failure. The send falls back
	// to original content or skips the notification, never fails.
	ErrExternal = errors.New("external service failure")
)
