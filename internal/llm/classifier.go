package llm

import (
	"context"
	"errors"

	"github.com/raine/ecosort-bot/internal/waste"
)

// FailureMessage is the only text shown to users when classification fails.
// The underlying cause is logged.
const FailureMessage = "Failed to classify waste item."

var (
	// ErrConfiguration means the classifier lacks a credential or other
	// required setting. It is raised before any network attempt.
	ErrConfiguration = errors.New("classifier configuration error")
	// ErrInvalidImage means the image payload is empty or not valid base64.
	ErrInvalidImage = errors.New("invalid image")
	// ErrService covers transport failures, timeouts and non-2xx replies.
	ErrService = errors.New("classification service error")
	// ErrMalformedResponse means the reply was empty, not JSON, or did not
	// match the required shape.
	ErrMalformedResponse = errors.New("malformed classification response")
)

// Classifier turns one image into one classification.
type Classifier interface {
	Classify(ctx context.Context, img waste.EncodedImage) (*waste.Result, error)
}

// Error is returned by Classify. Its message is always FailureMessage; the
// kind sentinel and the cause are available through errors.Is and errors.As.
type Error struct {
	Kind  error
	Cause error
}

func (e *Error) Error() string {
	return FailureMessage
}

func (e *Error) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

// Detail describes the underlying failure for logs.
func (e *Error) Detail() string {
	if e.Cause == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Cause.Error()
}

func newError(kind, cause error) *Error {
	return &Error{Kind: kind, Cause: cause}
}

// UserMessage returns the user-facing text for a classification failure.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	return FailureMessage
}
