package ai

import (
	"errors"
	"fmt"

	"github.com/optio-learning/optio-backend/internal/platform/httpx"
	"github.com/optio-learning/optio-backend/internal/platform/openai"
)

var (
	// ErrMalformedOutput marks model output that could not be read as the expected object.
	ErrMalformedOutput = errors.New("malformed model output")
	// ErrValidation marks well-formed output that breaks a content rule.
	ErrValidation = errors.New("model output failed validation")
)

// GenerationError tags a failure with the operation that produced it.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *GenerationError) Unwrap() error { return e.Err }

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *GenerationError
	if errors.As(err, &ge) {
		return err
	}
	if errors.Is(err, openai.ErrMalformedJSON) {
		err = fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return &GenerationError{Op: op, Err: err}
}

// IsTransient reports whether retrying the same call may succeed.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, ErrMalformedOutput) || errors.Is(err, ErrValidation) {
		return false
	}
	return httpx.IsRetryableError(err)
}
