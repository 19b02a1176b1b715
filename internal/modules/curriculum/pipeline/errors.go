package pipeline

import (
	"errors"
	"fmt"
	"io/fs"

	domain "github.com/optio-learning/optio-backend/internal/domain/curriculum"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/ai"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/content"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/parsing"
	"github.com/optio-learning/optio-backend/internal/modules/curriculum/review"
)

var (
	ErrUploadNotFound = review.ErrUploadNotFound
	ErrAwaitingReview = errors.New("upload has not been approved")
	ErrNotRetryable   = errors.New("upload is not in a retryable state")
	ErrSourceTooLarge = errors.New("source file too large")
	ErrNoContent      = errors.New("no content left after content-type filtering")
)

// StageError records the stage a run failed in. Permanent errors are not
// worth retrying: the upload has already been marked as failed.
type StageError struct {
	Stage     int
	Permanent bool
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s): %v", e.Stage, domain.StageName(e.Stage), e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// IsPermanent reports whether err came from a failure retries cannot fix.
func IsPermanent(err error) bool {
	var se *StageError
	return errors.As(err, &se) && se.Permanent
}

func permanent(err error) bool {
	for _, target := range []error{
		parsing.ErrUnsupportedFormat,
		parsing.ErrEmptyContent,
		ai.ErrMalformedOutput,
		ai.ErrValidation,
		content.ErrInvalidContent,
		ErrSourceTooLarge,
		ErrNoContent,
		fs.ErrNotExist,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

const maxUserMessage = 500

// UserMessage is the error text stored on a failed upload.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, parsing.ErrUnsupportedFormat):
		return "Unsupported file format. Upload text, markdown, PDF, a JSON export or an IMS Common Cartridge."
	case errors.Is(err, parsing.ErrEmptyContent), errors.Is(err, ErrNoContent):
		return "No usable content was found in the uploaded file."
	case errors.Is(err, ErrSourceTooLarge):
		return "The uploaded file is too large."
	case errors.Is(err, fs.ErrNotExist):
		return "The uploaded file could not be found. Please upload it again."
	case errors.Is(err, ai.ErrMalformedOutput):
		return "The AI returned a response we could not read. Retry to try again."
	case errors.Is(err, ai.ErrValidation):
		return "Generated content did not match the requested learning objectives. Retry to try again."
	case errors.Is(err, content.ErrInvalidContent):
		return "Generated content was incomplete. Retry to try again."
	}
	return content.Truncate(err.Error(), maxUserMessage)
}
