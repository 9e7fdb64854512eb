package engine

import (
	"errors"

	"github.com/szaher/contractbot/internal/session"
)

// Turn outcome errors, carried in TurnResult.Err. None of them is returned
// from ProcessTurn itself; they describe what happened to the flow.
var (
	// ErrExtractionAmbiguous means the input yielded no usable field.
	ErrExtractionAmbiguous = errors.New("extraction ambiguous")
	// ErrFieldValidationFailed means a value failed a format or business check.
	ErrFieldValidationFailed = errors.New("field validation failed")
	// ErrIdentifierNotFound means an identifier failed the existence check.
	ErrIdentifierNotFound = errors.New("identifier not found")
	// ErrSessionExpired means the session idled out and was reset.
	ErrSessionExpired = session.ErrSessionExpired
	// ErrMaxAttemptsExceeded means the flow was cancelled after too many
	// failed turns.
	ErrMaxAttemptsExceeded = errors.New("max attempts exceeded")
	// ErrCompletionExecutionFailed means the completion executor failed.
	ErrCompletionExecutionFailed = errors.New("completion execution failed")
)

// errorCode returns a stable machine-readable code for err.
func errorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMaxAttemptsExceeded):
		return "max_attempts_exceeded"
	case errors.Is(err, ErrSessionExpired):
		return "session_expired"
	case errors.Is(err, ErrCompletionExecutionFailed):
		return "completion_execution_failed"
	case errors.Is(err, ErrIdentifierNotFound):
		return "identifier_not_found"
	case errors.Is(err, ErrFieldValidationFailed):
		return "field_validation_failed"
	case errors.Is(err, ErrExtractionAmbiguous):
		return "extraction_ambiguous"
	default:
		return "internal_error"
	}
}
