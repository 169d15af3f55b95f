package service

import (
	"errors"
	"strings"

	"reportdesk/internal/repository"
	"reportdesk/internal/validation"
)

const (
	CodeBadRequest  = "bad_request"
	CodeConflict    = "conflict"
	CodeServerError = "server_error"
)

// ImportError is the structured failure result of one import attempt.
// It never propagates as a panic or raw database error past the service.
type ImportError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ImportError) Error() string {
	return e.Code + ": " + e.Message
}

func fromValidation(verr *validation.Error) *ImportError {
	return &ImportError{Code: verr.Code, Message: verr.Error()}
}

// classifyImportError buckets a database error by message content, per the
// taxonomy the audit trail and HTTP facade share. Conflict vocabulary wins
// over check-constraint vocabulary because Postgres unique violations
// mention both ("duplicate key value violates unique constraint").
func classifyImportError(err error) *ImportError {
	if errors.Is(err, repository.ErrDuplicateChecksum) {
		return &ImportError{Code: CodeConflict, Message: err.Error()}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "duplicate key"),
		strings.Contains(msg, "unique constraint"),
		strings.Contains(msg, "duplicate"):
		return &ImportError{Code: CodeConflict, Message: err.Error()}
	case strings.Contains(msg, "check constraint"),
		strings.Contains(msg, "foreign key"),
		strings.Contains(msg, "invalid input"):
		return &ImportError{Code: validation.CodeUnprocessableEntity, Message: err.Error()}
	default:
		return &ImportError{Code: CodeServerError, Message: err.Error()}
	}
}
