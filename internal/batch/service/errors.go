package service

import (
	"errors"
	"fmt"

	"labelcheck/internal/batch/models"
)

// ItemError is a per-item failure. Retryable is decided where the error is
// raised; the retry loop only reads it.
type ItemError struct {
	Code      string
	Message   string
	Retryable bool
	Err       error
}

func (e *ItemError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return e.Code + ": " + e.Message
}

func (e *ItemError) Unwrap() error { return e.Err }

var permanentCodes = map[string]bool{
	models.CodeMissingRequiredImages: true,
	models.CodeImageReadFailed:       true,
	models.CodeManifestParseFailed:   true,
	models.CodeBatchSizeOutOfRange:   true,
}

// NewItemError builds an ItemError whose retryability follows its code.
func NewItemError(code, message string, cause error) *ItemError {
	return &ItemError{Code: code, Message: message, Retryable: !permanentCodes[code], Err: cause}
}

// asItemError returns err as an ItemError, tagging anything else with
// fallbackCode as retryable.
func asItemError(err error, fallbackCode, message string) *ItemError {
	var ie *ItemError
	if errors.As(err, &ie) {
		return ie
	}
	return &ItemError{Code: fallbackCode, Message: message, Retryable: true, Err: err}
}
