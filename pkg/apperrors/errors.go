// Package apperrors defines the error kinds surfaced by the perfusion pipeline.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind represents a category of pipeline failure
type Kind string

const (
	KindInvalidInput           Kind = "invalid_input"
	KindInsufficientComponents Kind = "insufficient_components"
	KindInvalidProjection      Kind = "invalid_projection"
	KindImageLoad              Kind = "image_load"
	KindPrecondition           Kind = "precondition_failed"
)

// Pipeline stage names used in AppError.Stage
const (
	StageLoad      = "load"
	StageBinarize  = "binarize"
	StageOpen      = "open"
	StageClose     = "close"
	StageExtract   = "extract"
	StagePartition = "partition"
	StageAggregate = "aggregate"
	StageProcess   = "process"
)

// AppError is a structured pipeline error. Every failure is terminal for
// the invocation that produced it.
type AppError struct {
	Kind    Kind   `json:"kind"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	prefix := string(e.Kind)
	if e.Stage != "" {
		prefix = fmt.Sprintf("%s [%s]", e.Kind, e.Stage)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

func newError(kind Kind, stage, message string, cause error) *AppError {
	return &AppError{Kind: kind, Stage: stage, Message: message, Cause: cause}
}

// NewInvalidInputError reports an empty, nil or mismatched input.
func NewInvalidInputError(stage, message string, cause error) *AppError {
	return newError(KindInvalidInput, stage, message, cause)
}

// NewInsufficientComponentsError reports too few connected components for
// the selection policy.
func NewInsufficientComponentsError(stage, message string, cause error) *AppError {
	return newError(KindInsufficientComponents, stage, message, cause)
}

// NewInvalidProjectionError reports an unrecognised projection designation.
func NewInvalidProjectionError(message string, cause error) *AppError {
	return newError(KindInvalidProjection, StageProcess, message, cause)
}

// NewImageLoadError reports a decoding or file access failure.
func NewImageLoadError(message string, cause error) *AppError {
	return newError(KindImageLoad, StageLoad, message, cause)
}

// NewPreconditionError reports a violated selection precondition.
func NewPreconditionError(stage, message string, cause error) *AppError {
	return newError(KindPrecondition, stage, message, cause)
}

// As extracts the first *AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is checks if any error in the chain is an AppError of the given kind
func Is(err error, kind Kind) bool {
	appErr, ok := As(err)
	return ok && appErr.Kind == kind
}

// StageOf returns the stage recorded on the error, or "" if none.
func StageOf(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Stage
	}
	return ""
}

// StatusCode maps an error to the HTTP status used by the API
func StatusCode(err error) int {
	appErr, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch appErr.Kind {
	case KindInvalidInput, KindInvalidProjection, KindImageLoad:
		return http.StatusBadRequest
	case KindInsufficientComponents, KindPrecondition:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
