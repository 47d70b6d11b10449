package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound   = NewError("NOT_FOUND", "resource not found", http.StatusNotFound)
	ErrValidation = NewError("VALIDATION_ERROR", "validation failed", http.StatusBadRequest)
	ErrInternal   = NewError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)

	// Ingestion taxonomy. Decode and field errors abort before (or without)
	// persistence; record-write and upload errors surface the ingestion as
	// failed; metadata-index errors are observed but never surfaced.
	ErrDecode         = NewError("DECODE_ERROR", "malformed multipart body", http.StatusBadRequest)
	ErrMalformedField = NewError("MALFORMED_FIELD", "field failed to parse", http.StatusBadRequest)
	ErrRecordWrite    = NewError("RECORD_WRITE", "record store write failed", http.StatusBadGateway)
	ErrUpload         = NewError("UPLOAD_FAILED", "blob storage upload failed", http.StatusBadGateway)
	ErrMetadataIndex  = NewError("METADATA_INDEX", "attachment metadata write failed", http.StatusInternalServerError)
)

type Error struct {
	Code    string
	Message string
	Status  int
	Details map[string]interface{}
	Cause   error
}

func NewError(code, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  status,
		Details: make(map[string]interface{}),
	}
}

func (e *Error) Error() string {
	msg := e.Message

	if len(e.Details) > 0 {
		if detailMsg, ok := e.Details["message"].(string); ok && detailMsg != "" {
			msg = detailMsg
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithCause returns a copy carrying the underlying error.
func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Cause = cause
	return &err
}

// WithDetails returns a copy with additional detail fields.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	err := *e
	err.Details = make(map[string]interface{}, len(e.Details)+len(details))
	for k, v := range e.Details {
		err.Details[k] = v
	}
	for k, v := range details {
		err.Details[k] = v
	}
	return &err
}

// WithMessage returns a copy with a specific human-readable message.
func (e *Error) WithMessage(message string) *Error {
	err := *e
	err.Message = message
	return &err
}

func Is(err error, target *Error) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

func Code(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal.Code
}

func ToHTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

func ToErrorResponse(err error) map[string]interface{} {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = ErrInternal.WithCause(err)
	}

	response := map[string]interface{}{
		"error":      appErr.Message,
		"error_code": appErr.Code,
	}

	if len(appErr.Details) > 0 {
		response["details"] = appErr.Details
	}

	return response
}
