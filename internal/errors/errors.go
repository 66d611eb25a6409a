package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	CategoryClient   ErrorCategory = "client"
	CategoryServer   ErrorCategory = "server"
	CategoryExternal ErrorCategory = "external"
)

// Error codes
const (
	// Client errors (4xx)
	CodeInvalidInput = "INVALID_INPUT"
	CodeNotFound     = "NOT_FOUND"
	CodeNotReady     = "NOT_READY"

	// Server errors (5xx)
	CodeInternalError      = "INTERNAL_ERROR"
	CodeBackendUnavailable = "BACKEND_UNAVAILABLE"

	// Collaborator failures
	CodeResolutionError = "RESOLUTION_ERROR"
	CodeNoStreamFound   = "NO_STREAM_FOUND"
	CodeTranscodeError  = "TRANSCODE_ERROR"
	CodeUploadError     = "UPLOAD_ERROR"
)

// AppError represents a structured application error
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Category   ErrorCategory  `json:"-"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Cause      error          `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AppError carrying the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// WithCause sets the underlying cause of the error
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// ErrorResponse is the JSON structure returned to clients
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody contains the error details
type ErrorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// New creates a new AppError
func New(code string, message string, category ErrorCategory, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Category:   category,
		HTTPStatus: httpStatus,
	}
}

// Sentinels for errors.Is comparisons by code.
var (
	ErrInvalidInput       = New(CodeInvalidInput, "invalid input", CategoryClient, http.StatusBadRequest)
	ErrNotFound           = New(CodeNotFound, "not found", CategoryClient, http.StatusNotFound)
	ErrNotReady           = New(CodeNotReady, "not ready", CategoryClient, http.StatusBadRequest)
	ErrBackendUnavailable = New(CodeBackendUnavailable, "backend unavailable", CategoryServer, http.StatusServiceUnavailable)
	ErrResolution         = New(CodeResolutionError, "resolution failed", CategoryExternal, http.StatusInternalServerError)
	ErrNoStreamFound      = New(CodeNoStreamFound, "no stream found", CategoryExternal, http.StatusInternalServerError)
	ErrTranscode          = New(CodeTranscodeError, "transcode failed", CategoryExternal, http.StatusInternalServerError)
	ErrUpload             = New(CodeUploadError, "upload failed", CategoryExternal, http.StatusInternalServerError)
)

// Client error constructors

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message, CategoryClient, http.StatusBadRequest)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), CategoryClient, http.StatusNotFound)
}

func NotReady(message string) *AppError {
	return New(CodeNotReady, message, CategoryClient, http.StatusBadRequest)
}

// Server error constructors

func InternalError(message string) *AppError {
	return New(CodeInternalError, message, CategoryServer, http.StatusInternalServerError)
}

func BackendUnavailable(backend string) *AppError {
	return New(CodeBackendUnavailable, fmt.Sprintf("%s is unavailable", backend), CategoryServer, http.StatusServiceUnavailable)
}

// External collaborator error constructors

func ResolutionError(message string) *AppError {
	return New(CodeResolutionError, message, CategoryExternal, http.StatusInternalServerError)
}

func NoStreamFound() *AppError {
	return New(CodeNoStreamFound, "no stream URLs found", CategoryExternal, http.StatusInternalServerError)
}

func TranscodeError(message string) *AppError {
	return New(CodeTranscodeError, message, CategoryExternal, http.StatusInternalServerError)
}

func UploadError(message string) *AppError {
	return New(CodeUploadError, message, CategoryExternal, http.StatusInternalServerError)
}

// AsAppError extracts an AppError from err's chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err's chain contains an AppError with the given code.
func HasCode(err error, code string) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Code == code
}

// WriteError writes an error response to the HTTP response writer
func WriteError(w http.ResponseWriter, requestID string, err error) {
	appErr, ok := AsAppError(err)
	if !ok {
		// Wrap unknown errors as internal errors
		appErr = InternalError("an unexpected error occurred").WithCause(err)
	}

	resp := ErrorResponse{
		Error: ErrorBody{
			Code:      appErr.Code,
			Message:   appErr.Message,
			RequestID: requestID,
			Details:   appErr.Details,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if requestID != "" {
		w.Header().Set(RequestIDHeader, requestID)
	}
	w.WriteHeader(appErr.HTTPStatus)
	json.NewEncoder(w).Encode(resp)
}

// WriteJSON writes a JSON response with the request ID header
func WriteJSON(w http.ResponseWriter, requestID string, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	if requestID != "" {
		w.Header().Set(RequestIDHeader, requestID)
	}
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// IsRetryable returns true if the error is retryable
func IsRetryable(err error) bool {
	appErr, ok := AsAppError(err)
	if !ok {
		return false
	}

	switch appErr.Code {
	case CodeUploadError, CodeBackendUnavailable:
		return true
	}
	return false
}

// IsClientError returns true if the error is a client error
func IsClientError(err error) bool {
	appErr, ok := AsAppError(err)
	return ok && appErr.Category == CategoryClient
}
