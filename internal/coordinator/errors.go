package coordinator

import "fmt"

// Error codes returned across the API boundary.
const (
	CodeInvalidRequest    = "INVALID_REQUEST"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeNotFound          = "NOT_FOUND"
	CodeConfigNotFound    = "CONFIG_NOT_FOUND"
	CodeConfigInUse       = "CONFIG_IN_USE"
	CodeRunNotFound       = "RUN_NOT_FOUND"
	CodeRunAlreadyRunning = "RUN_ALREADY_RUNNING"
	CodeRunNotRunning     = "RUN_NOT_RUNNING"
	CodeRunCompleted      = "RUN_COMPLETED"
	CodeInvalidRunState   = "INVALID_RUN_STATE"
	CodeQueueFull         = "QUEUE_FULL"
	CodeContentNotFound   = "CONTENT_NOT_FOUND"
	CodeInternal          = "INTERNAL_ERROR"
)

// Error is a typed coordinator error carrying an API error code.
type Error struct {
	Code    string
	Message string
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Errorf builds a typed Error with a formatted message.
func Errorf(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts a typed Error, wrapping anything else as INTERNAL_ERROR.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	if typed, ok := err.(*Error); ok {
		return typed
	}
	return &Error{Code: CodeInternal, Message: err.Error()}
}
