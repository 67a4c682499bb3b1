package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeBuild      ErrorType = "build"
	ErrorTypeTool       ErrorType = "tool"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// FrontbuildError is a structured error type with context.
type FrontbuildError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Step        string
	FilePath    string
	Line        int
	Column      int
	Recoverable bool
}

// Error implements the error interface.
func (e *FrontbuildError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Step != "" {
		parts = append(parts, "step:"+e.Step)
	}

	if e.FilePath != "" {
		location := e.FilePath
		if e.Line > 0 {
			location += fmt.Sprintf(":%d", e.Line)
			if e.Column > 0 {
				location += fmt.Sprintf(":%d", e.Column)
			}
		}
		parts = append(parts, location)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *FrontbuildError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *FrontbuildError) Is(target error) bool {
	var t *FrontbuildError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *FrontbuildError) WithContext(key string, value interface{}) *FrontbuildError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithLocation adds file location information.
func (e *FrontbuildError) WithLocation(filePath string, line, column int) *FrontbuildError {
	e.FilePath = filePath
	e.Line = line
	e.Column = column

	return e
}

// WithStep records which pipeline step raised the error.
func (e *FrontbuildError) WithStep(step string) *FrontbuildError {
	e.Step = step

	return e
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *FrontbuildError {
	return &FrontbuildError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewBuildError creates a build error.
func NewBuildError(code, message string, cause error) *FrontbuildError {
	return &FrontbuildError{
		Type:        ErrorTypeBuild,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *FrontbuildError {
	return &FrontbuildError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *FrontbuildError {
	return &FrontbuildError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewNetworkError creates a network error.
func NewNetworkError(code, message string, cause error) *FrontbuildError {
	return &FrontbuildError{
		Type:        ErrorTypeNetwork,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *FrontbuildError {
	return &FrontbuildError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// Wrap wraps err, keeping location and step information when err is
// already a FrontbuildError.
func Wrap(err error, errType ErrorType, code, message string) *FrontbuildError {
	if err == nil {
		return nil
	}

	var fe *FrontbuildError
	if errors.As(err, &fe) {
		return &FrontbuildError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       fe,
			Context:     fe.Context,
			Step:        fe.Step,
			FilePath:    fe.FilePath,
			Line:        fe.Line,
			Column:      fe.Column,
			Recoverable: fe.Recoverable,
		}
	}

	return &FrontbuildError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeValidation || errType == ErrorTypeBuild || errType == ErrorTypeTool,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var fe *FrontbuildError
	if errors.As(err, &fe) {
		return fe.Recoverable
	}

	return false
}

// IsBuildError checks if an error is build-related.
func IsBuildError(err error) bool {
	var fe *FrontbuildError
	if errors.As(err, &fe) {
		return fe.Type == ErrorTypeBuild || fe.Type == ErrorTypeTool
	}

	return false
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err at a level matching its type. Build and tool failures are
// expected during development and are logged as warnings. fields are added
// to the entry.
func (h *ErrorHandler) Handle(ctx context.Context, err error, fields ...interface{}) {
	if err == nil || h.logger == nil {
		return
	}

	var fe *FrontbuildError
	if !errors.As(err, &fe) {
		h.logger.Error(ctx, err, "Unhandled error occurred", fields...)
		return
	}
	fields = append(fields, "type", fe.Type, "code", fe.Code, "step", fe.Step)

	switch {
	case IsToolError(err):
		if HasErrorCode(err, ErrCodeToolMissing) {
			fields = append(fields, "hint", "install the tool or set framework.enabled: false")
		}
		h.logger.Warn(ctx, err, "Tool failed", fields...)
	case IsBuildError(err):
		h.logger.Warn(ctx, err, "Build error occurred", append(fields, "file", fe.FilePath)...)
	case IsIOError(err):
		h.logger.Error(ctx, err, "I/O error occurred", append(fields, "file", fe.FilePath)...)
	case IsRecoverable(err):
		h.logger.Warn(ctx, err, "Recoverable error occurred", fields...)
	default:
		h.logger.Error(ctx, err, "Error occurred", fields...)
	}
}

// Common error codes.
const (
	ErrCodeInvalidPath      = "ERR_INVALID_PATH"
	ErrCodeBuildFailed      = "ERR_BUILD_FAILED"
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodeFileNotFound     = "ERR_FILE_NOT_FOUND"
	ErrCodeToolFailed       = "ERR_TOOL_FAILED"
	ErrCodeToolMissing      = "ERR_TOOL_MISSING"
	ErrCodeIncludeFailed    = "ERR_INCLUDE_FAILED"
	ErrCodeVendorFailed     = "ERR_VENDOR_FAILED"
	ErrCodeCopyFailed       = "ERR_COPY_FAILED"
	ErrCodeImageFailed      = "ERR_IMAGE_FAILED"
	ErrCodeWatchFailed      = "ERR_WATCH_FAILED"
	ErrCodeServerFailed     = "ERR_SERVER_FAILED"
	ErrCodePublishFailed    = "ERR_PUBLISH_FAILED"
	ErrCodeInternalError    = "ERR_INTERNAL"
	ErrCodeValidationFailed = "ERR_VALIDATION_FAILED"
)

// IsToolError checks if an error came from an external tool.
func IsToolError(err error) bool {
	var fe *FrontbuildError
	if errors.As(err, &fe) {
		return fe.Type == ErrorTypeTool
	}

	return false
}

// IsIOError checks if an error is a filesystem failure.
func IsIOError(err error) bool {
	var fe *FrontbuildError
	if errors.As(err, &fe) {
		return fe.Type == ErrorTypeIO
	}

	return false
}
