package errors

import (
	"errors"
	"fmt"
	"strings"
)

// StepError marks a failed pipeline step. The error is recoverable: the
// pipeline reports it and later steps still run.
func StepError(step, message string, cause error) *FrontbuildError {
	return NewBuildError(ErrCodeBuildFailed, message, cause).WithStep(step)
}

// FileOperationError creates a standardized file operation error.
func FileOperationError(operation, filePath, message string, cause error) *FrontbuildError {
	return NewIOError("ERR_FILE_"+strings.ToUpper(operation), message, cause).
		WithLocation(filePath, 0, 0).
		WithContext("operation", operation)
}

// NewToolError wraps the failure of an external tool such as the CSS framework
// compiler. The tool's combined output is kept for the error overlay.
func NewToolError(tool string, output []byte, cause error) *FrontbuildError {
	return &FrontbuildError{
		Type:        ErrorTypeTool,
		Code:        ErrCodeToolFailed,
		Message:     fmt.Sprintf("%s failed", tool),
		Cause:       cause,
		Recoverable: true,
		Context: map[string]interface{}{
			"tool":   tool,
			"output": strings.TrimSpace(string(output)),
		},
	}
}

// ToolMissingError reports that an external tool could not be located.
func ToolMissingError(tool string, cause error) *FrontbuildError {
	return &FrontbuildError{
		Type:        ErrorTypeTool,
		Code:        ErrCodeToolMissing,
		Message:     fmt.Sprintf("%s not found in PATH", tool),
		Cause:       cause,
		Recoverable: true,
		Context:     map[string]interface{}{"tool": tool},
	}
}

// ConfigurationError creates a standardized configuration error.
func ConfigurationError(setting, message string, value interface{}) *FrontbuildError {
	return NewConfigError(ErrCodeConfigInvalid, message).
		WithContext("setting", setting).
		WithContext("value", value)
}

// GetErrorChain returns all errors in the chain from outermost to innermost
func GetErrorChain(err error) []error {
	var chain []error
	for err != nil {
		chain = append(chain, err)
		err = errors.Unwrap(err)
	}
	return chain
}

// HasErrorCode checks if any error in the chain has the specified code
func HasErrorCode(err error, code string) bool {
	for _, e := range GetErrorChain(err) {
		if fe, ok := e.(*FrontbuildError); ok && fe.Code == code {
			return true
		}
	}
	return false
}
