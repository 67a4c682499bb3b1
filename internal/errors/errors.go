package errors

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Diagnostic is one problem reported by a pipeline step, shown in the
// terminal and in the browser error overlay.
type Diagnostic struct {
	Step      string
	File      string
	Line      int
	Column    int
	Message   string
	Detail    string
	Severity  ErrorSeverity
	Timestamp time.Time
}

// ErrorSeverity represents the severity of an error
type ErrorSeverity int

const (
	ErrorSeverityInfo ErrorSeverity = iota
	ErrorSeverityWarning
	ErrorSeverityError
	ErrorSeverityFatal
)

// String returns the string representation of the severity
func (s ErrorSeverity) String() string {
	switch s {
	case ErrorSeverityInfo:
		return "info"
	case ErrorSeverityWarning:
		return "warning"
	case ErrorSeverityError:
		return "error"
	case ErrorSeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error implements the error interface
func (d *Diagnostic) Error() string {
	if d.File == "" {
		return fmt.Sprintf("%s: %s: %s", d.Step, d.Severity, d.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s", d.File, d.Line, d.Column, d.Severity, d.Message)
}

// FromError converts err into a Diagnostic attributed to step, keeping any
// location and tool output carried by a FrontbuildError.
func FromError(step string, err error) Diagnostic {
	d := Diagnostic{
		Step:     step,
		Message:  err.Error(),
		Severity: ErrorSeverityError,
	}

	var fe *FrontbuildError
	if errors.As(err, &fe) {
		d.File = fe.FilePath
		d.Line = fe.Line
		d.Column = fe.Column
		if out, ok := fe.Context["output"].(string); ok {
			d.Detail = out
		}
	}

	return d
}

// ErrorCollector holds the diagnostics of the most recent run of every step.
// A step clears its own entries before it runs, so a fixed file removes its
// error without touching what other steps reported.
type ErrorCollector struct {
	diagnostics []Diagnostic
	mutex       sync.RWMutex
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		diagnostics: make([]Diagnostic, 0),
	}
}

// Add adds a diagnostic to the collector
func (ec *ErrorCollector) Add(d Diagnostic) {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now()
	}
	ec.diagnostics = append(ec.diagnostics, d)
}

// AddError adds err as an error diagnostic of step.
func (ec *ErrorCollector) AddError(step string, err error) {
	if err == nil {
		return
	}
	ec.Add(FromError(step, err))
}

// Diagnostics returns a copy of all collected diagnostics ordered by step.
func (ec *ErrorCollector) Diagnostics() []Diagnostic {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()

	result := make([]Diagnostic, len(ec.diagnostics))
	copy(result, ec.diagnostics)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Step < result[j].Step
	})
	return result
}

// HasErrors reports whether any diagnostic of error severity or worse is held.
func (ec *ErrorCollector) HasErrors() bool {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	for _, d := range ec.diagnostics {
		if d.Severity >= ErrorSeverityError {
			return true
		}
	}
	return false
}

// ClearStep drops the diagnostics reported by step.
func (ec *ErrorCollector) ClearStep(step string) {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	kept := ec.diagnostics[:0]
	for _, d := range ec.diagnostics {
		if d.Step != step {
			kept = append(kept, d)
		}
	}
	ec.diagnostics = kept
}

// Clear clears all diagnostics
func (ec *ErrorCollector) Clear() {
	ec.mutex.Lock()
	defer ec.mutex.Unlock()
	ec.diagnostics = ec.diagnostics[:0]
}

// GetErrorsByStep returns the diagnostics reported by step
func (ec *ErrorCollector) GetErrorsByStep(step string) []Diagnostic {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	var stepErrors []Diagnostic
	for _, d := range ec.diagnostics {
		if d.Step == step {
			stepErrors = append(stepErrors, d)
		}
	}
	return stepErrors
}

// GetErrorsByFile returns errors for a specific file
func (ec *ErrorCollector) GetErrorsByFile(file string) []Diagnostic {
	ec.mutex.RLock()
	defer ec.mutex.RUnlock()
	var fileErrors []Diagnostic
	for _, d := range ec.diagnostics {
		if d.File == file {
			fileErrors = append(fileErrors, d)
		}
	}
	return fileErrors
}
