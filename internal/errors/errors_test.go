package errors

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrontbuildErrorFormatting(t *testing.T) {
	err := NewBuildError(ErrCodeBuildFailed, "bundle failed", errors.New("unexpected token")).
		WithStep("scripts").
		WithLocation("app/js/app.js", 12, 4)

	assert.Equal(t, "[ERR_BUILD_FAILED] step:scripts app/js/app.js:12:4 bundle failed: unexpected token", err.Error())
	assert.True(t, IsRecoverable(err))
	assert.True(t, IsBuildError(err))
}

func TestFrontbuildErrorIs(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewIOError(ErrCodeCopyFailed, "copy", nil))

	assert.True(t, errors.Is(err, &FrontbuildError{Type: ErrorTypeIO, Code: ErrCodeCopyFailed}))
	assert.False(t, errors.Is(err, &FrontbuildError{Type: ErrorTypeIO, Code: ErrCodeImageFailed}))
	assert.True(t, HasErrorCode(err, ErrCodeCopyFailed))
	assert.Len(t, GetErrorChain(err), 2)
	assert.False(t, IsRecoverable(err))
}

func TestWrapKeepsLocation(t *testing.T) {
	inner := NewValidationError(ErrCodeInvalidPath, "bad include").WithLocation("app/index.html", 3, 1)
	wrapped := Wrap(inner, ErrorTypeBuild, ErrCodeIncludeFailed, "include failed")

	require.NotNil(t, wrapped)
	assert.Equal(t, "app/index.html", wrapped.FilePath)
	assert.Equal(t, 3, wrapped.Line)
	assert.Nil(t, Wrap(nil, ErrorTypeBuild, "", ""))
}

func TestToolError(t *testing.T) {
	err := NewToolError("tailwindcss", []byte("  syntax error at line 4\n"), errors.New("exit status 1"))

	assert.Equal(t, ErrorTypeTool, err.Type)
	assert.True(t, IsBuildError(err))

	d := FromError("styles", err)
	assert.Equal(t, "styles", d.Step)
	assert.Equal(t, "syntax error at line 4", d.Detail)
	assert.Equal(t, ErrorSeverityError, d.Severity)
}

func TestCollectorClearStep(t *testing.T) {
	ec := NewErrorCollector()
	ec.Add(Diagnostic{Step: "styles", File: "app/css/index.css", Message: "bad", Severity: ErrorSeverityError})
	ec.AddError("scripts", errors.New("bundle failed"))
	ec.Add(Diagnostic{Step: "images", Message: "skipped", Severity: ErrorSeverityWarning})

	assert.True(t, ec.HasErrors())
	assert.Len(t, ec.Diagnostics(), 3)
	assert.Len(t, ec.GetErrorsByFile("app/css/index.css"), 1)

	ec.ClearStep("styles")
	assert.Empty(t, ec.GetErrorsByStep("styles"))
	assert.Len(t, ec.GetErrorsByStep("scripts"), 1)

	ec.ClearStep("scripts")
	assert.False(t, ec.HasErrors(), "warnings alone are not errors")

	ec.Clear()
	assert.Empty(t, ec.Diagnostics())
}

func TestCollectorConcurrentAccess(t *testing.T) {
	ec := NewErrorCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			step := fmt.Sprintf("step-%d", i%5)
			ec.AddError(step, errors.New("boom"))
			_ = ec.Diagnostics()
			if i%10 == 0 {
				ec.ClearStep(step)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, len(ec.Diagnostics()), 50)
}

type recordingLogger struct {
	warns  []string
	errors []string
}

func (r *recordingLogger) Error(_ context.Context, _ error, msg string, _ ...interface{}) {
	r.errors = append(r.errors, msg)
}

func (r *recordingLogger) Warn(_ context.Context, _ error, msg string, _ ...interface{}) {
	r.warns = append(r.warns, msg)
}

func TestErrorHandler(t *testing.T) {
	logger := &recordingLogger{}
	h := NewErrorHandler(logger)

	h.Handle(context.Background(), StepError("styles", "css failed", nil))
	h.Handle(context.Background(), fmt.Errorf("framework: %w", ToolMissingError("tailwindcss", nil)), "group", "styles")
	h.Handle(context.Background(), NewValidationError(ErrCodeInvalidPath, "bad include"))
	h.Handle(context.Background(), NewIOError(ErrCodeCopyFailed, "copy", nil))
	h.Handle(context.Background(), NewInternalError(ErrCodeInternalError, "bug", nil))
	h.Handle(context.Background(), errors.New("plain"))
	h.Handle(context.Background(), nil)

	assert.Equal(t, []string{"Build error occurred", "Tool failed", "Recoverable error occurred"}, logger.warns)
	assert.Equal(t, []string{"I/O error occurred", "Error occurred", "Unhandled error occurred"}, logger.errors)
}

func TestTypePredicates(t *testing.T) {
	assert.True(t, IsToolError(NewToolError("tailwindcss", nil, nil)))
	assert.False(t, IsToolError(NewIOError(ErrCodeCopyFailed, "copy", nil)))
	assert.True(t, IsIOError(FileOperationError("read", "app/a.css", "read failed", nil)))
	assert.False(t, IsIOError(errors.New("plain")))
}
