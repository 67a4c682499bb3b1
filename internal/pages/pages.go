// Package pages expands server-side includes across the HTML sources and
// writes the result to the output tree.
package pages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/conneroisu/frontbuild/internal/assets"
	"github.com/conneroisu/frontbuild/internal/errors"
	"github.com/conneroisu/frontbuild/internal/logging"
	"github.com/conneroisu/frontbuild/internal/markup"
)

// Step is the pipeline step name of the HTML builder.
const Step = "pages"

const pagePattern = "**/*.{html,htm}"

// Options configures a Builder.
type Options struct {
	Source   string
	Output   string
	PartsDir string
	// Native marks every JavaScript script tag in the output as a module.
	Native bool
}

// Error lists every include that failed during one build.
type Error struct {
	Failures []*errors.FrontbuildError
}

func (e *Error) Error() string {
	if len(e.Failures) == 1 {
		return e.Failures[0].Error()
	}
	return fmt.Sprintf("%d include errors, first: %s", len(e.Failures), e.Failures[0].Error())
}

// Diagnostics returns one diagnostic per failed include.
func (e *Error) Diagnostics() []errors.Diagnostic {
	out := make([]errors.Diagnostic, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, errors.FromError(Step, f))
	}
	return out
}

// Builder renders the HTML pages.
type Builder struct {
	opts     Options
	expander *Expander
	logger   logging.Logger
}

// New creates an HTML builder.
func New(opts Options, logger logging.Logger) *Builder {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Builder{
		opts:     opts,
		expander: &Expander{Root: opts.Source},
		logger:   logger.WithComponent(Step),
	}
}

// Build expands and writes every page, removes the partials from the output
// and, in native mode, switches script tags to modules. Pages with a broken
// include are still written with an error comment in place of the include.
func (b *Builder) Build(ctx context.Context) error {
	failures, err := b.render(ctx)

	if cleanErr := b.removeParts(); cleanErr != nil {
		b.logger.Warn(ctx, cleanErr, "Failed to remove partials from output", "parts", b.opts.PartsDir)
	}
	if err != nil {
		return err
	}

	if b.opts.Native {
		if err := b.markModules(ctx); err != nil {
			return err
		}
	}

	if len(failures) > 0 {
		return &Error{Failures: failures}
	}
	return nil
}

func (b *Builder) render(ctx context.Context) ([]*errors.FrontbuildError, error) {
	pages, err := doublestar.Glob(os.DirFS(b.opts.Source), pagePattern)
	if err != nil {
		return nil, errors.FileOperationError("glob", b.opts.Source, "failed to list pages", err).WithStep(Step)
	}

	var failures []*errors.FrontbuildError
	written := 0
	for _, rel := range pages {
		if err := ctx.Err(); err != nil {
			return failures, err
		}

		src := filepath.Join(b.opts.Source, filepath.FromSlash(rel))
		dst := filepath.Join(b.opts.Output, filepath.FromSlash(rel))

		out, errs := b.expander.Expand(src)
		for _, e := range errs {
			b.logger.Error(ctx, e, "Include failed", "page", src, "file", e.FilePath, "line", e.Line)
		}
		failures = append(failures, errs...)
		if out == nil {
			continue
		}

		if err := assets.WriteFileAtomic(dst, out, 0644); err != nil {
			werr := errors.FileOperationError("write", dst, "failed to write page", err).WithStep(Step)
			b.logger.Error(ctx, werr, "Failed to write page", "file", dst)
			failures = append(failures, werr)
			continue
		}
		written++
	}

	b.logger.Info(ctx, "Pages built", "pages", written, "errors", len(failures))
	return failures, nil
}

func (b *Builder) removeParts() error {
	if b.opts.PartsDir == "" {
		return nil
	}
	rel, err := filepath.Rel(b.opts.Source, b.opts.PartsDir)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return nil
	}
	return os.RemoveAll(filepath.Join(b.opts.Output, rel))
}

// markModules walks the output tree and marks every JavaScript script tag
// as a module.
func (b *Builder) markModules(ctx context.Context) error {
	pages, err := doublestar.Glob(os.DirFS(b.opts.Output), pagePattern)
	if err != nil {
		return errors.FileOperationError("glob", b.opts.Output, "failed to list output pages", err).WithStep(Step)
	}

	for _, rel := range pages {
		path := filepath.Join(b.opts.Output, filepath.FromSlash(rel))
		src, err := os.ReadFile(path)
		if err != nil {
			b.logger.Error(ctx, err, "Failed to read page", "file", path)
			continue
		}
		out, changed := markup.ToModule(src)
		if !changed {
			continue
		}
		if _, err := assets.WriteIfChanged(path, out, 0644); err != nil {
			b.logger.Error(ctx, err, "Failed to mark module scripts", "file", path)
			continue
		}
		b.logger.Debug(ctx, "Marked scripts as modules", "file", path)
	}
	return nil
}
