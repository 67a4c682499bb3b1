// Package scripts bundles the site JavaScript into one classic script and
// switches the page script tags from module to deferred loading.
package scripts

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/frontbuild/internal/assets"
	"github.com/conneroisu/frontbuild/internal/bundle"
	"github.com/conneroisu/frontbuild/internal/errors"
	"github.com/conneroisu/frontbuild/internal/logging"
	"github.com/conneroisu/frontbuild/internal/markup"
)

// Step is the pipeline step name of the script builder.
const Step = "scripts"

// Options configures a Builder.
type Options struct {
	Entry  string
	Output string
	Minify bool
	Target string
	// HTMLDir holds the emitted pages whose script tags are rewritten.
	HTMLDir string
}

// Builder bundles one entry module into one output script.
type Builder struct {
	opts   Options
	target api.Target
	logger logging.Logger
}

// New creates a script builder.
func New(opts Options, logger logging.Logger) (*Builder, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	target, err := bundle.ParseTarget(opts.Target)
	if err != nil {
		return nil, err
	}
	return &Builder{
		opts:   opts,
		target: target,
		logger: logger.WithComponent(Step),
	}, nil
}

// Build bundles and writes the script. Only after a successful write are the
// pages in HTMLDir switched to deferred loading.
func (b *Builder) Build(ctx context.Context) error {
	if _, err := os.Stat(b.opts.Entry); err != nil {
		return errors.FileOperationError("stat", b.opts.Entry, "entry script not found", err).WithStep(Step)
	}

	res, err := bundle.Run(Step, bundle.Options{
		Entry:   b.opts.Entry,
		Outfile: b.opts.Output,
		Minify:  b.opts.Minify,
		Format:  api.FormatIIFE,
		Target:  b.target,
	})
	if err != nil {
		b.logger.Error(ctx, err, "Error in JS bundle", "entry", b.opts.Entry)
		return err
	}
	for _, w := range res.Warnings {
		b.logger.Warn(ctx, nil, w.Message, "file", w.File, "line", w.Line)
	}

	if err := assets.WriteFileAtomic(b.opts.Output, res.Contents, 0644); err != nil {
		return errors.FileOperationError("write", b.opts.Output, "failed to write script bundle", err).WithStep(Step)
	}
	b.logger.Info(ctx, "Script bundle built", "entry", b.opts.Entry, "output", b.opts.Output, "bytes", len(res.Contents))

	if b.opts.HTMLDir == "" {
		return nil
	}
	return b.DeferPages(ctx)
}

// pagePattern matches every emitted page, nested ones included.
const pagePattern = "**/*.{html,htm}"

// DeferPages rewrites type="module" script tags to defer in every HTML file
// below HTMLDir. Vendored packages are left alone. Files are written only
// when they change.
func (b *Builder) DeferPages(ctx context.Context) error {
	pages, err := doublestar.Glob(os.DirFS(b.opts.HTMLDir), pagePattern)
	if err != nil {
		return errors.FileOperationError("glob", b.opts.HTMLDir, "failed to list pages", err).WithStep(Step)
	}

	var failed error
	for _, rel := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.HasPrefix(rel, "node_modules/") || strings.Contains(rel, "/node_modules/") {
			continue
		}
		path := filepath.Join(b.opts.HTMLDir, filepath.FromSlash(rel))

		src, err := os.ReadFile(path)
		if err != nil {
			b.logger.Error(ctx, err, "Failed to read page", "file", path)
			failed = errors.FileOperationError("read", path, "failed to read page", err).WithStep(Step)
			continue
		}

		out, changed := markup.ModuleToDefer(src)
		if !changed {
			continue
		}
		if _, err := assets.WriteIfChanged(path, out, 0644); err != nil {
			b.logger.Error(ctx, err, "Failed to rewrite page", "file", path)
			failed = errors.FileOperationError("write", path, "failed to rewrite page", err).WithStep(Step)
			continue
		}
		b.logger.Debug(ctx, "Switched module scripts to defer", "file", path)
	}
	return failed
}
