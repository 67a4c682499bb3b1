// Package styles builds the site stylesheet: an optional framework compile,
// then import resolution, nesting lowering and minification through esbuild.
package styles

import (
	"context"
	"os"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/frontbuild/internal/assets"
	"github.com/conneroisu/frontbuild/internal/bundle"
	"github.com/conneroisu/frontbuild/internal/errors"
	"github.com/conneroisu/frontbuild/internal/framework"
	"github.com/conneroisu/frontbuild/internal/logging"
)

// Step is the pipeline step name of the style builder.
const Step = "styles"

// url() targets that stay as written; the files are copied by the font and
// image steps.
var externalAssets = []string{
	"*.png", "*.jpg", "*.jpeg", "*.gif", "*.svg", "*.webp", "*.avif", "*.ico",
	"*.woff", "*.woff2", "*.ttf", "*.otf", "*.eot",
}

// Options configures a Builder.
type Options struct {
	Entry   string
	Output  string
	Minify  bool
	Targets []string

	// Framework, when set, compiles FrameworkInput to FrameworkOutput and the
	// result becomes the entry stylesheet.
	Framework       framework.Compiler
	FrameworkInput  string
	FrameworkOutput string
}

// Builder compiles one entry stylesheet to one output stylesheet.
type Builder struct {
	opts    Options
	engines []api.Engine
	logger  logging.Logger
}

// New creates a style builder. Browser targets are validated here so a bad
// target is reported once at startup instead of on every rebuild.
func New(opts Options, logger logging.Logger) (*Builder, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	engines, err := bundle.ParseEngines(opts.Targets)
	if err != nil {
		return nil, err
	}
	return &Builder{
		opts:    opts,
		engines: engines,
		logger:  logger.WithComponent(Step),
	}, nil
}

// Build runs the style pipeline. On failure the previous output is left in
// place and the error is returned.
func (b *Builder) Build(ctx context.Context) error {
	entry := b.opts.Entry

	if b.opts.Framework != nil {
		if err := b.opts.Framework.Compile(ctx, b.opts.FrameworkInput, b.opts.FrameworkOutput); err != nil {
			b.logger.Error(ctx, err, "Framework compile failed", "framework", b.opts.Framework.Name())
			return err
		}
		entry = b.opts.FrameworkOutput
	}

	if _, err := os.Stat(entry); err != nil {
		return errors.FileOperationError("stat", entry, "entry stylesheet not found", err).WithStep(Step)
	}

	res, err := bundle.Run(Step, bundle.Options{
		Entry:    entry,
		Outfile:  b.opts.Output,
		Minify:   b.opts.Minify,
		Engines:  b.engines,
		External: externalAssets,
	})
	if err != nil {
		b.logger.Error(ctx, err, "Error in CSS pipeline", "entry", entry)
		return err
	}
	for _, w := range res.Warnings {
		b.logger.Warn(ctx, nil, w.Message, "file", w.File, "line", w.Line)
	}

	if err := assets.WriteFileAtomic(b.opts.Output, res.Contents, 0644); err != nil {
		return errors.FileOperationError("write", b.opts.Output, "failed to write stylesheet", err).WithStep(Step)
	}

	b.logger.Info(ctx, "Stylesheet built", "entry", entry, "output", b.opts.Output, "bytes", len(res.Contents))
	return nil
}
