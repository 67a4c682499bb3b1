// Package images copies the site images into the output tree, optionally
// recompressing them with a per-format encoder.
package images

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/conneroisu/frontbuild/internal/assets"
	"github.com/conneroisu/frontbuild/internal/errors"
	"github.com/conneroisu/frontbuild/internal/logging"
)

// Step is the pipeline step name of the image builder.
const Step = "images"

// Options configures a Builder.
type Options struct {
	Source        string
	Output        string
	Extensions    []string
	Minify        bool
	JPEGQuality   int
	PNGQualityMin float64
	PNGQualityMax float64
	Workers       int
}

// Stats counts the outcome of one image run.
type Stats struct {
	Processed    int64
	Failed       int64
	EncodeFailed int64
	BytesIn      int64
	BytesOut     int64
}

// Builder optimizes one image directory.
type Builder struct {
	opts     Options
	allowed  map[string]bool
	encoders map[string]Encoder
	copier   *assets.Copier
	logger   logging.Logger
}

// New creates an image builder with the default encoder per format.
func New(opts Options, logger logging.Logger) *Builder {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	if opts.JPEGQuality == 0 {
		opts.JPEGQuality = 90
	}

	allowed := make(map[string]bool, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		allowed[normalizeExt(ext)] = true
	}

	jpegEnc := JPEGEncoder{Quality: opts.JPEGQuality}
	return &Builder{
		opts:    opts,
		allowed: allowed,
		encoders: map[string]Encoder{
			"jpg":  jpegEnc,
			"jpeg": jpegEnc,
			"png":  PNGEncoder{MinQuality: opts.PNGQualityMin, MaxQuality: opts.PNGQualityMax},
			"svg":  NewSVGEncoder(),
			"gif":  Passthrough,
			"webp": Passthrough,
		},
		copier: assets.NewCopier(logger),
		logger: logger.WithComponent(Step),
	}
}

// Build copies or optimizes the images. A missing source directory is
// returned as an error; failures on single files are logged and counted.
func (b *Builder) Build(ctx context.Context) (Stats, error) {
	if !b.opts.Minify {
		copied, err := b.copier.CopyTree(ctx, b.opts.Source, b.opts.Output)
		return Stats{Processed: copied.Copied, Failed: copied.Failed, BytesIn: copied.Bytes, BytesOut: copied.Bytes}, err
	}

	var stats Stats
	if _, err := os.Stat(b.opts.Source); err != nil {
		return stats, errors.FileOperationError("stat", b.opts.Source, "image directory unavailable", err).WithStep(Step)
	}

	semaphore := make(chan struct{}, b.opts.Workers)
	var wg sync.WaitGroup

	err := filepath.WalkDir(b.opts.Source, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			b.logger.Warn(ctx, walkErr, "Skipping unreadable path", "path", path)
			atomic.AddInt64(&stats.Failed, 1)
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		ext := normalizeExt(filepath.Ext(path))
		if !b.allowed[ext] {
			return nil
		}

		rel, err := filepath.Rel(b.opts.Source, path)
		if err != nil {
			return err
		}
		target := filepath.Join(b.opts.Output, rel)

		wg.Add(1)
		semaphore <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-semaphore }()

			if err := b.optimize(ctx, path, target, ext, &stats); err != nil {
				atomic.AddInt64(&stats.Failed, 1)
				b.logger.Error(ctx, err, "Failed to optimize image", "file", path)
			}
		}()
		return nil
	})
	wg.Wait()

	b.logger.Info(ctx, "Images optimized",
		"processed", stats.Processed,
		"failed", stats.Failed,
		"bytes_in", stats.BytesIn,
		"bytes_out", stats.BytesOut)
	return stats, err
}

// optimize writes the smaller of the original and encoded rendition. An
// encoder error falls back to the original bytes.
func (b *Builder) optimize(ctx context.Context, src, dst, ext string, stats *Stats) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.FileOperationError("read", src, "failed to read image", err).WithStep(Step)
	}

	out := data
	if enc, ok := b.encoders[ext]; ok {
		encoded, encErr := enc.Encode(data)
		switch {
		case encErr != nil:
			b.logger.Warn(ctx, encErr, "Encoder failed, keeping original", "file", src)
			atomic.AddInt64(&stats.EncodeFailed, 1)
		case len(encoded) > 0 && len(encoded) < len(data):
			out = encoded
		}
	}

	if err := assets.WriteFileAtomic(dst, out, 0644); err != nil {
		return errors.NewIOError(errors.ErrCodeImageFailed, "failed to write image", err).
			WithLocation(dst, 0, 0).
			WithStep(Step)
	}

	atomic.AddInt64(&stats.Processed, 1)
	atomic.AddInt64(&stats.BytesIn, int64(len(data)))
	atomic.AddInt64(&stats.BytesOut, int64(len(out)))
	return nil
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
