// Package precompress writes brotli-compressed siblings of text assets so a
// static host can serve them with Content-Encoding: br.
package precompress

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/andybalholm/brotli"

	"github.com/conneroisu/frontbuild/internal/assets"
	"github.com/conneroisu/frontbuild/internal/errors"
	"github.com/conneroisu/frontbuild/internal/logging"
)

// Step is the pipeline step name.
const Step = "precompress"

// Extensions lists the file types that are compressed.
var Extensions = []string{".js", ".css", ".html", ".svg", ".json"}

// Stats summarizes one run.
type Stats struct {
	Files      int64
	Failed     int64
	Original   int64
	Compressed int64
}

// Compressor compresses a directory tree in place.
type Compressor struct {
	Level   int
	Workers int
	logger  logging.Logger
}

// New creates a Compressor at the best brotli level.
func New(workers int, logger logging.Logger) *Compressor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if workers < 1 {
		workers = 4
	}
	return &Compressor{
		Level:   brotli.BestCompression,
		Workers: workers,
		logger:  logger.WithComponent(Step),
	}
}

// Dir writes <file>.br next to every matching file under dir. Originals are
// kept. Empty files are skipped.
func (c *Compressor) Dir(ctx context.Context, dir string) (Stats, error) {
	var stats Stats

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			c.logger.Warn(ctx, err, "Walk error", "path", path)
			return nil
		}
		if d.IsDir() || !matches(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return stats, errors.FileOperationError("walk", dir, "failed to walk output", err).WithStep(Step)
	}

	semaphore := make(chan struct{}, c.Workers)
	var wg sync.WaitGroup

	for _, path := range files {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			original, compressed, err := c.File(path)
			if err != nil {
				atomic.AddInt64(&stats.Failed, 1)
				c.logger.Error(ctx, err, "Brotli compression failed", "file", path)
				return
			}
			if original == 0 {
				return
			}
			atomic.AddInt64(&stats.Files, 1)
			atomic.AddInt64(&stats.Original, original)
			atomic.AddInt64(&stats.Compressed, compressed)
		}(path)
	}
	wg.Wait()

	c.logger.Info(ctx, "Brotli precompression finished",
		"files", stats.Files,
		"failed", stats.Failed,
		"original", stats.Original,
		"compressed", stats.Compressed)

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	if stats.Failed > 0 {
		return stats, errors.StepError(Step, "some files failed to compress", nil)
	}
	return stats, nil
}

// File writes path+".br" and returns the original and compressed sizes.
func (c *Compressor) File(path string) (int64, int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, errors.FileOperationError("read", path, "failed to read", err)
	}
	if len(data) == 0 {
		return 0, 0, nil
	}

	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, c.Level)
	if _, err := w.Write(data); err != nil {
		return 0, 0, errors.NewIOError("ERR_FILE_COMPRESS", "failed to compress", err).WithLocation(path, 0, 0)
	}
	if err := w.Close(); err != nil {
		return 0, 0, errors.NewIOError("ERR_FILE_COMPRESS", "failed to compress", err).WithLocation(path, 0, 0)
	}

	if err := assets.WriteFileAtomic(path+".br", buf.Bytes(), 0644); err != nil {
		return 0, 0, errors.FileOperationError("write", path+".br", "failed to write compressed file", err)
	}
	return int64(len(data)), int64(buf.Len()), nil
}

func matches(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}
