// Package assets mirrors source directories into the output tree and provides
// the file writing primitives shared by the builders.
package assets

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/conneroisu/frontbuild/internal/errors"
	"github.com/conneroisu/frontbuild/internal/logging"
)

// Stats counts the outcome of a tree operation.
type Stats struct {
	Copied int64
	Failed int64
	Bytes  int64
}

// Add merges other into s.
func (s *Stats) Add(other Stats) {
	atomic.AddInt64(&s.Copied, other.Copied)
	atomic.AddInt64(&s.Failed, other.Failed)
	atomic.AddInt64(&s.Bytes, other.Bytes)
}

// Copier copies directory trees file by file.
type Copier struct {
	logger logging.Logger
}

// NewCopier creates a copier that reports per-file failures to logger.
func NewCopier(logger logging.Logger) *Copier {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Copier{logger: logger.WithComponent("assets")}
}

// CopyTree mirrors src into dst. A missing src is returned as an IO error;
// failures on individual files are logged, counted and skipped.
func (c *Copier) CopyTree(ctx context.Context, src, dst string) (Stats, error) {
	var stats Stats

	info, err := os.Stat(src)
	if err != nil {
		return stats, errors.FileOperationError("stat", src, "source directory unavailable", err)
	}
	if !info.IsDir() {
		return stats, errors.NewIOError(errors.ErrCodeInvalidPath, fmt.Sprintf("%s is not a directory", src), nil).
			WithLocation(src, 0, 0)
	}

	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if walkErr != nil {
			c.logger.Warn(ctx, walkErr, "Skipping unreadable path", "path", path)
			stats.Failed++
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				c.logger.Error(ctx, err, "Failed to create directory", "path", target)
				stats.Failed++
				return fs.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		n, err := copyFile(path, target)
		if err != nil {
			c.logger.Error(ctx, err, "Failed to copy file", "src", path, "dst", target)
			stats.Failed++
			return nil
		}
		stats.Copied++
		stats.Bytes += n
		return nil
	})
	if err != nil {
		return stats, err
	}

	c.logger.Debug(ctx, "Copied tree", "src", src, "dst", dst, "files", stats.Copied, "failed", stats.Failed)
	return stats, nil
}

// CopyFile copies one regular file byte for byte, creating parent
// directories and keeping the source permission bits.
func CopyFile(src, dst string) error {
	_, err := copyFile(src, dst)
	return err
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	return n, err
}
