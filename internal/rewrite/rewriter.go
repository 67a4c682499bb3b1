// Package rewrite copies unbundled development assets into the output tree.
// References into node_modules are re-pointed at a vendored copy inside the
// output, and every referenced package is vendored once.
package rewrite

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/conneroisu/frontbuild/internal/assets"
	"github.com/conneroisu/frontbuild/internal/errors"
	"github.com/conneroisu/frontbuild/internal/logging"
)

// nodeModulesRef matches a relative reference into node_modules and captures
// the ../ run and the package name, including an optional npm scope.
var nodeModulesRef = regexp.MustCompile(`((?:\.\./)+)node_modules/((?:@[A-Za-z0-9._-]+/)?[A-Za-z0-9._-]+)`)

// Options configures a Rewriter.
type Options struct {
	NodeModules   string
	VendorDir     string
	StripComments bool
	Workers       int
}

// Stats counts the files handled by one CopyDevAssets run.
type Stats struct {
	Files     int64
	Rewritten int64
	Verbatim  int64
	Failed    int64
	Vendored  int64
}

// Rewriter implements the development asset copy.
type Rewriter struct {
	opts     Options
	logger   logging.Logger
	registry *VendorRegistry
}

// New creates a Rewriter. One Rewriter corresponds to one run: its vendor
// registry remembers which packages were already copied.
func New(opts Options, logger logging.Logger) *Rewriter {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if opts.Workers < 1 {
		opts.Workers = 4
	}
	return &Rewriter{
		opts:     opts,
		logger:   logger.WithComponent("rewrite"),
		registry: NewVendorRegistry(opts.NodeModules, opts.VendorDir, logger),
	}
}

// Registry exposes the vendor registry shared by every file of the run.
func (r *Rewriter) Registry() *VendorRegistry {
	return r.registry
}

// CopyDevAssets mirrors every regular file under src into dst. Per-file
// failures are logged and counted; they never stop the other files.
func (r *Rewriter) CopyDevAssets(ctx context.Context, src, dst string) Stats {
	var stats Stats

	if _, err := os.Stat(src); err != nil {
		r.logger.Error(ctx, err, "Source directory unavailable", "src", src)
		atomic.AddInt64(&stats.Failed, 1)
		return stats
	}

	semaphore := make(chan struct{}, r.opts.Workers)
	var wg sync.WaitGroup

	walkErr := filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			r.logger.Warn(ctx, err, "Skipping unreadable path", "path", path)
			atomic.AddInt64(&stats.Failed, 1)
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		wg.Add(1)
		semaphore <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-semaphore }()

			atomic.AddInt64(&stats.Files, 1)
			rewritten, err := r.copyFile(ctx, path, target, &stats)
			switch {
			case err != nil:
				atomic.AddInt64(&stats.Failed, 1)
				r.logger.Error(ctx, err, "Failed to copy dev asset", "src", path, "dst", target)
			case rewritten:
				atomic.AddInt64(&stats.Rewritten, 1)
			default:
				atomic.AddInt64(&stats.Verbatim, 1)
			}
		}()
		return nil
	})
	wg.Wait()

	if walkErr != nil {
		r.logger.Warn(ctx, walkErr, "Dev asset copy interrupted", "src", src)
	}

	r.logger.Debug(ctx, "Copied dev assets",
		"src", src,
		"dst", dst,
		"files", stats.Files,
		"rewritten", stats.Rewritten,
		"failed", stats.Failed)
	return stats
}

// copyFile handles one file and reports whether it was written rewritten
// rather than copied verbatim.
func (r *Rewriter) copyFile(ctx context.Context, src, dst string, stats *Stats) (bool, error) {
	raw, err := os.ReadFile(src)
	if err != nil {
		return false, errors.FileOperationError("read", src, "failed to read dev asset", err)
	}

	text, ok := decodeText(raw)
	if !ok {
		return false, copyVerbatim(src, dst)
	}

	if r.opts.StripComments {
		text = StripComments(text, syntaxFor(src))
	}

	if !nodeModulesRef.Match(text) {
		return false, copyVerbatim(src, dst)
	}

	out, err := r.Rewrite(ctx, text, filepath.Dir(dst))
	if err != nil {
		return false, err
	}
	for _, pkg := range ReferencedPackages(text) {
		copied, err := r.registry.Ensure(ctx, pkg)
		if err != nil {
			r.logger.Warn(ctx, err, "Vendoring failed", "package", pkg, "file", src)
			continue
		}
		if copied {
			atomic.AddInt64(&stats.Vendored, 1)
		}
	}

	info, err := os.Stat(src)
	if err != nil {
		return false, errors.FileOperationError("stat", src, "failed to stat dev asset", err)
	}
	if err := assets.WriteFileAtomic(dst, out, info.Mode().Perm()); err != nil {
		return false, errors.FileOperationError("write", dst, "failed to write dev asset", err)
	}
	return true, nil
}

// Rewrite re-points every node_modules reference in text so it resolves from
// destDir to the vendored copy of the package.
func (r *Rewriter) Rewrite(_ context.Context, text []byte, destDir string) ([]byte, error) {
	prefix, err := relativeVendorPath(destDir, r.opts.VendorDir)
	if err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeInvalidPath, "cannot relate destination to vendor dir", err).
			WithLocation(destDir, 0, 0)
	}

	return nodeModulesRef.ReplaceAllFunc(text, func(match []byte) []byte {
		sub := nodeModulesRef.FindSubmatch(match)
		return []byte(prefix + "/" + string(sub[2]))
	}), nil
}

// ReferencedPackages returns the distinct packages referenced in text, in
// order of first appearance.
func ReferencedPackages(text []byte) []string {
	seen := make(map[string]bool)
	var pkgs []string
	for _, m := range nodeModulesRef.FindAllSubmatch(text, -1) {
		pkg := string(m[2])
		if !seen[pkg] {
			seen[pkg] = true
			pkgs = append(pkgs, pkg)
		}
	}
	return pkgs
}

func relativeVendorPath(destDir, vendorDir string) (string, error) {
	absDest, err := filepath.Abs(destDir)
	if err != nil {
		return "", err
	}
	absVendor, err := filepath.Abs(vendorDir)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absDest, absVendor)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	// A bare "node_modules/x" would be read as a package specifier.
	if rel != "." && rel != ".." && !strings.HasPrefix(rel, "./") && !strings.HasPrefix(rel, "../") {
		rel = "./" + rel
	}
	return rel, nil
}

// decodeText strips a byte order mark and reports whether raw is UTF-8
// text. Binary files are left to the verbatim path.
func decodeText(raw []byte) ([]byte, bool) {
	if bytes.IndexByte(raw, 0) >= 0 && !hasUTF16BOM(raw) {
		return nil, false
	}

	text, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), raw)
	if err != nil || !utf8.Valid(text) {
		return nil, false
	}
	return text, true
}

func hasUTF16BOM(raw []byte) bool {
	return bytes.HasPrefix(raw, []byte{0xFE, 0xFF}) || bytes.HasPrefix(raw, []byte{0xFF, 0xFE})
}

func syntaxFor(path string) Syntax {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".css", ".scss", ".less":
		return SyntaxCSS
	default:
		return SyntaxJS
	}
}

func copyVerbatim(src, dst string) error {
	if err := assets.CopyFile(src, dst); err != nil {
		return errors.FileOperationError("copy", src, "failed to copy dev asset", err)
	}
	return nil
}
