package rewrite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/conneroisu/frontbuild/internal/assets"
	"github.com/conneroisu/frontbuild/internal/errors"
	"github.com/conneroisu/frontbuild/internal/logging"
)

type vendorTask struct {
	done   chan struct{}
	err    error
	copied bool
}

// VendorRegistry copies node_modules packages into the output tree, at most
// once per package. Later requesters for a package wait for the first
// requester's copy to finish and share its result.
type VendorRegistry struct {
	source string
	dest   string
	copier *assets.Copier
	logger logging.Logger

	mu    sync.Mutex
	tasks map[string]*vendorTask
}

// NewVendorRegistry creates a registry copying from source (the project's
// node_modules) into dest (the vendored location inside the output).
func NewVendorRegistry(source, dest string, logger logging.Logger) *VendorRegistry {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &VendorRegistry{
		source: source,
		dest:   dest,
		copier: assets.NewCopier(logger),
		logger: logger.WithComponent("vendor"),
		tasks:  make(map[string]*vendorTask),
	}
}

// Ensure makes sure pkg is present in the vendored location. It reports
// whether this call performed the copy.
func (v *VendorRegistry) Ensure(ctx context.Context, pkg string) (bool, error) {
	if !validPackage(pkg) {
		return false, errors.NewValidationError(errors.ErrCodeInvalidPath, fmt.Sprintf("invalid package name %q", pkg))
	}

	v.mu.Lock()
	if task, ok := v.tasks[pkg]; ok {
		v.mu.Unlock()
		select {
		case <-task.done:
			return false, task.err
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	task := &vendorTask{done: make(chan struct{})}
	v.tasks[pkg] = task
	v.mu.Unlock()

	task.copied, task.err = v.vendor(ctx, pkg)
	close(task.done)

	return task.copied, task.err
}

func (v *VendorRegistry) vendor(ctx context.Context, pkg string) (bool, error) {
	target := filepath.Join(v.dest, filepath.FromSlash(pkg))
	if _, err := os.Stat(target); err == nil {
		return false, nil
	}

	src := filepath.Join(v.source, filepath.FromSlash(pkg))
	stats, err := v.copier.CopyTree(ctx, src, target)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeIO, errors.ErrCodeVendorFailed, "failed to vendor "+pkg).
			WithLocation(src, 0, 0)
	}
	if stats.Failed > 0 {
		return true, errors.NewIOError(errors.ErrCodeVendorFailed,
			fmt.Sprintf("vendored %s with %d failed files", pkg, stats.Failed), nil).WithLocation(src, 0, 0)
	}

	v.logger.Info(ctx, "Vendored package", "package", pkg, "files", stats.Copied, "dst", target)
	return true, nil
}

// Vendored returns the packages requested so far, sorted.
func (v *VendorRegistry) Vendored() []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	pkgs := make([]string, 0, len(v.tasks))
	for pkg := range v.tasks {
		pkgs = append(pkgs, pkg)
	}
	sort.Strings(pkgs)
	return pkgs
}

func validPackage(pkg string) bool {
	if pkg == "" {
		return false
	}
	for _, part := range splitPackage(pkg) {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}

func splitPackage(pkg string) []string {
	if pkg[0] == '@' {
		for i := 1; i < len(pkg); i++ {
			if pkg[i] == '/' {
				return []string{pkg[1:i], pkg[i+1:]}
			}
		}
		return []string{""}
	}
	return []string{pkg}
}
