// Package framework runs an optional CSS framework compiler ahead of the
// style pipeline. The compiler is selected by configuration and injected into
// the style builder; a nil Compiler means no framework is in use.
package framework

import (
	"context"
	"fmt"

	"github.com/conneroisu/frontbuild/internal/config"
	"github.com/conneroisu/frontbuild/internal/errors"
	"github.com/conneroisu/frontbuild/internal/logging"
)

// Compiler turns a framework source stylesheet into plain CSS.
type Compiler interface {
	Name() string
	// Compile writes the compiled stylesheet for in to out once.
	Compile(ctx context.Context, in, out string) error
	// Watch keeps out up to date with in until ctx is cancelled.
	Watch(ctx context.Context, in, out string) error
}

// New returns the compiler selected by cfg, or nil when the framework is
// disabled. workDir is the directory the compiler runs in, normally the
// project root, so the framework finds its own configuration file.
func New(cfg config.FrameworkConfig, workDir string, logger logging.Logger) (Compiler, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Name {
	case "tailwind":
		return NewTailwind(cfg.Binary, workDir, logger), nil
	default:
		return nil, errors.ConfigurationError("framework.name", fmt.Sprintf("unsupported CSS framework %q", cfg.Name), cfg.Name)
	}
}
