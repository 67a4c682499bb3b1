package framework

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/frontbuild/internal/errors"
	"github.com/conneroisu/frontbuild/internal/logging"
)

const (
	tailwindName = "tailwindcss"
	waitDelay    = 2 * time.Second
)

// Tailwind drives the tailwindcss CLI, either the standalone binary or the
// npm package through npx.
type Tailwind struct {
	binary  string
	workDir string
	logger  logging.Logger

	once    sync.Once
	command []string
	lookErr error
}

// NewTailwind creates a Tailwind compiler. An empty binary selects
// tailwindcss from PATH, falling back to npx.
func NewTailwind(binary, workDir string, logger logging.Logger) *Tailwind {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Tailwind{
		binary:  binary,
		workDir: workDir,
		logger:  logger.WithComponent("tailwind"),
	}
}

func (t *Tailwind) Name() string {
	return "tailwind"
}

// Compile runs a single tailwindcss build of in into out.
func (t *Tailwind) Compile(ctx context.Context, in, out string) error {
	cmd, err := t.cmd(ctx, in, out)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return errors.FileOperationError("mkdir", out, "failed to create framework output directory", err)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return errors.NewToolError(tailwindName, output, err).WithLocation(in, 0, 0)
	}

	t.logger.Debug(ctx, "Framework stylesheet compiled", "input", in, "output", out)
	return nil
}

// Watch runs tailwindcss in watch mode until ctx is cancelled. Its output is
// forwarded to the logger line by line.
func (t *Tailwind) Watch(ctx context.Context, in, out string) error {
	cmd, err := t.cmd(ctx, in, out, "--watch")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return errors.FileOperationError("mkdir", out, "failed to create framework output directory", err)
	}

	// The CLI leaves watch mode when stdin closes, so keep it open until ctx ends.
	stdin, stdinWriter := io.Pipe()
	cmd.Stdin = stdin
	go func() {
		<-ctx.Done()
		stdinWriter.Close()
	}()

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	go t.forward(ctx, pr)

	t.logger.Info(ctx, "Framework watch mode started", "input", in, "output", out)
	err = cmd.Run()
	pw.Close()

	if ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return errors.NewToolError(tailwindName, nil, err).WithLocation(in, 0, 0)
	}
	return nil
}

func (t *Tailwind) forward(ctx context.Context, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			t.logger.Debug(ctx, line)
		}
	}
}

func (t *Tailwind) cmd(ctx context.Context, in, out string, extra ...string) (*exec.Cmd, error) {
	t.once.Do(t.resolve)
	if t.lookErr != nil {
		return nil, t.lookErr
	}

	args := append([]string{}, t.command[1:]...)
	args = append(args, "-i", in, "-o", out)
	args = append(args, extra...)

	cmd := exec.CommandContext(ctx, t.command[0], args...)
	cmd.Dir = t.workDir
	cmd.WaitDelay = waitDelay
	return cmd, nil
}

func (t *Tailwind) resolve() {
	if fields := strings.Fields(t.binary); len(fields) > 0 {
		t.command = fields
		return
	}

	if path, err := exec.LookPath(tailwindName); err == nil {
		t.command = []string{path}
		return
	}

	if _, err := exec.LookPath("npx"); err == nil {
		t.command = []string{"npx", tailwindName}
		return
	}

	t.lookErr = errors.ToolMissingError(tailwindName, exec.ErrNotFound)
}
