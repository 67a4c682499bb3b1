package pages

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/conneroisu/frontbuild/internal/errors"
)

// MaxIncludeDepth bounds nested includes.
const MaxIncludeDepth = 16

var includeDirective = regexp.MustCompile(`<!--#include\s+(file|virtual)\s*=\s*(?:"([^"]*)"|'([^']*)')\s*-->`)

// Expander resolves server-side include directives. A file include resolves
// relative to the including file, a virtual include relative to Root.
type Expander struct {
	Root string
}

// Expand returns the content of path with every include replaced by the
// included file, recursively. A failed include is replaced by an HTML comment
// naming the problem and reported in the returned slice; the rest of the page
// is still expanded.
func (e *Expander) Expand(path string) ([]byte, []*errors.FrontbuildError) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, []*errors.FrontbuildError{includeError(path, 0, "cannot resolve page path", err)}
	}
	src, err := os.ReadFile(abs)
	if err != nil {
		return nil, []*errors.FrontbuildError{
			errors.FileOperationError("read", abs, "failed to read page", err).WithStep(Step),
		}
	}

	var failures []*errors.FrontbuildError
	out := e.expand(src, abs, []string{abs}, &failures)
	return out, failures
}

func (e *Expander) expand(src []byte, file string, stack []string, failures *[]*errors.FrontbuildError) []byte {
	matches := includeDirective.FindAllSubmatchIndex(src, -1)
	if len(matches) == 0 {
		return src
	}

	var buf bytes.Buffer
	buf.Grow(len(src))
	last := 0

	for _, m := range matches {
		buf.Write(src[last:m[0]])
		last = m[1]

		kind := string(src[m[2]:m[3]])
		target := quoted(src, m)
		line := bytes.Count(src[:m[0]], []byte("\n")) + 1

		content, err := e.include(kind, target, file, stack, failures)
		if err != nil {
			*failures = append(*failures, err.WithLocation(file, line, 0))
			fmt.Fprintf(&buf, "<!-- include error: %s -->", commentSafe(err.Message))
			continue
		}
		buf.Write(content)
	}
	buf.Write(src[last:])
	return buf.Bytes()
}

func (e *Expander) include(kind, target, from string, stack []string, failures *[]*errors.FrontbuildError) ([]byte, *errors.FrontbuildError) {
	if target == "" {
		return nil, includeError(from, 0, "empty include path", nil)
	}
	if len(stack) > MaxIncludeDepth {
		return nil, includeError(from, 0, fmt.Sprintf("include depth exceeds %d at %s", MaxIncludeDepth, target), nil)
	}

	resolved, err := e.resolve(kind, target, from)
	if err != nil {
		return nil, includeError(from, 0, err.Error(), nil)
	}
	for _, seen := range stack {
		if seen == resolved {
			return nil, includeError(from, 0, "include cycle through "+target, nil)
		}
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, includeError(from, 0, fmt.Sprintf("cannot read %s", target), err)
	}

	next := append(stack[:len(stack):len(stack)], resolved)
	return e.expand(data, resolved, next, failures), nil
}

func (e *Expander) resolve(kind, target, from string) (string, error) {
	root, err := filepath.Abs(e.Root)
	if err != nil {
		return "", err
	}

	var resolved string
	if kind == "virtual" {
		resolved = filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(target, "/")))
	} else {
		resolved = filepath.Join(filepath.Dir(from), filepath.FromSlash(target))
	}

	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s escapes the source directory", target)
	}
	return resolved, nil
}

func quoted(src []byte, m []int) string {
	if m[4] >= 0 {
		return string(src[m[4]:m[5]])
	}
	return string(src[m[6]:m[7]])
}

func includeError(file string, line int, msg string, cause error) *errors.FrontbuildError {
	return errors.NewBuildError(errors.ErrCodeIncludeFailed, msg, cause).
		WithLocation(file, line, 0).
		WithStep(Step)
}

// commentSafe keeps a message from terminating the surrounding comment.
func commentSafe(msg string) string {
	return strings.ReplaceAll(msg, "--", "- -")
}
