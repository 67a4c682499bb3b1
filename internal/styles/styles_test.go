package styles

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/frontbuild/internal/bundle"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

type fakeFramework struct {
	calls int
	err   error
}

func (f *fakeFramework) Name() string { return "fake" }

func (f *fakeFramework) Compile(_ context.Context, in, out string) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return err
	}
	return os.WriteFile(out, append([]byte(".utility { display: flex; }\n"), data...), 0644)
}

func (f *fakeFramework) Watch(ctx context.Context, _, _ string) error {
	<-ctx.Done()
	return nil
}

func TestBuildMergesImportsAndStripsComments(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "app/css/index.css"), "@import \"./base.css\";\n/* layout */\n.card { .title { font-weight: bold; } }\n")
	write(t, filepath.Join(dir, "app/css/base.css"), "/* reset */\nbody { margin: 0; background: url(../img/bg.png); }\n")

	b, err := New(Options{
		Entry:   filepath.Join(dir, "app/css/index.css"),
		Output:  filepath.Join(dir, "dist/css/index.css"),
		Minify:  true,
		Targets: []string{"chrome100", "firefox100", "safari15"},
	}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Build(context.Background()))

	out, err := os.ReadFile(filepath.Join(dir, "dist/css/index.css"))
	require.NoError(t, err)
	css := string(out)

	assert.Contains(t, css, "margin:0")
	assert.Contains(t, css, "../img/bg.png")
	assert.Contains(t, css, ".card .title{")
	assert.NotContains(t, css, "/*")
}

func TestBuildFailureKeepsPreviousOutput(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "dist/css/index.css")
	write(t, output, "previous")
	write(t, filepath.Join(dir, "app/css/index.css"), "@import \"./missing.css\";\n")

	b, err := New(Options{Entry: filepath.Join(dir, "app/css/index.css"), Output: output}, nil)
	require.NoError(t, err)

	err = b.Build(context.Background())
	require.Error(t, err)

	var bundleErr *bundle.Error
	assert.ErrorAs(t, err, &bundleErr)

	got, readErr := os.ReadFile(output)
	require.NoError(t, readErr)
	assert.Equal(t, "previous", string(got))
}

func TestBuildMissingEntry(t *testing.T) {
	dir := t.TempDir()
	b, err := New(Options{Entry: filepath.Join(dir, "nope.css"), Output: filepath.Join(dir, "out.css")}, nil)
	require.NoError(t, err)
	assert.Error(t, b.Build(context.Background()))
	assert.NoFileExists(t, filepath.Join(dir, "out.css"))
}

func TestBuildWithFramework(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "app/css/index.css"), ".own { color: blue; }\n")
	fw := &fakeFramework{}

	b, err := New(Options{
		Entry:           filepath.Join(dir, "app/css/index.css"),
		Output:          filepath.Join(dir, "dist/css/index.css"),
		Minify:          true,
		Framework:       fw,
		FrameworkInput:  filepath.Join(dir, "app/css/index.css"),
		FrameworkOutput: filepath.Join(dir, ".frontbuild/cache/framework.css"),
	}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Build(context.Background()))

	out, err := os.ReadFile(filepath.Join(dir, "dist/css/index.css"))
	require.NoError(t, err)
	assert.Equal(t, 1, fw.calls)
	assert.Contains(t, string(out), ".utility{display:flex}")
	assert.Contains(t, string(out), ".own{color:")
}

func TestBuildFrameworkFailure(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "dist/css/index.css")
	fw := &fakeFramework{err: errors.New("tailwind exploded")}

	b, err := New(Options{
		Entry:           filepath.Join(dir, "app/css/index.css"),
		Output:          output,
		Framework:       fw,
		FrameworkInput:  filepath.Join(dir, "app/css/index.css"),
		FrameworkOutput: filepath.Join(dir, "cache.css"),
	}, nil)
	require.NoError(t, err)

	assert.EqualError(t, b.Build(context.Background()), "tailwind exploded")
	assert.NoFileExists(t, output)
}

func TestNewRejectsBadTarget(t *testing.T) {
	_, err := New(Options{Targets: []string{"mosaic1"}}, nil)
	assert.Error(t, err)
}
