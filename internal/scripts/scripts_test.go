package scripts

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestBuildBundlesAndDefersPages(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "app/js/app.js"), "import { add } from './math.js';\nconsole.log(add(1, 2));\n")
	write(t, filepath.Join(dir, "app/js/math.js"), "export const add = (a, b) => a + b;\n")
	write(t, filepath.Join(dir, "dist/index.html"), `<html><body><script type="module" src="js/app.js"></script></body></html>`)
	write(t, filepath.Join(dir, "dist/about.htm"), `<script src="js/app.js" type="module"></script>`)
	write(t, filepath.Join(dir, "dist/plain.html"), `<p>no scripts</p>`)
	write(t, filepath.Join(dir, "dist/sub/nested.html"), `<script type="module" src="../js/app.js"></script>`)

	b, err := New(Options{
		Entry:   filepath.Join(dir, "app/js/app.js"),
		Output:  filepath.Join(dir, "dist/js/app.js"),
		Minify:  true,
		Target:  "es2020",
		HTMLDir: filepath.Join(dir, "dist"),
	}, nil)
	require.NoError(t, err)

	plainInfo, err := os.Stat(filepath.Join(dir, "dist/plain.html"))
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, b.Build(context.Background()))

	bundle := read(t, filepath.Join(dir, "dist/js/app.js"))
	assert.NotContains(t, bundle, "import")
	assert.NotContains(t, bundle, "export")

	assert.Equal(t, `<html><body><script defer src="js/app.js"></script></body></html>`, read(t, filepath.Join(dir, "dist/index.html")))
	assert.Equal(t, `<script src="js/app.js" defer></script>`, read(t, filepath.Join(dir, "dist/about.htm")))
	assert.Equal(t, `<script defer src="../js/app.js"></script>`, read(t, filepath.Join(dir, "dist/sub/nested.html")))

	after, err := os.Stat(filepath.Join(dir, "dist/plain.html"))
	require.NoError(t, err)
	assert.Equal(t, plainInfo.ModTime(), after.ModTime(), "unchanged pages are not rewritten")
}

func TestBuildFailureSkipsPageRewrite(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "app/js/app.js"), "import './missing.js';\n")
	page := `<script type="module" src="js/app.js"></script>`
	write(t, filepath.Join(dir, "dist/index.html"), page)

	b, err := New(Options{
		Entry:   filepath.Join(dir, "app/js/app.js"),
		Output:  filepath.Join(dir, "dist/js/app.js"),
		HTMLDir: filepath.Join(dir, "dist"),
	}, nil)
	require.NoError(t, err)

	require.Error(t, b.Build(context.Background()))
	assert.Equal(t, page, read(t, filepath.Join(dir, "dist/index.html")))
	assert.NoFileExists(t, filepath.Join(dir, "dist/js/app.js"))
}

func TestNoModuleScriptSurvivesBuild(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "app/js/app.js"), "console.log('x');\n")
	pages := []string{"a.html", "b.html", "blog/post.html", "blog/2024/deep.htm"}
	for _, name := range pages {
		write(t, filepath.Join(dir, "dist", name),
			`<script type="module">inline()</script><script type=module src="js/app.js" async></script>`)
	}
	vendored := `<script type="module" src="index.js"></script>`
	write(t, filepath.Join(dir, "dist/node_modules/pkg/demo.html"), vendored)

	b, err := New(Options{
		Entry:   filepath.Join(dir, "app/js/app.js"),
		Output:  filepath.Join(dir, "dist/js/app.js"),
		HTMLDir: filepath.Join(dir, "dist"),
	}, nil)
	require.NoError(t, err)
	require.NoError(t, b.Build(context.Background()))

	for _, name := range pages {
		page := read(t, filepath.Join(dir, "dist", name))
		assert.False(t, strings.Contains(page, `type="module"`) || strings.Contains(page, "type=module"), name)
	}
	assert.Equal(t, vendored, read(t, filepath.Join(dir, "dist/node_modules/pkg/demo.html")))
}

func TestNewRejectsUnknownTarget(t *testing.T) {
	_, err := New(Options{Target: "es1999"}, nil)
	assert.Error(t, err)
}
