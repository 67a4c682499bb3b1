package bundle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestRunBundlesCSSImports(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "app/css/index.css"), "@import \"./base.css\";\n/* main */\n.main { color: red; }\n")
	write(t, filepath.Join(dir, "app/css/base.css"), "/* base */\n.base { margin: 0; }\n")

	res, err := Run("styles", Options{
		Entry:   filepath.Join(dir, "app/css/index.css"),
		Outfile: filepath.Join(dir, "dist/css/index.css"),
		Minify:  true,
	})
	require.NoError(t, err)

	out := string(res.Contents)
	assert.Contains(t, out, ".base{margin:0}")
	assert.Contains(t, out, ".main{color:red}")
	assert.NotContains(t, out, "/*")
	assert.NoFileExists(t, filepath.Join(dir, "dist/css/index.css"), "Run never writes")
}

func TestRunBundlesJavaScriptAsIIFE(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "app/js/app.js"), "import { greet } from './greet.js';\ngreet('world');\n")
	write(t, filepath.Join(dir, "app/js/greet.js"), "export function greet(name) { console.log('hello ' + name); }\n")

	res, err := Run("scripts", Options{
		Entry:   filepath.Join(dir, "app/js/app.js"),
		Outfile: filepath.Join(dir, "dist/js/app.js"),
		Format:  api.FormatIIFE,
		Target:  api.ES2020,
	})
	require.NoError(t, err)

	out := string(res.Contents)
	assert.Contains(t, out, "hello ")
	assert.NotContains(t, out, "import ")
	assert.NotContains(t, out, "export ")
}

func TestRunReportsDiagnostics(t *testing.T) {
	dir := t.TempDir()
	write(t, filepath.Join(dir, "app.js"), "const = 1;\n")

	_, err := Run("scripts", Options{
		Entry:   filepath.Join(dir, "app.js"),
		Outfile: filepath.Join(dir, "out.js"),
	})
	require.Error(t, err)

	var bundleErr *Error
	require.ErrorAs(t, err, &bundleErr)
	require.NotEmpty(t, bundleErr.Diagnostics())

	d := bundleErr.Diagnostics()[0]
	assert.Equal(t, "scripts", d.Step)
	assert.Equal(t, 1, d.Line)
	assert.Contains(t, d.File, "app.js")
}

func TestParseEngines(t *testing.T) {
	engines, err := ParseEngines([]string{"chrome100", "Safari15.4", " firefox100 "})
	require.NoError(t, err)
	assert.Equal(t, []api.Engine{
		{Name: api.EngineChrome, Version: "100"},
		{Name: api.EngineSafari, Version: "15.4"},
		{Name: api.EngineFirefox, Version: "100"},
	}, engines)

	_, err = ParseEngines([]string{"netscape4"})
	assert.Error(t, err)
	_, err = ParseEngines([]string{"chrome"})
	assert.Error(t, err)
}

func TestParseTarget(t *testing.T) {
	target, err := ParseTarget("ES2017")
	require.NoError(t, err)
	assert.Equal(t, api.ES2017, target)

	target, err = ParseTarget("")
	require.NoError(t, err)
	assert.Equal(t, api.ES2020, target)

	_, err = ParseTarget("es3")
	assert.Error(t, err)
}
