// Package testutils builds throwaway site projects for tests.
package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/frontbuild/internal/config"
)

// Project is a site tree rooted in a temporary directory.
type Project struct {
	t    *testing.T
	Root string
}

// DefaultFiles is the smallest site every workflow can build: one page with
// an include, one stylesheet with an import and one script module.
var DefaultFiles = map[string]string{
	"app/index.html": `<!doctype html>
<html>
<head><link rel="stylesheet" href="css/index.css"></head>
<body>
<!--#include file="parts/header.html" -->
<main>home</main>
<script type="module" src="js/app.js"></script>
</body>
</html>
`,
	"app/parts/header.html": `<header>site header</header>`,
	"app/css/index.css": `@import "./base.css";
/* page styles */
main { color: red; }
`,
	"app/css/base.css": `body { margin: 0; }
`,
	"app/js/app.js": `import { greet } from "./greet.js";
greet("world");
`,
	"app/js/greet.js": `export function greet(name) {
  console.log("hello " + name);
}
`,
}

// CreateTempProject creates a project holding DefaultFiles.
func CreateTempProject(t *testing.T) *Project {
	t.Helper()
	p := &Project{t: t, Root: t.TempDir()}
	for rel, content := range DefaultFiles {
		p.WriteFile(rel, content)
	}
	return p
}

// CreateEmptyProject creates a project without any files.
func CreateEmptyProject(t *testing.T) *Project {
	t.Helper()
	return &Project{t: t, Root: t.TempDir()}
}

// Path joins a slash separated relative path onto the project root.
func (p *Project) Path(rel string) string {
	return filepath.Join(p.Root, filepath.FromSlash(rel))
}

// WriteFile writes content to rel, creating parent directories.
func (p *Project) WriteFile(rel, content string) string {
	p.t.Helper()
	return p.WriteBytes(rel, []byte(content))
}

// WriteBytes writes data to rel, creating parent directories.
func (p *Project) WriteBytes(rel string, data []byte) string {
	p.t.Helper()
	path := p.Path(rel)
	require.NoError(p.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(p.t, os.WriteFile(path, data, 0o644))
	return path
}

// ReadFile returns the content of rel.
func (p *Project) ReadFile(rel string) string {
	p.t.Helper()
	data, err := os.ReadFile(p.Path(rel))
	require.NoError(p.t, err)
	return string(data)
}

// Exists reports whether rel exists.
func (p *Project) Exists(rel string) bool {
	_, err := os.Stat(p.Path(rel))
	return err == nil
}

// Files lists every regular file below rel as slash separated paths relative
// to rel.
func (p *Project) Files(rel string) []string {
	p.t.Helper()
	base := p.Path(rel)
	var files []string
	err := filepath.WalkDir(base, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			r, _ := filepath.Rel(base, path)
			files = append(files, filepath.ToSlash(r))
		}
		return nil
	})
	require.NoError(p.t, err)
	return files
}

// CreateTestConfig loads the default configuration for the project, with
// overrides applied on top. Keys use the configuration file names, for
// example "images.minify".
func CreateTestConfig(t *testing.T, root string, overrides map[string]interface{}) *config.Config {
	t.Helper()
	v := viper.New()
	v.Set("paths.root", root)
	v.Set("server.host", "127.0.0.1")
	v.Set("server.port", 0)
	v.Set("server.metrics", false)
	v.Set("log.level", "error")
	for key, value := range overrides {
		v.Set(key, value)
	}
	cfg, err := config.LoadFrom(v)
	require.NoError(t, err)
	return cfg
}
