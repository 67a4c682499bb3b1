package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/frontbuild/internal/config"
	"github.com/conneroisu/frontbuild/internal/pipeline"
	"github.com/conneroisu/frontbuild/internal/testutils"
)

// newTestCommand returns a bare command whose output lands in the buffer.
func newTestCommand(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&out)
	c.SetContext(context.Background())
	return c, &out
}

// useProject points the global configuration at root.
func useProject(t *testing.T, root string) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("paths.root", root)
	viper.Set("server.metrics", false)
	viper.Set("log.level", "error")
}

func TestInitCommand(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "site")
	initMinimal = false

	c, out := newTestCommand(t)
	require.NoError(t, runInit(c, []string{dir}))

	for _, d := range scaffoldDirs {
		assert.DirExists(t, filepath.Join(dir, d))
	}
	for name := range scaffoldFiles {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	assert.Contains(t, out.String(), "create  app/index.html")

	v := viper.New()
	v.SetConfigFile(filepath.Join(dir, ".frontbuild.yml"))
	require.NoError(t, v.ReadInConfig())
	cfg, err := config.LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, "dist", cfg.Paths.Output)
	assert.Equal(t, 300*time.Millisecond, cfg.Watch.Debounce)
}

func TestInitDoesNotOverwrite(t *testing.T) {
	dir := t.TempDir()
	initMinimal = false
	page := filepath.Join(dir, "app", "index.html")
	require.NoError(t, os.MkdirAll(filepath.Dir(page), 0o755))
	require.NoError(t, os.WriteFile(page, []byte("mine"), 0o644))

	c, out := newTestCommand(t)
	require.NoError(t, runInit(c, []string{dir}))

	data, err := os.ReadFile(page)
	require.NoError(t, err)
	assert.Equal(t, "mine", string(data))
	assert.Contains(t, out.String(), "skip    app/index.html (exists)")
}

func TestInitMinimal(t *testing.T) {
	dir := t.TempDir()
	initMinimal = true
	t.Cleanup(func() { initMinimal = false })

	c, _ := newTestCommand(t)
	require.NoError(t, runInit(c, []string{dir}))

	assert.DirExists(t, filepath.Join(dir, "app", "css"))
	assert.FileExists(t, filepath.Join(dir, ".frontbuild.yml"))
	assert.NoFileExists(t, filepath.Join(dir, "app", "index.html"))
}

func TestInitRejectsBadArgument(t *testing.T) {
	c, _ := newTestCommand(t)
	assert.Error(t, runInit(c, []string{"bad\x00dir"}))
}

func TestConfigShow(t *testing.T) {
	useProject(t, t.TempDir())
	viper.Set("server.port", 4000)

	testCases := []struct {
		format string
		decode func([]byte, interface{}) error
	}{
		{"json", json.Unmarshal},
		{"yaml", func(data []byte, v interface{}) error {
			r := viper.New()
			r.SetConfigType("yaml")
			if err := r.ReadConfig(bytes.NewReader(data)); err != nil {
				return err
			}
			return r.Unmarshal(v)
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.format, func(t *testing.T) {
			configFormat = tc.format
			t.Cleanup(func() { configFormat = "yaml" })

			c, out := newTestCommand(t)
			require.NoError(t, runConfigShow(c, nil))

			var cfg config.Config
			require.NoError(t, tc.decode(out.Bytes(), &cfg))
			assert.Equal(t, 4000, cfg.Server.Port)
			assert.Equal(t, "app", cfg.Paths.Source)
		})
	}
}

func TestConfigShowRejectsFormat(t *testing.T) {
	configFormat = "toml"
	t.Cleanup(func() { configFormat = "yaml" })

	c, _ := newTestCommand(t)
	assert.Error(t, runConfigShow(c, nil))
}

func TestConfigValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yml")
	bad := filepath.Join(dir, "bad.yml")
	require.NoError(t, os.WriteFile(good, []byte("server:\n  port: 8080\n"), 0o644))
	require.NoError(t, os.WriteFile(bad, []byte("log:\n  format: xml\n"), 0o644))
	t.Cleanup(func() { configFile = "" })

	configFile = good
	c, out := newTestCommand(t)
	require.NoError(t, runConfigValidate(c, nil))
	assert.Contains(t, out.String(), "is valid")

	configFile = bad
	c, out = newTestCommand(t)
	assert.Error(t, runConfigValidate(c, nil))
	assert.Contains(t, out.String(), "log.format")

	configFile = filepath.Join(dir, "missing.yml")
	c, _ = newTestCommand(t)
	assert.Error(t, runConfigValidate(c, nil))
}

func TestBuildCommand(t *testing.T) {
	project := testutils.CreateTempProject(t)
	useProject(t, project.Root)

	c, out := newTestCommand(t)
	addReportFlags(c)
	require.NoError(t, runWorkflow(c, pipeline.ModeBuild))

	assert.True(t, project.Exists("dist/index.html"))
	assert.Contains(t, out.String(), "STEP")
	assert.Contains(t, out.String(), "build ok")
}

func TestBuildStrict(t *testing.T) {
	project := testutils.CreateTempProject(t)
	project.WriteFile("app/css/index.css", `@import "./missing.css";`)
	useProject(t, project.Root)

	c, out := newTestCommand(t)
	addReportFlags(c)
	require.NoError(t, runWorkflow(c, pipeline.ModeBuild), "failures only fail the command with --strict")
	assert.Contains(t, out.String(), "1 failed")

	c, _ = newTestCommand(t)
	addReportFlags(c)
	require.NoError(t, c.Flags().Set("strict", "true"))
	assert.Error(t, runWorkflow(c, pipeline.ModeBuild))
}

func TestBuildJSONReport(t *testing.T) {
	project := testutils.CreateTempProject(t)
	useProject(t, project.Root)

	c, out := newTestCommand(t)
	addReportFlags(c)
	require.NoError(t, c.Flags().Set("format", "json"))
	require.NoError(t, runWorkflow(c, pipeline.ModeNative))

	var report pipeline.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, pipeline.ModeNative, report.Mode)
	assert.NotEmpty(t, report.Steps)
}

func TestCommandAliases(t *testing.T) {
	testCases := map[string]*cobra.Command{
		"all":    buildCmd,
		"server": serveCmd,
		"start":  serveCmd,
		"i":      initCmd,
		"native": nativeCmd,
	}

	for alias, want := range testCases {
		t.Run(alias, func(t *testing.T) {
			got, _, err := rootCmd.Find([]string{alias})
			require.NoError(t, err)
			assert.Same(t, want, got)
		})
	}
}

func TestServeFlagsBound(t *testing.T) {
	for _, name := range []string{"port", "host", "open", "native", "no-build"} {
		assert.NotNil(t, serveCmd.Flags().Lookup(name), name)
	}
}

func TestVersionCommand(t *testing.T) {
	t.Cleanup(func() {
		versionFormat = "text"
		versionShort = false
	})

	versionFormat = "json"
	c, out := newTestCommand(t)
	c.Flags().Bool("detailed", false, "")
	require.NoError(t, runVersionCommand(c, nil))

	var info map[string]interface{}
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "toolchain")

	versionFormat = "text"
	c, out = newTestCommand(t)
	c.Flags().Bool("detailed", false, "")
	require.NoError(t, runVersionCommand(c, nil))
	assert.Contains(t, out.String(), "frontbuild ")

	versionFormat = "xml"
	c, _ = newTestCommand(t)
	c.Flags().Bool("detailed", false, "")
	assert.Error(t, runVersionCommand(c, nil))
}

func TestValidateArgument(t *testing.T) {
	assert.NoError(t, validateArgument("my-site"))
	assert.Error(t, validateArgument(""))
	assert.Error(t, validateArgument("  "))
	assert.Error(t, validateArgument("a\nb"))
}
