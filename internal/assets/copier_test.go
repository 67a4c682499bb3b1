package assets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/frontbuild/internal/errors"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func TestCopyTreeMirrorsFiles(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "fonts")

	files := map[string]string{
		"roboto.woff2":         "font-bytes",
		"sub/inter.woff2":      "inter",
		"sub/deeper/icons.ttf": "icons",
	}
	writeTree(t, src, files)
	require.NoError(t, os.MkdirAll(filepath.Join(src, "empty"), 0755))

	stats, err := NewCopier(nil).CopyTree(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Copied)
	assert.Equal(t, int64(0), stats.Failed)

	for name, content := range files {
		got, err := os.ReadFile(filepath.Join(dst, name))
		require.NoError(t, err)
		assert.Equal(t, content, string(got))
	}
	assert.DirExists(t, filepath.Join(dst, "empty"))
}

func TestCopyTreeMissingSource(t *testing.T) {
	_, err := NewCopier(nil).CopyTree(context.Background(), filepath.Join(t.TempDir(), "nope"), t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.IsIOError(err))
}

func TestCopyTreeCancelled(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCopier(nil).CopyTree(ctx, src, t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCopyFileKeepsMode(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "run.sh")
	require.NoError(t, os.WriteFile(src, []byte("#!/bin/sh\n"), 0755))

	dst := filepath.Join(dir, "out", "nested", "run.sh")
	require.NoError(t, CopyFile(src, dst))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())
}

func TestWriteIfChanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "css", "index.css")

	changed, err := WriteIfChanged(path, []byte("a{}"), 0644)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = WriteIfChanged(path, []byte("a{}"), 0644)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = WriteIfChanged(path, []byte("b{}"), 0644)
	require.NoError(t, err)
	assert.True(t, changed)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}
