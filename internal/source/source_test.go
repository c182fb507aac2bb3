package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func collect(t *testing.T, root string) []File {
	t.Helper()
	files, errCh := Walk(root)
	var out []File
	for f := range files {
		out = append(out, f)
	}
	require.NoError(t, <-errCh)
	return out
}

func TestWalkSkipsHiddenAndGitDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "main.go"), "package main\n")
	writeFile(t, filepath.Join(root, ".git", "HEAD"), "ref: refs/heads/main\n")
	writeFile(t, filepath.Join(root, ".hidden", "x.go"), "package x\n")

	got := collect(t, root)
	require.Len(t, got, 1)
	assert.Equal(t, "main.go", got[0].RelPath)
}

func TestWalkHonorsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "vendor/\n*.log\n")
	writeFile(t, filepath.Join(root, "main.go"), "package main\n")
	writeFile(t, filepath.Join(root, "debug.log"), "noise\n")
	writeFile(t, filepath.Join(root, "vendor", "dep.go"), "package dep\n")

	got := collect(t, root)
	var rel []string
	for _, f := range got {
		rel = append(rel, f.RelPath)
	}
	assert.Contains(t, rel, "main.go")
	assert.NotContains(t, rel, "debug.log")
	assert.NotContains(t, rel, "vendor/dep.go")
}

func TestWalkSkipsEmptyAndBinaryFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "empty.go"), "")
	require.NoError(t, os.WriteFile(filepath.Join(root, "binary.go"), []byte{0x00, 0x01, 0x02, 'a'}, 0o644))
	writeFile(t, filepath.Join(root, "text.go"), "package text\n")

	got := collect(t, root)
	var rel []string
	for _, f := range got {
		rel = append(rel, f.RelPath)
	}
	assert.Equal(t, []string{"text.go"}, rel)
}

func TestIsIgnoredPathMatchesNestedIgnoreFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "sub", ".cbignore"), "generated.go\n")
	writeFile(t, filepath.Join(root, "sub", "generated.go"), "package sub\n")
	writeFile(t, filepath.Join(root, "sub", "kept.go"), "package sub\n")

	assert.True(t, IsIgnoredPath(root, "sub/generated.go"))
	assert.False(t, IsIgnoredPath(root, "sub/kept.go"))
}
