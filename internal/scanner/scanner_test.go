package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func scanPaths(t *testing.T, opts *ScanOptions) []string {
	t.Helper()
	files, err := New().ScanAll(context.Background(), opts)
	require.NoError(t, err)

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	sort.Strings(paths)
	return paths
}

func TestScan_OnlySupportedExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "readme.md", "# hi")
	writeFile(t, root, "guide.rst", "guide")
	writeFile(t, root, "page.html", "<p>hi</p>")
	writeFile(t, root, "notes.txt", "notes")
	writeFile(t, root, "main.go", "package main")
	writeFile(t, root, "image.png", "\x89PNG")

	paths := scanPaths(t, &ScanOptions{RootDir: root})
	assert.Equal(t, []string{"guide.rst", "notes.txt", "page.html", "readme.md"}, paths)
}

func TestScan_SkipsHiddenAndExcludedDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "docs/install.md", "# install")
	writeFile(t, root, ".git/objects/readme.md", "not docs")
	writeFile(t, root, ".aki/state.md", "index internals")
	writeFile(t, root, "build/out.md", "generated")

	paths := scanPaths(t, &ScanOptions{RootDir: root, ExcludeDirs: []string{"build"}})
	assert.Equal(t, []string{"docs/install.md"}, paths)
}

func TestScan_SkipsOversizedFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "small.md", "tiny")
	writeFile(t, root, "big.md", string(make([]byte, 2048)))

	paths := scanPaths(t, &ScanOptions{RootDir: root, MaxFileSize: 1024})
	assert.Equal(t, []string{"small.md"}, paths)
}

func TestScan_ErrorsOnMissingRoot(t *testing.T) {
	_, err := New().Scan(context.Background(), &ScanOptions{RootDir: "/nonexistent/path/xyz"})
	assert.Error(t, err)
}

func TestScan_RelativePathsUseForwardSlashes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/b/c.md", "deep")

	paths := scanPaths(t, &ScanOptions{RootDir: root})
	require.Len(t, paths, 1)
	assert.Equal(t, "a/b/c.md", paths[0])
}
