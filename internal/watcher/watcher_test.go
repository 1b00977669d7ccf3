package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startWatcher(t *testing.T, root string) *Watcher {
	t.Helper()
	w, err := New(root, 100*time.Millisecond, []string{".aki"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = w.Close()
	})
	go w.Run(ctx)
	return w
}

func waitForRebuild(t *testing.T, w *Watcher) bool {
	t.Helper()
	select {
	case _, ok := <-w.Rebuilds():
		return ok
	case <-time.After(3 * time.Second):
		return false
	}
}

func TestWatcher_DocumentChangeTriggersRebuild(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "guide.md"), []byte("# Guide\n"), 0o644))

	assert.True(t, waitForRebuild(t, w), "expected a rebuild signal")
}

func TestWatcher_BurstCoalescesToOneSignal(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(root, "guide.md"),
			[]byte("# Guide\n\nrevision\n"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	require.True(t, waitForRebuild(t, w))

	// No second signal arrives from the same burst.
	select {
	case <-w.Rebuilds():
		t.Fatal("burst produced a second rebuild signal")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_UnsupportedFilesIgnored(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "binary.bin"), []byte{0x1}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden.md"), []byte("x"), 0o644))

	select {
	case <-w.Rebuilds():
		t.Fatal("unsupported file triggered a rebuild")
	case <-time.After(400 * time.Millisecond):
	}
}

func TestWatcher_NewSubdirectoryIsWatched(t *testing.T) {
	root := t.TempDir()
	w := startWatcher(t, root)

	sub := filepath.Join(root, "guides")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.True(t, waitForRebuild(t, w), "directory creation should signal")

	require.NoError(t, os.WriteFile(filepath.Join(sub, "new.md"), []byte("# New\n"), 0o644))
	assert.True(t, waitForRebuild(t, w), "file in new subdirectory should signal")
}
