package hotreload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func start(t *testing.T, root string) *Watcher {
	t.Helper()
	w, err := New(root, 150*time.Millisecond, zerolog.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)
	t.Cleanup(func() {
		cancel()
		_ = w.Close()
	})
	return w
}

func next(t *testing.T, w *Watcher) []string {
	t.Helper()
	select {
	case batch := <-w.Changes():
		return batch
	case <-time.After(5 * time.Second):
		t.Fatal("no change batch")
		return nil
	}
}

func write(t *testing.T, path, data string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func TestWatcher_CoalescesBurst(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "motions"), 0o755))
	w := start(t, root)

	write(t, filepath.Join(root, "rig.model3.json"), "{}")
	write(t, filepath.Join(root, "rig.model3.json"), "{ }")
	write(t, filepath.Join(root, "motions", "idle.motion3.json"), "{}")

	assert.Equal(t, []string{"motions/idle.motion3.json", "rig.model3.json"}, next(t, w))
}

func TestWatcher_IgnoresHiddenFiles(t *testing.T) {
	root := t.TempDir()
	w := start(t, root)

	write(t, filepath.Join(root, ".swp"), "x")
	write(t, filepath.Join(root, "rig.gltf"), "x")

	assert.Equal(t, []string{"rig.gltf"}, next(t, w))
}

func TestWatcher_NewDirectory(t *testing.T) {
	root := t.TempDir()
	w := start(t, root)

	dir := filepath.Join(root, "textures")
	require.NoError(t, os.Mkdir(dir, 0o755))
	// Give the watcher time to pick up the directory.
	time.Sleep(100 * time.Millisecond)
	write(t, filepath.Join(dir, "skin.png"), "x")

	assert.Contains(t, next(t, w), "textures/skin.png")
}

func TestNew_MissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent"), time.Millisecond, zerolog.Nop())
	assert.Error(t, err)
}
