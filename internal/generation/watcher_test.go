package generation

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWatcher(t *testing.T, manager *Manager, storePath string) *Watcher {
	t.Helper()
	w, err := NewWatcher(manager, storePath, 50*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Stop() })
	return w
}

func TestWatcher_IsStoreEvent(t *testing.T) {
	w := newTestWatcher(t, nil, "/data/pagewise.db")

	tests := []struct {
		name string
		op   fsnotify.Op
		want bool
	}{
		{"/data/pagewise.db", fsnotify.Write, true},
		{"/data/pagewise.db-wal", fsnotify.Write, true},
		{"/data/pagewise.db-shm", fsnotify.Create, true},
		{"/data/pagewise.db", fsnotify.Chmod, false},
		{"/data/pagewise.db", fsnotify.Remove, false},
		{"/data/other.db", fsnotify.Write, false},
		{"/data/pagewise.db.backup", fsnotify.Write, false},
	}

	for _, tt := range tests {
		event := fsnotify.Event{Name: tt.name, Op: tt.op}
		assert.Equal(t, tt.want, w.isStoreEvent(event, "pagewise.db"), "%s %s", tt.name, tt.op)
	}
}

func TestWatcher_DebouncedRebuildOnStoreWrite(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "pagewise.db")
	require.NoError(t, os.WriteFile(storePath, []byte("seed"), 0o644))

	m := NewManager(newSeededStore(t, false), DefaultBuildConfig(), "")
	defer m.Close()

	w := newTestWatcher(t, m, storePath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Start(ctx)
	}()

	// Given: a burst of writes to the store file
	for range 3 {
		require.NoError(t, os.WriteFile(storePath, []byte("changed"), 0o644))
		time.Sleep(10 * time.Millisecond)
	}

	// Then: the burst coalesces into one rebuild
	require.Eventually(t, func() bool {
		return m.Rebuilds() == 1
	}, 3*time.Second, 20*time.Millisecond)

	// Quiet store, no further rebuilds.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, uint64(1), m.Rebuilds())

	cancel()
	<-done
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w := newTestWatcher(t, nil, filepath.Join(t.TempDir(), "pagewise.db"))

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
