package generation

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	pwerrors "github.com/pagewise-ai/pagewise/internal/errors"
	"github.com/pagewise-ai/pagewise/internal/store"
)

// Manager owns the current serving generation and rebuilds. The serving
// pointer is an atomic.Pointer so queries load it without locking; rebuilds
// run off the serving path and publish with a single swap. A failed rebuild
// leaves the previous generation serving.
type Manager struct {
	current atomic.Pointer[Generation]

	chunks store.ChunkStore
	cfg    BuildConfig
	lock   *BuildLock

	// rebuildMu serializes rebuilds within the process; the BuildLock
	// serializes them across processes.
	rebuildMu sync.Mutex

	rebuilds  atomic.Uint64
	lastError atomic.Pointer[string]
}

// NewManager creates a generation manager. lockDir is the directory holding
// the cross-process rebuild lock, typically the chunk store's directory;
// empty disables cross-process locking (in-memory stores).
func NewManager(chunks store.ChunkStore, cfg BuildConfig, lockDir string) *Manager {
	m := &Manager{
		chunks: chunks,
		cfg:    cfg,
	}
	if lockDir != "" {
		m.lock = NewBuildLock(lockDir)
	}
	return m
}

// Current returns the serving generation, nil before the first successful
// rebuild.
func (m *Manager) Current() *Generation {
	return m.current.Load()
}

// Rebuild snapshots the chunk store, builds a fresh generation, and swaps it
// in. On any failure the previous generation keeps serving and the error is
// returned for logging; callers treat it as retryable.
func (m *Manager) Rebuild(ctx context.Context) error {
	m.rebuildMu.Lock()
	defer m.rebuildMu.Unlock()

	if m.lock != nil {
		acquired, err := m.lock.TryLock()
		if err != nil {
			return pwerrors.New(pwerrors.ErrCodeRebuildFailed, "failed to acquire rebuild lock", err)
		}
		if !acquired {
			slog.Debug("rebuild skipped, another process holds the lock",
				slog.String("lock", m.lock.Path()))
			return nil
		}
		defer func() { _ = m.lock.Unlock() }()
	}

	start := time.Now()

	snap, err := m.chunks.Snapshot(ctx)
	if err != nil {
		return m.fail(pwerrors.New(pwerrors.ErrCodeRebuildFailed, "failed to snapshot chunk store", err))
	}

	gen, err := Build(ctx, snap, m.cfg)
	if err != nil {
		return m.fail(pwerrors.New(pwerrors.ErrCodeRebuildFailed, "failed to build generation", err))
	}

	old := m.current.Swap(gen)
	m.rebuilds.Add(1)
	m.lastError.Store(nil)

	slog.Info("generation swapped",
		slog.String("generation_id", gen.ID),
		slog.Int("chunks", gen.ChunkCount),
		slog.Int("dimension", gen.Dimension),
		slog.Duration("build_time", time.Since(start)))

	if old != nil {
		// In-flight queries hold their own reference to the old
		// generation; closing only releases index resources held by it.
		go func() {
			if err := old.Close(); err != nil {
				slog.Warn("failed to close previous generation",
					slog.String("generation_id", old.ID),
					slog.String("error", err.Error()))
			}
		}()
	}

	return nil
}

// fail records the rebuild error and returns it.
func (m *Manager) fail(err error) error {
	msg := err.Error()
	m.lastError.Store(&msg)
	slog.Error("rebuild failed, previous generation keeps serving",
		slog.String("error", msg))
	return err
}

// Rebuilds returns the number of successful rebuilds.
func (m *Manager) Rebuilds() uint64 {
	return m.rebuilds.Load()
}

// LastError returns the most recent rebuild error message, "" if the last
// rebuild succeeded.
func (m *Manager) LastError() string {
	if p := m.lastError.Load(); p != nil {
		return *p
	}
	return ""
}

// Close closes the current generation.
func (m *Manager) Close() error {
	if gen := m.current.Swap(nil); gen != nil {
		return gen.Close()
	}
	return nil
}
