package generation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pwerrors "github.com/pagewise-ai/pagewise/internal/errors"
	"github.com/pagewise-ai/pagewise/internal/store"
)

// --- Test Helpers ---

func newSeededStore(t *testing.T, withEmbeddings bool) *store.SQLiteChunkStore {
	t.Helper()
	s, err := store.NewSQLiteChunkStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	require.NoError(t, s.PutDocument(ctx, &store.Document{
		ID: "doc1", Filename: "report.pdf", PageCount: 10,
		Status: store.DocumentStatusIngested,
	}))

	for i, text := range []string{
		"operating income rose in the quarter",
		"cash flow from operations held steady",
	} {
		chunk := &store.Chunk{
			ID:         "c" + string(rune('1'+i)),
			DocumentID: "doc1",
			Ordinal:    i + 1,
			Text:       text,
			PageNumber: i + 1,
		}
		if withEmbeddings {
			chunk.Embedding = []float32{float32(i), 1, 0}
		}
		require.NoError(t, s.Put(ctx, chunk))
	}
	return s
}

// flakyStore delegates to a real store but can be told to fail snapshots.
type flakyStore struct {
	store.ChunkStore
	failSnapshot bool
}

func (f *flakyStore) Snapshot(ctx context.Context) (*store.Snapshot, error) {
	if f.failSnapshot {
		return nil, errors.New("disk on fire")
	}
	return f.ChunkStore.Snapshot(ctx)
}

// --- Build ---

func TestBuild_LexicalOnlyCorpus(t *testing.T) {
	s := newSeededStore(t, false)
	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)

	gen, err := Build(context.Background(), snap, DefaultBuildConfig())

	require.NoError(t, err)
	defer gen.Close()
	assert.NotEmpty(t, gen.ID)
	assert.NotNil(t, gen.Lexical)
	assert.NotNil(t, gen.Structured)
	assert.Nil(t, gen.Vector)
	assert.Equal(t, 2, gen.ChunkCount)
	assert.Equal(t, 0, gen.Dimension)
	assert.False(t, gen.BuiltAt.IsZero())
}

func TestBuild_EmbeddedCorpusGetsVectorIndex(t *testing.T) {
	s := newSeededStore(t, true)
	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)

	gen, err := Build(context.Background(), snap, DefaultBuildConfig())

	require.NoError(t, err)
	defer gen.Close()
	require.NotNil(t, gen.Vector)
	assert.Equal(t, 3, gen.Dimension)
	assert.Equal(t, 2, gen.Vector.Count())
}

// --- Manager ---

func TestManager_CurrentIsNilBeforeFirstRebuild(t *testing.T) {
	m := NewManager(newSeededStore(t, false), DefaultBuildConfig(), "")
	defer m.Close()

	assert.Nil(t, m.Current())
	assert.Equal(t, uint64(0), m.Rebuilds())
}

func TestManager_RebuildSwapsGeneration(t *testing.T) {
	m := NewManager(newSeededStore(t, true), DefaultBuildConfig(), "")
	defer m.Close()

	require.NoError(t, m.Rebuild(context.Background()))
	first := m.Current()
	require.NotNil(t, first)

	require.NoError(t, m.Rebuild(context.Background()))
	second := m.Current()

	// Each rebuild publishes a fresh generation with its own identity.
	require.NotNil(t, second)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, uint64(2), m.Rebuilds())
	assert.Empty(t, m.LastError())
}

func TestManager_FailedRebuildKeepsServingGeneration(t *testing.T) {
	flaky := &flakyStore{ChunkStore: newSeededStore(t, false)}
	m := NewManager(flaky, DefaultBuildConfig(), "")
	defer m.Close()

	require.NoError(t, m.Rebuild(context.Background()))
	serving := m.Current()
	require.NotNil(t, serving)

	// When: the next snapshot fails
	flaky.failSnapshot = true
	err := m.Rebuild(context.Background())

	// Then: the error is reported, but the old generation keeps serving
	require.Error(t, err)
	assert.Equal(t, pwerrors.ErrCodeRebuildFailed, pwerrors.GetCode(err))
	assert.Same(t, serving, m.Current())
	assert.Equal(t, uint64(1), m.Rebuilds())
	assert.NotEmpty(t, m.LastError())

	// And: a later successful rebuild clears the recorded error.
	flaky.failSnapshot = false
	require.NoError(t, m.Rebuild(context.Background()))
	assert.Empty(t, m.LastError())
}

func TestManager_CrossProcessLockSkipsContendedRebuild(t *testing.T) {
	dir := t.TempDir()

	// Given: another process holds the rebuild lock
	other := NewBuildLock(dir)
	acquired, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, acquired)
	defer func() { _ = other.Unlock() }()

	m := NewManager(newSeededStore(t, false), DefaultBuildConfig(), dir)
	defer m.Close()

	// When: this manager tries to rebuild
	err = m.Rebuild(context.Background())

	// Then: the rebuild is skipped, not failed
	require.NoError(t, err)
	assert.Nil(t, m.Current())
	assert.Equal(t, uint64(0), m.Rebuilds())
}

// --- BuildLock ---

func TestBuildLock_MutualExclusion(t *testing.T) {
	dir := t.TempDir()
	first := NewBuildLock(dir)
	second := NewBuildLock(dir)

	acquired, err := first.TryLock()
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = second.TryLock()
	require.NoError(t, err)
	assert.False(t, acquired)

	// Releasing the winner lets the loser in.
	require.NoError(t, first.Unlock())
	acquired, err = second.TryLock()
	require.NoError(t, err)
	assert.True(t, acquired)
	require.NoError(t, second.Unlock())
}

func TestBuildLock_UnlockWithoutLockIsSafe(t *testing.T) {
	l := NewBuildLock(t.TempDir())

	assert.NoError(t, l.Unlock())
}
