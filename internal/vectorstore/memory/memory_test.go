package memory

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/domain"
	"docrag/internal/vectorstore"
)

func chunks(texts ...string) []domain.Chunk {
	out := make([]domain.Chunk, len(texts))
	for i, t := range texts {
		out[i] = domain.Chunk{Text: t, SourceID: "src", Offset: i * 10, Index: i, Metadata: map[string]string{"n": t}}
	}
	return out
}

func ids(results []domain.SearchResult) []uint64 {
	out := make([]uint64, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func filled(t *testing.T, opts ...Option) *Storage {
	t.Helper()
	s := NewStorage(opts...)
	_, err := s.Insert(chunks("a", "b", "c", "d", "e"), [][]float32{
		{1, 0},
		{0, 1},
		{1, 1},
		{-1, 0},
		{0.9, 0.1},
	})
	require.NoError(t, err)
	return s
}

func TestQueryReturnsTopKDescending(t *testing.T) {
	s := filled(t)

	res, err := s.Query([]float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 5, 3}, ids(res))
	assert.InDelta(t, 1.0, res[0].Score, 1e-9)
	assert.Greater(t, res[1].Score, res[2].Score)
	assert.Equal(t, "e", res[1].Chunk.Text)

	all, err := s.Query([]float32{1, 0}, 50)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 5, 3, 2, 4}, ids(all))
}

func TestQueryTiesGoToLowerID(t *testing.T) {
	s := NewStorage()
	_, err := s.Insert(chunks("a", "b", "c", "d"), [][]float32{{0, 1}, {1, 0}, {2, 0}, {3, 0}})
	require.NoError(t, err)

	res, err := s.Query([]float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 3}, ids(res))

	res, err = s.Query([]float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, []uint64{2}, ids(res))
}

func TestEuclideanHigherIsCloser(t *testing.T) {
	s := filled(t, WithMetric(vectorstore.Euclidean))
	assert.Equal(t, vectorstore.Euclidean, s.Metric())

	res, err := s.Query([]float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 5}, ids(res))
	assert.InDelta(t, 1.0, res[0].Score, 1e-9)
	assert.Less(t, res[1].Score, res[0].Score)
}

func TestInsertDimensionMismatchLeavesIndexUnchanged(t *testing.T) {
	s := NewStorage()
	_, err := s.Insert(chunks("a"), [][]float32{make([]float32, 768)})
	require.NoError(t, err)
	require.Equal(t, 768, s.Dimension())

	_, err = s.Insert(chunks("b", "c"), [][]float32{make([]float32, 768), make([]float32, 384)})
	require.ErrorIs(t, err, domain.ErrDimensionMismatch)
	var dm *domain.DimensionMismatchError
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 768, dm.Want)
	assert.Equal(t, 384, dm.Got)
	assert.Equal(t, 1, s.Len())

	_, err = s.Query(make([]float32, 384), 1)
	require.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestInsertAssignsMonotonicIDs(t *testing.T) {
	s := NewStorage()
	first, err := s.Insert(chunks("a", "b"), [][]float32{{1}, {2}})
	require.NoError(t, err)
	second, err := s.Insert(chunks("c"), [][]float32{{3}})
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, first)
	assert.Equal(t, []uint64{3}, second)

	s.Reset()
	assert.Zero(t, s.Len())
	assert.Zero(t, s.Dimension())
	again, err := s.Insert(chunks("d"), [][]float32{{1, 2}})
	require.NoError(t, err)
	assert.Equal(t, []uint64{4}, again)
}

func TestInsertCopiesInput(t *testing.T) {
	s := NewStorage()
	c := chunks("a")
	v := [][]float32{{1, 0}}
	_, err := s.Insert(c, v)
	require.NoError(t, err)

	v[0][0] = 99
	c[0].Metadata["n"] = "changed"

	e := s.Entries()[0]
	assert.Equal(t, float32(1), e.Vector[0])
	assert.Equal(t, "a", e.Chunk.Metadata["n"])
}

func TestEmptyBatchPolicy(t *testing.T) {
	s := NewStorage()
	got, err := s.Insert(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	strict := NewStorage(WithDisallowEmptyBatch(true))
	_, err = strict.Insert(nil, nil)
	require.ErrorIs(t, err, domain.ErrEmptyBatch)

	_, err = s.Insert(chunks("a"), nil)
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestQueryEmptyIndexAndBadTopK(t *testing.T) {
	s := NewStorage()
	_, err := s.Query([]float32{1}, 3)
	require.ErrorIs(t, err, domain.ErrEmptyIndex)

	s = filled(t)
	_, err = s.Query([]float32{1, 0}, 0)
	require.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := filled(t, WithMetric(vectorstore.Euclidean))
	path := filepath.Join(t.TempDir(), "nested", "index.gob")
	require.NoError(t, s.Save(path))

	probe := []float32{0.3, 0.7}
	want, err := s.Query(probe, 5)
	require.NoError(t, err)

	loaded := NewStorage()
	require.NoError(t, loaded.Load(path))
	assert.Equal(t, s.Len(), loaded.Len())
	assert.Equal(t, s.Dimension(), loaded.Dimension())
	assert.Equal(t, vectorstore.Euclidean, loaded.Metric())
	assert.Equal(t, s.Entries(), loaded.Entries())

	got, err := loaded.Query(probe, 5)
	require.NoError(t, err)
	require.Equal(t, ids(want), ids(got))
	for i := range want {
		assert.InDelta(t, want[i].Score, got[i].Score, 1e-6)
		assert.Equal(t, want[i].Chunk, got[i].Chunk)
	}

	next, err := loaded.Insert(chunks("f"), [][]float32{{1, 1}})
	require.NoError(t, err)
	assert.Equal(t, []uint64{6}, next)
}

func TestSaveLoadEmptyIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.gob")
	require.NoError(t, NewStorage().Save(path))

	loaded := NewStorage()
	require.NoError(t, loaded.Load(path))
	assert.Zero(t, loaded.Len())
	assert.Zero(t, loaded.Dimension())
}

func TestLoadMissingFile(t *testing.T) {
	err := NewStorage().Load(filepath.Join(t.TempDir(), "absent.gob"))
	require.ErrorIs(t, err, os.ErrNotExist)
	assert.NotErrorIs(t, err, domain.ErrCorruptIndex)
}

func TestSaveReportsFailedReplace(t *testing.T) {
	s := NewStorage()
	target := filepath.Join(t.TempDir(), "index.gob")
	require.NoError(t, os.MkdirAll(filepath.Join(target, "occupied"), 0o755))

	err := s.Save(target)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replace snapshot")
	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestLoadRejectsCorruptSnapshots(t *testing.T) {
	dir := t.TempDir()
	src := filled(t)
	good := filepath.Join(dir, "good.gob")
	require.NoError(t, src.Save(good))
	raw, err := os.ReadFile(good)
	require.NoError(t, err)

	inconsistent := func(mutate func(*snapshotHeader, *snapshotEntry)) []byte {
		path := filepath.Join(dir, "tmp.gob")
		f, err := os.Create(path)
		require.NoError(t, err)
		hdr := snapshotHeader{Magic: snapshotMagic, Version: snapshotVersion, Metric: "cosine", Dimension: 3, Count: 1, NextID: 2}
		rec := snapshotEntry{ID: 1, Vector: []float32{1, 2, 3}, Text: "x"}
		mutate(&hdr, &rec)
		enc := gob.NewEncoder(f)
		require.NoError(t, enc.Encode(hdr))
		require.NoError(t, enc.Encode(rec))
		require.NoError(t, f.Close())
		b, err := os.ReadFile(path)
		require.NoError(t, err)
		return b
	}

	cases := map[string][]byte{
		"empty file":    {},
		"garbage":       []byte("definitely not a snapshot"),
		"truncated":     raw[:len(raw)-7],
		"wrong dim":     inconsistent(func(_ *snapshotHeader, r *snapshotEntry) { r.Vector = []float32{1, 2} }),
		"count too big": inconsistent(func(h *snapshotHeader, _ *snapshotEntry) { h.Count = 2 }),
		"extra entries": inconsistent(func(h *snapshotHeader, _ *snapshotEntry) { h.Count = 0 }),
		"bad magic":     inconsistent(func(h *snapshotHeader, _ *snapshotEntry) { h.Magic = "other" }),
		"bad metric":    inconsistent(func(h *snapshotHeader, _ *snapshotEntry) { h.Metric = "manhattan" }),
		"id past next":  inconsistent(func(h *snapshotHeader, _ *snapshotEntry) { h.NextID = 1 }),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, "case.gob")
			require.NoError(t, os.WriteFile(path, data, 0o644))

			s := filled(t)
			err := s.Load(path)
			require.ErrorIs(t, err, domain.ErrCorruptIndex)
			assert.Equal(t, 5, s.Len(), "failed load must keep previous state")
			assert.Equal(t, 2, s.Dimension())
		})
	}
}

func TestConcurrentQueriesAndInserts(t *testing.T) {
	s := filled(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				res, err := s.Query([]float32{1, 0}, 3)
				assert.NoError(t, err)
				assert.Len(t, res, 3)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_, err := s.Insert(chunks("x"), [][]float32{{0, 1}})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5+8*10, s.Len())

	seen := map[uint64]bool{}
	for _, e := range s.Entries() {
		assert.False(t, seen[e.ID])
		seen[e.ID] = true
	}
}
