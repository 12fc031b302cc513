package memory

import (
	"container/heap"
	"fmt"
	"math"
	"sort"
	"sync"

	"docrag/internal/domain"
	"docrag/internal/vectorstore"
)

// Storage is an in-memory vector index using an exact scan over every entry.
// Queries share a read lock; Insert, Load and Reset are exclusive.
type Storage struct {
	mu            sync.RWMutex
	metric        vectorstore.Metric
	disallowEmpty bool
	dimension     int
	nextID        uint64
	entries       []domain.Entry
	norms         []float64
}

// Option configures a Storage.
type Option func(*Storage)

// WithMetric sets the similarity metric. Cosine is the default.
func WithMetric(m vectorstore.Metric) Option {
	return func(s *Storage) { s.metric = m }
}

// WithDisallowEmptyBatch makes Insert fail with ErrEmptyBatch on empty input.
func WithDisallowEmptyBatch(v bool) Option {
	return func(s *Storage) { s.disallowEmpty = v }
}

func NewStorage(opts ...Option) *Storage {
	s := &Storage{metric: vectorstore.Cosine, nextID: 1}
	for _, o := range opts {
		o(s)
	}
	return s
}

var _ vectorstore.Storage = (*Storage)(nil)

func (s *Storage) Metric() vectorstore.Metric {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metric
}

func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Dimension is 0 until the first insert establishes it.
func (s *Storage) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// Entries returns a copy of the stored entries in id order.
func (s *Storage) Entries() []domain.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Entry, len(s.entries))
	for i, e := range s.entries {
		out[i] = cloneEntry(e)
	}
	return out
}

// Reset drops every entry and the established dimension. Ids keep growing.
func (s *Storage) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = 0
	s.entries = nil
	s.norms = nil
}

// Insert appends one entry per (chunk, vector) pair and returns the ids it
// assigned. The batch is validated as a whole; on error nothing is stored.
func (s *Storage) Insert(chunks []domain.Chunk, vectors [][]float32) ([]uint64, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("%w: %d chunks but %d vectors", domain.ErrConfiguration, len(chunks), len(vectors))
	}
	if len(vectors) == 0 {
		if s.disallowEmpty {
			return nil, domain.ErrEmptyBatch
		}
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dimension
	if dim == 0 {
		dim = len(vectors[0])
		if dim == 0 {
			return nil, fmt.Errorf("%w: zero-length vector", domain.ErrConfiguration)
		}
	}
	for _, v := range vectors {
		if len(v) != dim {
			return nil, &domain.DimensionMismatchError{Want: dim, Got: len(v)}
		}
	}

	ids := make([]uint64, len(vectors))
	for i, v := range vectors {
		vec := make([]float32, len(v))
		copy(vec, v)
		c := chunks[i]
		c.Metadata = domain.CloneMetadata(c.Metadata)
		e := domain.Entry{ID: s.nextID, Vector: vec, Chunk: c}
		s.entries = append(s.entries, e)
		s.norms = append(s.norms, norm(vec))
		ids[i] = e.ID
		s.nextID++
	}
	s.dimension = dim
	return ids, nil
}

// Query returns up to topK entries ordered by descending score, ties going
// to the earlier id. An empty index yields ErrEmptyIndex.
func (s *Storage) Query(vector []float32, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", domain.ErrConfiguration, topK)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return nil, domain.ErrEmptyIndex
	}
	if len(vector) != s.dimension {
		return nil, &domain.DimensionMismatchError{Want: s.dimension, Got: len(vector)}
	}

	qn := norm(vector)
	h := make(candidates, 0, min(topK, len(s.entries)))
	for i := range s.entries {
		c := candidate{pos: i, id: s.entries[i].ID, score: s.score(i, vector, qn)}
		if len(h) < topK {
			heap.Push(&h, c)
			continue
		}
		if h.less(h[0], c) {
			h[0] = c
			heap.Fix(&h, 0)
		}
	}

	sort.Slice(h, func(i, j int) bool { return h.less(h[j], h[i]) })
	results := make([]domain.SearchResult, len(h))
	for i, c := range h {
		e := s.entries[c.pos]
		results[i] = domain.SearchResult{ID: e.ID, Chunk: cloneEntry(e).Chunk, Score: c.score}
	}
	return results, nil
}

func (s *Storage) score(i int, q []float32, qn float64) float64 {
	v := s.entries[i].Vector
	switch s.metric {
	case vectorstore.Euclidean:
		var sum float64
		for j := range v {
			d := float64(v[j]) - float64(q[j])
			sum += d * d
		}
		return 1 / (1 + math.Sqrt(sum))
	default:
		if qn == 0 || s.norms[i] == 0 {
			return 0
		}
		var dot float64
		for j := range v {
			dot += float64(v[j]) * float64(q[j])
		}
		return dot / (qn * s.norms[i])
	}
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cloneEntry(e domain.Entry) domain.Entry {
	vec := make([]float32, len(e.Vector))
	copy(vec, e.Vector)
	e.Vector = vec
	e.Chunk.Metadata = domain.CloneMetadata(e.Chunk.Metadata)
	return e
}

type candidate struct {
	pos   int
	id    uint64
	score float64
}

// candidates is a min-heap keeping the weakest kept match on top.
type candidates []candidate

// less reports whether a ranks below b.
func (candidates) less(a, b candidate) bool {
	if a.score != b.score {
		return a.score < b.score
	}
	return a.id > b.id
}

func (h candidates) Len() int           { return len(h) }
func (h candidates) Less(i, j int) bool { return h.less(h[i], h[j]) }
func (h candidates) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *candidates) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *candidates) Pop() any {
	old := *h
	c := old[len(old)-1]
	*h = old[:len(old)-1]
	return c
}
