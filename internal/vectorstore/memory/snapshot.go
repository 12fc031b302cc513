package memory

import (
	"bufio"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"docrag/internal/domain"
	"docrag/internal/vectorstore"
)

const (
	snapshotMagic   = "docrag-index"
	snapshotVersion = 1
)

// snapshotHeader precedes the entries so a snapshot can be validated
// before any state is replaced.
type snapshotHeader struct {
	Magic     string
	Version   int
	Metric    string
	Dimension int
	Count     int
	NextID    uint64
}

type snapshotEntry struct {
	ID       uint64
	Vector   []float32
	Text     string
	SourceID string
	Offset   int
	Index    int
	Metadata map[string]string
}

// Save writes the whole index to path. The file is replaced atomically.
func (s *Storage) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := s.encode(w); err != nil {
		tmp.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func (s *Storage) encode(w io.Writer) error {
	enc := gob.NewEncoder(w)
	hdr := snapshotHeader{
		Magic:     snapshotMagic,
		Version:   snapshotVersion,
		Metric:    string(s.metric),
		Dimension: s.dimension,
		Count:     len(s.entries),
		NextID:    s.nextID,
	}
	if err := enc.Encode(hdr); err != nil {
		return err
	}
	for _, e := range s.entries {
		rec := snapshotEntry{
			ID:       e.ID,
			Vector:   e.Vector,
			Text:     e.Chunk.Text,
			SourceID: e.Chunk.SourceID,
			Offset:   e.Chunk.Offset,
			Index:    e.Chunk.Index,
			Metadata: e.Chunk.Metadata,
		}
		if err := enc.Encode(rec); err != nil {
			return err
		}
	}
	return nil
}

// Load replaces the index with the snapshot at path. The snapshot is fully
// decoded and validated first; on any error the current state is kept.
// A missing file is reported as os.ErrNotExist, anything unreadable as
// ErrCorruptIndex. The snapshot's metric replaces the configured one.
func (s *Storage) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	loaded, err := decodeSnapshot(bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrCorruptIndex, path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.metric = loaded.metric
	s.dimension = loaded.dimension
	s.nextID = loaded.nextID
	s.entries = loaded.entries
	s.norms = loaded.norms
	return nil
}

func decodeSnapshot(r io.Reader) (*Storage, error) {
	dec := gob.NewDecoder(r)
	var hdr snapshotHeader
	if err := dec.Decode(&hdr); err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	if hdr.Magic != snapshotMagic {
		return nil, errors.New("not an index snapshot")
	}
	if hdr.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported version %d", hdr.Version)
	}
	metric, err := vectorstore.ParseMetric(hdr.Metric)
	if err != nil {
		return nil, err
	}
	if hdr.Count < 0 || hdr.Dimension < 0 {
		return nil, fmt.Errorf("negative count %d or dimension %d", hdr.Count, hdr.Dimension)
	}
	if hdr.Count > 0 && hdr.Dimension == 0 {
		return nil, fmt.Errorf("%d entries without a dimension", hdr.Count)
	}
	if hdr.NextID == 0 {
		return nil, errors.New("next id must be positive")
	}

	out := &Storage{
		metric:    metric,
		dimension: hdr.Dimension,
		nextID:    hdr.NextID,
		entries:   make([]domain.Entry, 0, hdr.Count),
		norms:     make([]float64, 0, hdr.Count),
	}
	var lastID uint64
	for i := 0; i < hdr.Count; i++ {
		var rec snapshotEntry
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("entry %d of %d: %w", i, hdr.Count, err)
		}
		if len(rec.Vector) != hdr.Dimension {
			return nil, fmt.Errorf("entry %d: %w", rec.ID, &domain.DimensionMismatchError{Want: hdr.Dimension, Got: len(rec.Vector)})
		}
		if rec.ID <= lastID || rec.ID >= hdr.NextID {
			return nil, fmt.Errorf("entry id %d out of order", rec.ID)
		}
		lastID = rec.ID
		out.entries = append(out.entries, domain.Entry{
			ID:     rec.ID,
			Vector: rec.Vector,
			Chunk: domain.Chunk{
				Text:     rec.Text,
				SourceID: rec.SourceID,
				Offset:   rec.Offset,
				Index:    rec.Index,
				Metadata: domain.CloneMetadata(rec.Metadata),
			},
		})
		out.norms = append(out.norms, norm(rec.Vector))
	}
	var extra snapshotEntry
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("more entries than the %d declared", hdr.Count)
	}
	return out, nil
}
