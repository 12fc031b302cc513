package domain

import "context"

// Metadata keys shared by sources and chunks.
const (
	MetaSourceID = "source_id"
	MetaSource   = "source"
	MetaFormat   = "format"
)

// Document is a single unit of raw text produced by a document source.
type Document struct {
	ID       string
	Path     string
	Content  string
	Metadata map[string]string
}

// Chunk is a bounded part of a document used for indexing.
// Offset is the rune position of Text inside the source document.
type Chunk struct {
	Text     string
	SourceID string
	Offset   int
	Index    int
	Metadata map[string]string
}

// Entry is a stored vector together with the chunk it was computed from.
type Entry struct {
	ID     uint64
	Vector []float32
	Chunk  Chunk
}

// SearchResult represents a matching chunk with a relevance score.
// Higher scores are always more relevant, whatever the metric.
type SearchResult struct {
	ID    uint64
	Chunk Chunk
	Score float64
}

// Answer is the outcome of a search-and-summarize request.
type Answer struct {
	Query   string
	Text    string
	Results []SearchResult
	Found   bool
}

// Embedder converts free text into fixed-size vectors.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// VectorIndex stores vectors and supports similarity search.
type VectorIndex interface {
	Insert(chunks []Chunk, vectors [][]float32) ([]uint64, error)
	Query(vector []float32, topK int) ([]SearchResult, error)
	Save(path string) error
	Load(path string) error
	Len() int
	Dimension() int
}

// Generator produces a final answer from retrieved context.
type Generator interface {
	Generate(ctx context.Context, contextText, query string) (string, error)
}

// DocumentSource yields documents from files on disk.
type DocumentSource interface {
	Load(ctx context.Context, paths []string) ([]Document, []error)
}

// RAGService defines the operations exposed by the application core.
type RAGService interface {
	IngestPaths(ctx context.Context, paths []string) (IngestReport, error)
	SearchAndSummarize(ctx context.Context, query string, topK int) (Answer, error)
}

// IngestReport summarises one ingest run. Failures holds per-item errors
// that were skipped.
type IngestReport struct {
	Documents int
	Chunks    int
	Entries   int
	Failures  []error
}

// CloneMetadata returns a copy of m that is safe to hand to another owner.
func CloneMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
