package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"docrag/internal/domain"
	"docrag/internal/metrics"
	"docrag/internal/vectorstore"
)

// NoResultsAnswer is returned when retrieval finds nothing to summarize.
const NoResultsAnswer = "No relevant information found."

// DefaultTopK is used when a caller passes a non-positive top_k.
const DefaultTopK = 3

// Options tunes a RAGServiceImpl. Zero values pick defaults.
type Options struct {
	DefaultTopK int
	Logger      logrus.FieldLogger
	Metrics     *metrics.Metrics

	// MinScore drops results scoring below it; zero keeps everything.
	MinScore float64
}

// RAGServiceImpl wires a chunker, embedder, index and generator into the
// ingest and query paths. It holds no state of its own beyond them.
type RAGServiceImpl struct {
	chunker   domain.Chunker
	embedder  domain.Embedder
	index     domain.VectorIndex
	generator domain.Generator
	source    domain.DocumentSource
	topK      int
	minScore  float64
	log       logrus.FieldLogger
	metrics   *metrics.Metrics
}

var _ domain.RAGService = (*RAGServiceImpl)(nil)

// NewRAGService builds the engine. source may be nil when documents are
// only passed in through BuildFromDocuments.
func NewRAGService(chunker domain.Chunker, embedder domain.Embedder, index domain.VectorIndex, generator domain.Generator, source domain.DocumentSource, opts Options) (*RAGServiceImpl, error) {
	if chunker == nil || embedder == nil || index == nil || generator == nil {
		return nil, fmt.Errorf("%w: chunker, embedder, index and generator are required", domain.ErrConfiguration)
	}
	if opts.DefaultTopK <= 0 {
		opts.DefaultTopK = DefaultTopK
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &RAGServiceImpl{
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		generator: generator,
		source:    source,
		topK:      opts.DefaultTopK,
		minScore:  opts.MinScore,
		log:       opts.Logger,
		metrics:   opts.Metrics,
	}, nil
}

// IngestPaths loads files through the document source and indexes them.
func (s *RAGServiceImpl) IngestPaths(ctx context.Context, paths []string) (domain.IngestReport, error) {
	if s.source == nil {
		return domain.IngestReport{}, fmt.Errorf("%w: no document source configured", domain.ErrConfiguration)
	}
	docs, loadErrs := s.source.Load(ctx, paths)
	for range loadErrs {
		s.metrics.RecordDocument("failed", 0)
	}
	report, err := s.BuildFromDocuments(ctx, docs)
	report.Failures = append(loadErrs, report.Failures...)
	return report, err
}

// BuildFromDocuments runs chunk, embed and insert for each document. A
// document that fails is logged and recorded in the report; the rest are
// still indexed. Only context cancellation aborts the run.
func (s *RAGServiceImpl) BuildFromDocuments(ctx context.Context, docs []domain.Document) (domain.IngestReport, error) {
	var report domain.IngestReport
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		n, err := s.ingestDocument(ctx, doc)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return report, err
			}
			s.log.WithError(err).WithField("document", docName(doc)).Warn("skipping document")
			s.metrics.RecordDocument("failed", 0)
			report.Failures = append(report.Failures, fmt.Errorf("%s: %w", docName(doc), err))
			continue
		}
		s.metrics.RecordDocument("ok", n)
		report.Documents++
		report.Chunks += n
		report.Entries += n
	}
	s.metrics.SetIndexEntries(s.index.Len())
	s.log.WithFields(logrus.Fields{
		"documents": report.Documents,
		"chunks":    report.Chunks,
		"failures":  len(report.Failures),
		"entries":   s.index.Len(),
	}).Info("ingest finished")
	return report, nil
}

func (s *RAGServiceImpl) ingestDocument(ctx context.Context, doc domain.Document) (int, error) {
	chunks, err := s.chunker.Chunk(doc)
	if err != nil {
		return 0, fmt.Errorf("chunk: %w", err)
	}
	if len(chunks) == 0 {
		return 0, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	start := time.Now()
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed: %w", err)
	}
	s.metrics.RecordEmbed(time.Since(start))
	if len(vectors) != len(chunks) {
		return 0, fmt.Errorf("embed: got %d vectors for %d chunks", len(vectors), len(chunks))
	}
	if _, err := s.index.Insert(chunks, vectors); err != nil {
		return 0, fmt.Errorf("insert: %w", err)
	}
	return len(chunks), nil
}

// Retrieve embeds the query and returns the best matches. Any failure is
// reported as ErrEngineNotReady wrapping the cause.
func (s *RAGServiceImpl) Retrieve(ctx context.Context, query string, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = s.topK
	}
	vec, err := s.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", domain.ErrEngineNotReady, err)
	}
	if dim := s.index.Dimension(); dim > 0 && len(vec) != dim {
		return nil, fmt.Errorf("%w: %w", domain.ErrEngineNotReady, &domain.DimensionMismatchError{Want: dim, Got: len(vec)})
	}
	if lister, ok := s.index.(entryLister); ok && isZero(vec) && s.index.Len() > 0 {
		// the query has no vocabulary the embedder knows; rank by word
		// overlap. min_score is a vector-similarity threshold and does not
		// apply to overlap scores.
		return lexicalSearch(query, lister.Entries(), topK), nil
	}
	results, err := s.index.Query(vec, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEngineNotReady, err)
	}
	if s.minScore > 0 {
		kept := results[:0]
		for _, r := range results {
			if r.Score >= s.minScore {
				kept = append(kept, r)
			}
		}
		results = kept
	}
	return results, nil
}

// SearchAndSummarize retrieves context for query and asks the generator
// for an answer. Empty retrieval short-circuits without calling it.
func (s *RAGServiceImpl) SearchAndSummarize(ctx context.Context, query string, topK int) (domain.Answer, error) {
	start := time.Now()
	answer := domain.Answer{Query: query}
	results, err := s.Retrieve(ctx, query, topK)
	if err != nil {
		s.metrics.RecordQuery("not_ready", time.Since(start))
		s.log.WithError(err).Warn("retrieve failed")
		return answer, err
	}
	answer.Results = results
	if len(results) == 0 {
		s.metrics.RecordQuery("empty", time.Since(start))
		answer.Text = NoResultsAnswer
		return answer, nil
	}

	text, err := s.generator.Generate(ctx, BuildContext(results), query)
	if err != nil {
		s.metrics.RecordQuery("synthesis_failed", time.Since(start))
		s.log.WithError(err).Warn("synthesis failed")
		return answer, fmt.Errorf("%w: %w", domain.ErrSynthesisFailure, err)
	}
	s.metrics.RecordQuery("answered", time.Since(start))
	answer.Text = text
	answer.Found = true
	return answer, nil
}

// BuildContext joins result texts in relevance order into one block.
func BuildContext(results []domain.SearchResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		parts = append(parts, strings.TrimSpace(r.Chunk.Text))
	}
	return strings.Join(parts, "\n\n")
}

// Status describes the engine for health and status lines.
type Status struct {
	Entries   int
	Dimension int
	Embedder  string
	Metric    string
}

func (s Status) String() string {
	if s.Metric == "" {
		return fmt.Sprintf("%d entries, dim %d, embedder %s", s.Entries, s.Dimension, s.Embedder)
	}
	return fmt.Sprintf("%d entries, dim %d, %s, embedder %s", s.Entries, s.Dimension, s.Metric, s.Embedder)
}

func (s *RAGServiceImpl) Status() Status {
	return Status{
		Entries:   s.index.Len(),
		Dimension: s.index.Dimension(),
		Embedder:  s.embedder.Name(),
		Metric:    s.metric(),
	}
}

// IndexedSources lists the distinct source paths present in the index.
func (s *RAGServiceImpl) IndexedSources() []string {
	lister, ok := s.index.(entryLister)
	if !ok {
		return nil
	}
	seen := map[string]struct{}{}
	var out []string
	for _, e := range lister.Entries() {
		src := e.Chunk.Metadata[domain.MetaSource]
		if src == "" {
			continue
		}
		if _, dup := seen[src]; dup {
			continue
		}
		seen[src] = struct{}{}
		out = append(out, src)
	}
	sort.Strings(out)
	return out
}

// Save persists the index snapshot.
func (s *RAGServiceImpl) Save(path string) error {
	if err := s.index.Save(path); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"path": path, "entries": s.index.Len()}).Info("index saved")
	return nil
}

// Load restores the index snapshot. The snapshot's metric wins over the
// configured one; a change is logged.
func (s *RAGServiceImpl) Load(path string) error {
	before := s.metric()
	if err := s.index.Load(path); err != nil {
		return err
	}
	if after := s.metric(); before != "" && after != before {
		s.log.WithFields(logrus.Fields{"path": path, "configured": before, "snapshot": after}).
			Warn("snapshot metric overrides configured metric")
	}
	s.metrics.SetIndexEntries(s.index.Len())
	s.log.WithFields(logrus.Fields{"path": path, "entries": s.index.Len()}).Info("index loaded")
	return nil
}

func (s *RAGServiceImpl) metric() string {
	if m, ok := s.index.(interface{ Metric() vectorstore.Metric }); ok {
		return string(m.Metric())
	}
	return ""
}

func docName(d domain.Document) string {
	if d.Path != "" {
		return d.Path
	}
	return d.ID
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
