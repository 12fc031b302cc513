package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"docrag/internal/domain"
)

// DefaultSeparators are tried in order: paragraphs, lines, words, characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// RecursiveChunker splits text into windows of at most size runes,
// preferring the coarsest separator that keeps pieces under the limit.
// Adjacent chunks share up to overlap runes of context.
type RecursiveChunker struct {
	size       int
	overlap    int
	separators []string
}

// NewRecursiveChunker validates the sizing and returns a chunker.
func NewRecursiveChunker(size, overlap int) (*RecursiveChunker, error) {
	if size <= 0 || overlap <= 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk_size=%d chunk_overlap=%d (need 0 < overlap < size)",
			domain.ErrConfiguration, size, overlap)
	}
	return &RecursiveChunker{size: size, overlap: overlap, separators: DefaultSeparators}, nil
}

// Chunk splits one document. Whitespace-only content yields no chunks.
func (c *RecursiveChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	sourceID, err := sourceIDOf(document)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(document.Content) == "" {
		return nil, nil
	}
	texts := c.split(document.Content, c.separators)
	return buildChunks(document, sourceID, texts), nil
}

func (c *RecursiveChunker) split(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var rest []string
	for i, s := range separators {
		if s == "" {
			sep = s
			break
		}
		if strings.Contains(text, s) {
			sep = s
			rest = separators[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
	} else {
		pieces = strings.Split(text, sep)
	}

	var (
		out  []string
		good []string
	)
	for _, p := range pieces {
		if p == "" {
			continue
		}
		if utf8.RuneCountInString(p) < c.size {
			good = append(good, p)
			continue
		}
		if len(good) > 0 {
			out = append(out, c.merge(good, sep)...)
			good = nil
		}
		if len(rest) == 0 {
			out = append(out, p)
		} else {
			out = append(out, c.split(p, rest)...)
		}
	}
	if len(good) > 0 {
		out = append(out, c.merge(good, sep)...)
	}
	return out
}

// merge packs small pieces into windows, carrying a tail of at most
// overlap runes into the next window.
func (c *RecursiveChunker) merge(pieces []string, sep string) []string {
	sepLen := utf8.RuneCountInString(sep)
	var (
		docs    []string
		current []string
		total   int
	)
	joinLen := func() int {
		if len(current) > 0 {
			return sepLen
		}
		return 0
	}
	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if total+n+joinLen() > c.size && len(current) > 0 {
			if doc := strings.TrimSpace(strings.Join(current, sep)); doc != "" {
				docs = append(docs, doc)
			}
			for total > c.overlap || (total > 0 && total+n+joinLen() > c.size) {
				drop := utf8.RuneCountInString(current[0])
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
			}
		}
		total += n + joinLen()
		current = append(current, p)
	}
	if doc := strings.TrimSpace(strings.Join(current, sep)); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func buildChunks(document domain.Document, sourceID string, texts []string) []domain.Chunk {
	chunks := make([]domain.Chunk, 0, len(texts))
	content := document.Content
	prevStart := -1
	for i, text := range texts {
		start := locate(content, text, prevStart+1)
		if start < 0 {
			start = locate(content, text, 0)
		}
		if start < 0 {
			// whitespace was normalised away; fall back to the previous position
			start = max(prevStart, 0)
		}
		prevStart = start
		chunks = append(chunks, domain.Chunk{
			Text:     text,
			SourceID: sourceID,
			Offset:   utf8.RuneCountInString(content[:start]),
			Index:    i,
			Metadata: domain.CloneMetadata(document.Metadata),
		})
	}
	return chunks
}

// locate returns the byte index of text in content at or after from.
func locate(content, text string, from int) int {
	if from > len(content) {
		return -1
	}
	i := strings.Index(content[from:], text)
	if i < 0 {
		return -1
	}
	return from + i
}

func sourceIDOf(document domain.Document) (string, error) {
	if document.ID != "" {
		return document.ID, nil
	}
	if id := document.Metadata[domain.MetaSourceID]; id != "" {
		return id, nil
	}
	return "", fmt.Errorf("document %q has no source id", document.Path)
}
