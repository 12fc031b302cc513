package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"docrag/internal/domain"
)

// SentenceChunker splits text into sentence-based chunks with overlap.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
	splitter          *regexp.Regexp
}

func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = 5
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	if overlapSentences >= sentencesPerChunk {
		overlapSentences = sentencesPerChunk - 1
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
		splitter:          regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
	}
}

// Chunk groups consecutive sentences; each chunk is the verbatim source
// span from its first to its last sentence.
func (c *SentenceChunker) Chunk(document domain.Document) ([]domain.Chunk, error) {
	sourceID, err := sourceIDOf(document)
	if err != nil {
		return nil, err
	}
	content := document.Content
	spans := c.splitter.FindAllStringIndex(content, -1)
	if len(spans) == 0 {
		if strings.TrimSpace(content) == "" {
			return nil, nil
		}
		spans = [][]int{{0, len(content)}}
	} else if last := spans[len(spans)-1][1]; strings.TrimSpace(content[last:]) != "" {
		// trailing text without terminal punctuation
		spans = append(spans, []int{last, len(content)})
	}
	var chunks []domain.Chunk
	i := 0
	idx := 0
	for i < len(spans) {
		end := i + c.sentencesPerChunk
		if end > len(spans) {
			end = len(spans)
		}
		start, stop := spans[i][0], spans[end-1][1]
		raw := content[start:stop]
		trimmed := strings.TrimLeft(raw, " \t\r\n")
		start += len(raw) - len(trimmed)
		chunks = append(chunks, domain.Chunk{
			Text:     strings.TrimSpace(trimmed),
			SourceID: sourceID,
			Offset:   utf8.RuneCountInString(content[:start]),
			Index:    idx,
			Metadata: domain.CloneMetadata(document.Metadata),
		})
		if end == len(spans) {
			break
		}
		i = end - c.overlapSentences
		idx++
	}
	return chunks, nil
}
