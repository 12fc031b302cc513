package source

import (
	"os"
	"strings"

	"docrag/internal/domain"
)

// TextReader reads a plain text file as a single document.
type TextReader struct {
	Format string
}

func (r TextReader) Read(path string) ([]domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	content := strings.ToValidUTF8(string(data), "�")
	content = strings.ReplaceAll(content, "\r\n", "\n")
	md := map[string]string{}
	if r.Format != "" {
		md[domain.MetaFormat] = r.Format
	}
	return []domain.Document{{Content: content, Metadata: md}}, nil
}
