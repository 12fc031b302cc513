package source

import (
	"fmt"
	"strconv"

	"github.com/ledongthuc/pdf"

	"docrag/internal/domain"
)

// PDFReader yields one document per page with extractable text.
type PDFReader struct{}

func (PDFReader) Read(path string) (docs []domain.Document, err error) {
	// the pdf package panics on some malformed streams
	defer func() {
		if p := recover(); p != nil {
			docs, err = nil, fmt.Errorf("read pdf: %v", p)
		}
	}()
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		docs = append(docs, domain.Document{
			Content:  content,
			Metadata: map[string]string{"page": strconv.Itoa(i)},
		})
	}
	return docs, nil
}
