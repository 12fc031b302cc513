package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"docrag/internal/domain"
)

// CSVReader yields one document per data row, formatted as
// "column: value" lines using the header row.
type CSVReader struct{}

func (CSVReader) Read(path string) ([]domain.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	var docs []domain.Document
	for row := 1; ; row++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv row %d: %w", row, err)
		}
		var b strings.Builder
		for i, v := range rec {
			name := "column" + strconv.Itoa(i+1)
			if i < len(header) && strings.TrimSpace(header[i]) != "" {
				name = strings.TrimSpace(header[i])
			}
			fmt.Fprintf(&b, "%s: %s\n", name, strings.TrimSpace(v))
		}
		docs = append(docs, domain.Document{
			Content:  strings.TrimRight(b.String(), "\n"),
			Metadata: map[string]string{"row": strconv.Itoa(row)},
		})
	}
	return docs, nil
}
