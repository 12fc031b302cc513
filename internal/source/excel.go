package source

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"docrag/internal/domain"
)

// ErrLegacyExcel is returned for binary .xls workbooks, which excelize
// cannot open.
var ErrLegacyExcel = errors.New("legacy .xls workbooks are not supported, convert to .xlsx")

// ExcelReader yields one document per non-empty sheet, one line per row
// with cells separated by tabs.
type ExcelReader struct{}

func (ExcelReader) Read(path string) ([]domain.Document, error) {
	if strings.EqualFold(filepath.Ext(path), ".xls") {
		return nil, ErrLegacyExcel
	}
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var docs []domain.Document
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheet, err)
		}
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, "\t"))
			if line != "" {
				lines = append(lines, line)
			}
		}
		if len(lines) == 0 {
			continue
		}
		docs = append(docs, domain.Document{
			Content:  strings.Join(lines, "\n"),
			Metadata: map[string]string{"sheet": sheet},
		})
	}
	return docs, nil
}
