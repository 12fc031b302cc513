package source

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"docrag/internal/domain"
)

// JSONReader flattens a JSON file into "path: value" lines.
type JSONReader struct{}

func (JSONReader) Read(path string) ([]domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	var lines []string
	flatten("", v, &lines)
	return []domain.Document{{Content: strings.Join(lines, "\n"), Metadata: map[string]string{}}}, nil
}

func flatten(prefix string, v any, out *[]string) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			p := k
			if prefix != "" {
				p = prefix + "." + k
			}
			flatten(p, t[k], out)
		}
	case []any:
		for i, e := range t {
			flatten(prefix+"["+strconv.Itoa(i)+"]", e, out)
		}
	case nil:
	default:
		if prefix == "" {
			*out = append(*out, fmt.Sprint(t))
			return
		}
		*out = append(*out, prefix+": "+fmt.Sprint(t))
	}
}
