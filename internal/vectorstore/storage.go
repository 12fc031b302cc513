package vectorstore

import (
	"fmt"
	"strings"

	"docrag/internal/domain"
)

// Storage persists vectors and supports similarity search.
type Storage interface {
	domain.VectorIndex
	Metric() Metric
	Entries() []domain.Entry
	Reset()
}

// Metric selects how stored vectors are compared with a query.
type Metric string

const (
	Cosine    Metric = "cosine"
	Euclidean Metric = "euclidean"
)

// ParseMetric accepts a metric name, defaulting to cosine when empty.
func ParseMetric(s string) (Metric, error) {
	switch Metric(strings.ToLower(strings.TrimSpace(s))) {
	case "", Cosine:
		return Cosine, nil
	case Euclidean:
		return Euclidean, nil
	default:
		return "", fmt.Errorf("%w: unknown metric %q", domain.ErrConfiguration, s)
	}
}
