package embedding

import (
	"fmt"
	"math"

	"docrag/internal/domain"
)

// Embedder converts free text into a numeric vector representation.
// A single model is bound at construction; every vector it returns has
// Dimension() elements and Embed preserves input order.
type Embedder = domain.Embedder

// Batches splits texts into consecutive groups of at most size elements.
// The returned offsets give the index of each batch's first element.
func Batches(texts []string, size int) (batches [][]string, offsets []int) {
	if size <= 0 {
		size = len(texts)
	}
	for start := 0; start < len(texts); start += size {
		end := min(start+size, len(texts))
		batches = append(batches, texts[start:end])
		offsets = append(offsets, start)
	}
	return batches, offsets
}

// Normalize scales v to unit length in place. Zero vectors are left as is.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

// CheckDimension verifies that a model returned a vector of the expected size.
func CheckDimension(model string, want int, v []float32) error {
	if want > 0 && len(v) != want {
		return fmt.Errorf("%s: %w", model, &domain.DimensionMismatchError{Want: want, Got: len(v)})
	}
	if len(v) == 0 {
		return fmt.Errorf("%s: empty embedding returned", model)
	}
	return nil
}
