package embedding

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/domain"
)

func TestBatches(t *testing.T) {
	batches, offsets := Batches([]string{"a", "b", "c", "d", "e"}, 2)
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, batches)
	assert.Equal(t, []int{0, 2, 4}, offsets)

	batches, offsets = Batches(nil, 3)
	assert.Empty(t, batches)
	assert.Empty(t, offsets)

	batches, _ = Batches([]string{"a", "b"}, 0)
	assert.Len(t, batches, 1)
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	Normalize(v)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	Normalize(zero)
	assert.Equal(t, []float32{0, 0}, zero)
	assert.False(t, math.IsNaN(float64(zero[0])))
}

func TestCheckDimension(t *testing.T) {
	require.NoError(t, CheckDimension("m", 2, []float32{1, 2}))
	require.NoError(t, CheckDimension("m", 0, []float32{1}))
	require.ErrorIs(t, CheckDimension("m", 3, []float32{1, 2}), domain.ErrDimensionMismatch)
	require.Error(t, CheckDimension("m", 0, nil))
}
