package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDimensionMismatchErrorIs(t *testing.T) {
	err := fmt.Errorf("insert: %w", &DimensionMismatchError{Want: 768, Got: 384})
	require.ErrorIs(t, err, ErrDimensionMismatch)
	assert.NotErrorIs(t, err, ErrCorruptIndex)

	var dm *DimensionMismatchError
	require.True(t, errors.As(err, &dm))
	assert.Equal(t, 768, dm.Want)
	assert.Equal(t, 384, dm.Got)
	assert.Contains(t, err.Error(), "index has 768, vector has 384")
}

func TestCloneMetadata(t *testing.T) {
	src := map[string]string{"source_id": "a"}
	out := CloneMetadata(src)
	out["source_id"] = "b"
	assert.Equal(t, "a", src["source_id"])
	assert.NotNil(t, CloneMetadata(nil))
}
