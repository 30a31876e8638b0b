package coreerrors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDefaultsCategoryAndComponent(t *testing.T) {
	t.Parallel()

	err := New(fmt.Errorf("boom")).Build()
	require.NotNil(t, err)
	assert.Equal(t, "boom", err.Error())
	assert.Equal(t, CategoryGeneric, err.Category)
	assert.NotEmpty(t, err.GetComponent())
}

func TestBuildHonorsExplicitComponentAndCategory(t *testing.T) {
	t.Parallel()

	err := New(nil).
		Component("pitch-detector").
		Category(CategoryValidation).
		Context("window_size", 1024).
		Build()

	assert.Equal(t, "pitch-detector", err.GetComponent())
	assert.Equal(t, CategoryValidation, err.Category)
	assert.Equal(t, 1024, err.GetContext()["window_size"])
}

func TestNewfFormatsMessage(t *testing.T) {
	t.Parallel()

	err := Newf("expected %d samples, got %d", 1024, 512).Build()
	assert.Equal(t, "expected 1024 samples, got 512", err.Error())
}

func TestIsCategoryAndIsNotFound(t *testing.T) {
	t.Parallel()

	err := New(nil).Category(CategoryNotFound).Build()
	assert.True(t, IsCategory(err, CategoryNotFound))
	assert.True(t, IsNotFound(err))
	assert.False(t, IsCategory(err, CategoryValidation))
}

func TestPriorityFallsBackToMediumOnInvalidValue(t *testing.T) {
	t.Parallel()

	err := New(nil).Priority("urgent-ish").Build()
	assert.Equal(t, PriorityMedium, err.Priority)
}

func TestUnwrapAndIs(t *testing.T) {
	t.Parallel()

	sentinel := fmt.Errorf("sentinel")
	wrapped := New(sentinel).Category(CategoryState).Build()
	assert.ErrorIs(t, wrapped, sentinel)

	other := New(nil).Category(CategoryState).Build()
	assert.True(t, wrapped.Is(other))
}
