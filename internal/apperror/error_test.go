package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIs(t *testing.T) {
	t.Run("Matches kind sentinel", func(t *testing.T) {
		err := Validation("quantity must be positive")
		assert.True(t, errors.Is(err, ErrValidation))
		assert.False(t, errors.Is(err, ErrNotFound))
	})

	t.Run("Matches through wrapping", func(t *testing.T) {
		err := fmt.Errorf("place order: %w", NotFound("product %s not found", "p1"))
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.Equal(t, "place order: product p1 not found", err.Error())
	})

	t.Run("Specific errors do not match each other", func(t *testing.T) {
		a := NotFound("a")
		b := NotFound("b")
		assert.False(t, errors.Is(a, b))
		assert.True(t, errors.Is(a, a))
	})
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindConflict, KindOf(Conflict("price changed")))
	assert.Equal(t, KindStoreFailure, KindOf(errors.New("connection refused")))
	assert.Equal(t, KindForbidden, KindOf(fmt.Errorf("wrap: %w", ErrForbidden)))
}

func TestInsufficientStock(t *testing.T) {
	err := InsufficientStock("p1", "Yoga Mat", 3, 1)

	assert.True(t, errors.Is(err, ErrInsufficientStock))
	assert.Contains(t, err.Error(), "Yoga Mat")

	details := DetailsOf(fmt.Errorf("wrapped: %w", err))
	assert.Equal(t, "p1", details["productId"])
	assert.Equal(t, 3, details["requested"])
	assert.Equal(t, 1, details["available"])
}

func TestInvalidTransition(t *testing.T) {
	err := InvalidTransition("delivered", "cancelled")
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, "cannot change order status from delivered to cancelled", err.Error())
	assert.Nil(t, DetailsOf(errors.New("plain")))
}
