package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_Reserve(t *testing.T) {
	r := &Record{Quantity: 10, Reserved: 3}

	require.NoError(t, r.Reserve(5))
	assert.Equal(t, int64(8), r.Reserved)
	assert.Equal(t, int64(2), r.Available())

	assert.ErrorIs(t, r.Reserve(3), ErrInsufficientStock)
	assert.ErrorIs(t, r.Reserve(0), ErrInvalidQuantity)
	assert.ErrorIs(t, r.Reserve(-1), ErrInvalidQuantity)

	// Failed calls leave the record unchanged.
	assert.Equal(t, int64(10), r.Quantity)
	assert.Equal(t, int64(8), r.Reserved)
}

func TestRecord_Release(t *testing.T) {
	r := &Record{Quantity: 10, Reserved: 4}

	require.NoError(t, r.Release(3))
	assert.Equal(t, int64(1), r.Reserved)

	assert.ErrorIs(t, r.Release(2), ErrOverRelease)
	assert.ErrorIs(t, r.Release(0), ErrInvalidQuantity)
}

func TestRecord_Commit(t *testing.T) {
	r := &Record{Quantity: 10, Reserved: 4}

	require.NoError(t, r.Commit(3))
	assert.Equal(t, int64(7), r.Quantity)
	assert.Equal(t, int64(1), r.Reserved)

	// Commit is bounded by the reservation, not just the on-hand quantity.
	assert.ErrorIs(t, r.Commit(2), ErrInsufficientReserved)
	assert.ErrorIs(t, r.Commit(0), ErrInvalidQuantity)
}

func TestRecord_SetQuantity(t *testing.T) {
	r := &Record{Quantity: 10, Reserved: 4}

	require.NoError(t, r.SetQuantity(6))
	assert.Equal(t, int64(6), r.Quantity)

	assert.ErrorIs(t, r.SetQuantity(3), ErrBelowReserved)
	assert.ErrorIs(t, r.SetQuantity(-1), ErrInvalidQuantity)
	require.NoError(t, r.SetQuantity(4))
	assert.Equal(t, int64(0), r.Available())
}

func TestRecord_Adjust(t *testing.T) {
	r := &Record{Quantity: 10, Reserved: 4}

	require.NoError(t, r.Adjust(-5))
	assert.Equal(t, int64(5), r.Quantity)

	assert.ErrorIs(t, r.Adjust(-2), ErrBelowReserved)
	assert.ErrorIs(t, r.Adjust(-10), ErrInvalidQuantity)

	require.NoError(t, r.Adjust(7))
	assert.Equal(t, int64(12), r.Quantity)
}
