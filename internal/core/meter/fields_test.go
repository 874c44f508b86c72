package meter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFieldStoreUnknownField(t *testing.T) {
	store := NewFieldStore()

	_, ok := store.Get(FieldPower)
	assert.False(t, ok)
	assert.False(t, store.Measured(FieldPower))
}

func TestFieldStoreMeasuredOverwrites(t *testing.T) {
	store := NewFieldStore()

	store.Set(FieldPower, 100)
	store.Set(FieldPower, 200)

	v, ok := store.Get(FieldPower)
	assert.True(t, ok)
	assert.Equal(t, float64(200), v)
	assert.True(t, store.Measured(FieldPower))
}

func TestFieldStoreSynthesizedNeverReplacesMeasured(t *testing.T) {
	store := NewFieldStore()

	store.SetSynthesized(FieldPowerL1, 300)
	v, _ := store.Get(FieldPowerL1)
	assert.Equal(t, float64(300), v)
	assert.False(t, store.Measured(FieldPowerL1))

	// synthesized values keep updating each other
	store.SetSynthesized(FieldPowerL1, 400)
	v, _ = store.Get(FieldPowerL1)
	assert.Equal(t, float64(400), v)

	// a real reading owns the field permanently
	store.Set(FieldPowerL1, 500)
	store.SetSynthesized(FieldPowerL1, 123)
	v, _ = store.Get(FieldPowerL1)
	assert.Equal(t, float64(500), v)
	assert.True(t, store.Measured(FieldPowerL1))
}
