package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlotMask(t *testing.T) {
	m := SlotBit(1).With(4).With(5)
	assert.True(t, m.Has(4))
	assert.False(t, m.Has(2))
	assert.Equal(t, 3, m.Count())
	assert.Equal(t, []uint32{1, 4, 5}, m.Slots())
	assert.Equal(t, uint32(6), m.Highest())
	assert.Equal(t, "{1,4,5}", m.String())
	assert.Equal(t, SlotBit(1)|SlotBit(5), m.Without(4))

	assert.True(t, SlotMask(0).IsEmpty())
	assert.Zero(t, SlotMask(0).Highest())
	assert.Equal(t, "{}", SlotMask(0).String())
}

func TestSlotRange(t *testing.T) {
	assert.Equal(t, SlotMask(0b11100), SlotRange(2, 5))
	assert.Equal(t, SlotMask(0), SlotRange(3, 3))
	assert.Equal(t, SlotMask(0b111), AllSlots(3))
	assert.Equal(t, ^SlotMask(0), AllSlots(SlotMaskWidth))
	assert.Equal(t, 64, AllSlots(SlotMaskWidth).Count())
}

func TestSlotMaskPanicsPastWidth(t *testing.T) {
	assert.Panics(t, func() { SlotBit(SlotMaskWidth) })
	assert.Panics(t, func() { SlotMask(0).Has(70) })
	assert.Panics(t, func() { SlotRange(0, SlotMaskWidth+1) })
	assert.Panics(t, func() { SlotRange(4, 2) })
}
