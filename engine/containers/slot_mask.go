package containers

import (
	"fmt"
	"math/bits"
	"strings"
)

// SlotMaskWidth is the number of slots a descriptor set can track.
const SlotMaskWidth = 64

// SlotMask is a fixed-width set of slot indices. Indices at or past
// SlotMaskWidth panic instead of truncating.
type SlotMask uint64

func checkSlot(slot uint32) {
	if slot >= SlotMaskWidth {
		panic(fmt.Sprintf("slot %d exceeds slot mask width %d", slot, SlotMaskWidth))
	}
}

func SlotBit(slot uint32) SlotMask {
	checkSlot(slot)
	return SlotMask(1) << slot
}

// SlotRange returns the mask with bits [begin, end) set.
func SlotRange(begin, end uint32) SlotMask {
	if end < begin {
		panic(fmt.Sprintf("invalid slot range %d..%d", begin, end))
	}
	if end > SlotMaskWidth {
		panic(fmt.Sprintf("slot range end %d exceeds slot mask width %d", end, SlotMaskWidth))
	}
	if end-begin == SlotMaskWidth {
		return ^SlotMask(0)
	}
	return ((SlotMask(1) << (end - begin)) - 1) << begin
}

// AllSlots returns the mask covering the first count slots.
func AllSlots(count int) SlotMask {
	return SlotRange(0, uint32(count))
}

func (m SlotMask) Has(slot uint32) bool {
	checkSlot(slot)
	return m&(SlotMask(1)<<slot) != 0
}

func (m SlotMask) With(slot uint32) SlotMask {
	return m | SlotBit(slot)
}

func (m SlotMask) Without(slot uint32) SlotMask {
	return m &^ SlotBit(slot)
}

func (m SlotMask) Count() int {
	return bits.OnesCount64(uint64(m))
}

func (m SlotMask) IsEmpty() bool {
	return m == 0
}

// Slots lists the set indices in ascending order.
func (m SlotMask) Slots() []uint32 {
	out := make([]uint32, 0, m.Count())
	for v := uint64(m); v != 0; v &= v - 1 {
		out = append(out, uint32(bits.TrailingZeros64(v)))
	}
	return out
}

// Highest returns one past the highest set slot, or 0 for an empty mask.
func (m SlotMask) Highest() uint32 {
	return uint32(SlotMaskWidth - bits.LeadingZeros64(uint64(m)))
}

func (m SlotMask) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, s := range m.Slots() {
		if i > 0 {
			sb.WriteByte(',')
		}
		fmt.Fprintf(&sb, "%d", s)
	}
	sb.WriteByte('}')
	return sb.String()
}
