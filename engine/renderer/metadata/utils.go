package metadata

import "golang.org/x/exp/constraints"

func GetAlignedRange(offset, size, granularity uint64) *MemoryRange {
	m := &MemoryRange{
		Offset: GetAligned(offset, granularity),
		Size:   GetAligned(size, granularity),
	}
	return m
}

// GetAligned rounds operand up to granularity, which must be a power of two.
func GetAligned[T constraints.Unsigned](operand, granularity T) T {
	if granularity == 0 {
		return operand
	}
	return (operand + (granularity - 1)) &^ (granularity - 1)
}
