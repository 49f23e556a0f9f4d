package core

import (
	"hash/fnv"

	"github.com/google/uuid"
)

// Identifier is a process-unique id for objects that own cached device state,
// like a bound signature file or a recording context.
type Identifier struct {
	UUID uuid.UUID
	Hash uint64
}

func NewIdentifier() Identifier {
	id := uuid.New()
	h := fnv.New64a()
	h.Write(id[:])
	return Identifier{UUID: id, Hash: h.Sum64()}
}

func (i Identifier) String() string {
	return i.UUID.String()
}

// HashName is the FNV-1a hash used for every binding name lookup.
func HashName(name string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return h.Sum64()
}

// HashCombine folds value into seed.
func HashCombine(seed uint64, values ...uint64) uint64 {
	for _, v := range values {
		seed ^= v + 0x9e3779b97f4a7c15 + (seed << 6) + (seed >> 2)
	}
	return seed
}
