package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentifiersAreUnique(t *testing.T) {
	a, b := NewIdentifier(), NewIdentifier()
	assert.NotEqual(t, a.UUID, b.UUID)
	assert.NotEqual(t, a.Hash, b.Hash)
	assert.Equal(t, a.UUID.String(), a.String())
}

func TestHashName(t *testing.T) {
	assert.Equal(t, HashName("Diffuse"), HashName("Diffuse"))
	assert.NotEqual(t, HashName("Diffuse"), HashName("diffuse"))
	// FNV-1a offset basis
	assert.Equal(t, uint64(0xcbf29ce484222325), HashName(""))
}

func TestHashCombineIsOrderDependent(t *testing.T) {
	assert.NotEqual(t, HashCombine(0, 1, 2), HashCombine(0, 2, 1))
	assert.Equal(t, HashCombine(HashCombine(7, 1), 2), HashCombine(7, 1, 2))
	assert.Equal(t, uint64(7), HashCombine(7))
}
