// Package payload generates message keys and values as pure functions of the
// message index, so producer and consumer agree on content without sharing
// state.
package payload

import (
	"encoding/binary"
	"fmt"
	"math/rand"
)

// KeyWidth is the fixed width of the message key carrying the index.
const KeyWidth = 4

// Generator produces the bytes for a given message index. Implementations
// must be pure: the same index always yields the same bytes, with no shared
// mutable state, so they are safe to call concurrently.
type Generator interface {
	Generate(index int64) []byte
}

// Sequential encodes index+start as a little-endian integer truncated to
// width bytes. The four-byte variant is the standard message key.
type Sequential struct {
	width int
	start int64
}

func NewSequential(width int, start int64) Sequential {
	if width <= 0 || width > 8 {
		width = KeyWidth
	}
	return Sequential{width: width, start: start}
}

// NewKeyGenerator returns the standard 4-byte key generator.
func NewKeyGenerator() Sequential {
	return NewSequential(KeyWidth, 0)
}

func (s Sequential) Generate(index int64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(s.start+index))
	out := make([]byte, s.width)
	copy(out, buf[:s.width])
	return out
}

// DecodeIndex recovers the message index from a key produced by the standard
// key generator.
func DecodeIndex(key []byte) (int64, error) {
	if len(key) < KeyWidth {
		return 0, fmt.Errorf("message key too short: %d bytes, need %d", len(key), KeyWidth)
	}
	return int64(int32(binary.LittleEndian.Uint32(key))), nil
}

// Constant yields the same fixed-size zero-filled value for every index.
type Constant struct {
	value []byte
}

func NewConstant(size int) Constant {
	if size < 0 {
		size = 0
	}
	return Constant{value: make([]byte, size)}
}

func (c Constant) Generate(int64) []byte {
	out := make([]byte, len(c.value))
	copy(out, c.value)
	return out
}

// UniformRandom yields size bytes drawn from a PRNG seeded with the base seed
// plus the index, so each index has stable but distinct content.
type UniformRandom struct {
	size int
	seed int64
}

func NewUniformRandom(size int, seed int64) UniformRandom {
	if size < 0 {
		size = 0
	}
	return UniformRandom{size: size, seed: seed}
}

func (u UniformRandom) Generate(index int64) []byte {
	out := make([]byte, u.size)
	rnd := rand.New(rand.NewSource(u.seed + index))
	rnd.Read(out)
	return out
}
