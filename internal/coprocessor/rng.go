package coprocessor

import (
	"encoding/binary"
	"fmt"

	"obscuraplay/internal/gcrypto"
)

// deterministicRng expands a secret key and a public seed into a stream of uniform
// 64-bit words. Nodes sharing the key agree on the stream; without the key the seed
// reveals nothing about it.
type deterministicRng struct {
	key     []byte
	seed    []byte
	counter uint32
}

func newDeterministicRng(key, seed []byte) (*deterministicRng, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("deterministicRng: empty key")
	}
	if len(seed) == 0 {
		return nil, fmt.Errorf("deterministicRng: empty seed")
	}
	return &deterministicRng{
		key:  append([]byte(nil), key...),
		seed: append([]byte(nil), seed...),
	}, nil
}

func (r *deterministicRng) nextU64() (uint64, error) {
	c := make([]byte, 4)
	binary.LittleEndian.PutUint32(c, r.counter)
	r.counter++
	s, err := gcrypto.HashToScalar("obscura/v1/coprocessor/rng", r.key, r.seed, c)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(s.Bytes()[:8]), nil
}

// uniform returns a value in [0, bound) by rejection sampling, so no residue class
// is favored.
func (r *deterministicRng) uniform(bound uint64) (uint64, error) {
	if bound == 0 {
		return 0, fmt.Errorf("deterministicRng: zero bound")
	}
	limit := ^uint64(0) - (^uint64(0) % bound)
	for {
		v, err := r.nextU64()
		if err != nil {
			return 0, err
		}
		if v < limit {
			return v % bound, nil
		}
	}
}
