// Package prng provides seeded, reproducible random streams for simulation.
// No stream ever reads system entropy: the same seed and algorithm always
// yield the same sequence on every platform.
package prng

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Algorithm names an approved generator.
type Algorithm string

const (
	// AlgorithmXorshift64Star is the default: fast and small-state.
	AlgorithmXorshift64Star Algorithm = "xorshift64star"
	// AlgorithmHMACSHA256 is HMAC-SHA256 over a counter with an HKDF-derived key.
	AlgorithmHMACSHA256 Algorithm = "hmac_sha256"
)

// ErrUnknownAlgorithm is returned by New for an unrecognized algorithm.
var ErrUnknownAlgorithm = errors.New("unknown prng algorithm")

// Source yields a deterministic stream of 64-bit values.
type Source interface {
	Uint64() uint64
}

// Config selects the generator.
type Config struct {
	Algorithm Algorithm `json:"algorithm" yaml:"algorithm"`
}

// DefaultConfig returns the default generator configuration.
func DefaultConfig() Config {
	return Config{Algorithm: AlgorithmXorshift64Star}
}

// PRNG is a deterministic generator. It is not safe for concurrent use;
// give each goroutine its own stream.
type PRNG struct {
	algorithm Algorithm
	seed      uint64
	src       Source
}

// New creates a generator for the given seed.
func New(cfg Config, seed uint64) (*PRNG, error) {
	algo := cfg.Algorithm
	if algo == "" {
		algo = AlgorithmXorshift64Star
	}

	var src Source
	switch algo {
	case AlgorithmXorshift64Star:
		src = newXorshift(seed)
	case AlgorithmHMACSHA256:
		h, err := newHMACSource(seed)
		if err != nil {
			return nil, err
		}
		src = h
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algo)
	}
	return &PRNG{algorithm: algo, seed: seed, src: src}, nil
}

// Seed returns the seed the stream was created from.
func (p *PRNG) Seed() uint64 { return p.seed }

// Algorithm returns the generator in use.
func (p *PRNG) Algorithm() Algorithm { return p.algorithm }

// Uint64 returns the next value.
func (p *PRNG) Uint64() uint64 {
	return p.src.Uint64()
}

// Intn returns a value in [0, n) by plain modulo reduction. n <= 0 yields 0.
func (p *PRNG) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(p.Uint64() % uint64(n)) //nolint:gosec // Safe modulo
}

// ChanceBPS reports true with probability bps/10000.
func (p *PRNG) ChanceBPS(bps uint16) bool {
	return p.Intn(10_000) < int(bps)
}

// xorshift64* seeded through splitmix64.
type xorshift struct {
	state uint64
}

func newXorshift(seed uint64) *xorshift {
	state := splitmix64(seed)
	if state == 0 {
		// Zero is the one fixed point of xorshift.
		state = 0x9E3779B97F4A7C15
	}
	return &xorshift{state: state}
}

func (x *xorshift) Uint64() uint64 {
	s := x.state
	s ^= s >> 12
	s ^= s << 25
	s ^= s >> 27
	x.state = s
	return s * 0x2545F4914F6CDD1D
}

func splitmix64(seed uint64) uint64 {
	z := seed + 0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// hmacSource is HMAC(key, counter) with key = HKDF-SHA256(seed).
type hmacSource struct {
	key     []byte
	counter uint64
	buf     [8]byte
}

func newHMACSource(seed uint64) (*hmacSource, error) {
	var ikm [8]byte
	binary.BigEndian.PutUint64(ikm[:], seed)

	r := hkdf.New(sha256.New, ikm[:], []byte("trustengine-prng"), []byte(AlgorithmHMACSHA256))
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("HKDF derivation failed: %w", err)
	}
	return &hmacSource{key: key}, nil
}

func (h *hmacSource) Uint64() uint64 {
	h.counter++
	binary.BigEndian.PutUint64(h.buf[:], h.counter)

	mac := hmac.New(sha256.New, h.key)
	mac.Write(h.buf[:])
	sum := mac.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8])
}
