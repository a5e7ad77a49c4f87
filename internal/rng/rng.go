// Package rng provides the seeded random source used for every gameplay
// decision. The generator is mulberry32, so a seed produces the same stream
// on every platform.
package rng

import "math"

// Source is a reproducible pseudo-random stream. It is not safe for
// concurrent use.
type Source struct {
	seed  uint32
	state uint32
}

// New returns a Source seeded with n.
func New(n int64) *Source {
	s := &Source{}
	s.Seed(n)
	return s
}

// Seed resets the stream. Only the low 32 bits of n are used; a zero seed
// behaves like seed 1.
func (s *Source) Seed(n int64) {
	s.seed = uint32(n)
	s.state = s.seed
	if s.state == 0 {
		s.state = 1
	}
}

// SeedValue returns the seed the stream was last reset with.
func (s *Source) SeedValue() uint32 {
	return s.seed
}

// Next returns a float in [0,1).
func (s *Source) Next() float64 {
	s.state += 0x6d2b79f5
	t := s.state
	t = (t ^ (t >> 15)) * (t | 1)
	t ^= t + (t^(t>>7))*(t|61)
	return float64(t^(t>>14)) / 4294967296.0
}

// NextInt returns an integer in the inclusive range [min, max].
func (s *Source) NextInt(min, max int) int {
	if max < min {
		min, max = max, min
	}
	return min + int(math.Floor(s.Next()*float64(max-min+1)))
}

// Chance reports whether a draw falls under probability p.
func (s *Source) Chance(p float64) bool {
	return s.Next() < p
}
