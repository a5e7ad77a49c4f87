package rng

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnownSequence(t *testing.T) {
	s := New(1)
	assert.Equal(t, 0.6270739405881613, s.Next())
	assert.Equal(t, 0.002735721180215478, s.Next())
	assert.Equal(t, 0.5274470399599522, s.Next())

	s.Seed(20260206)
	assert.Equal(t, 0.9423346153926104, s.Next())
	assert.Equal(t, 0.49658016487956047, s.Next())
	assert.Equal(t, 0.3899669728707522, s.Next())
}

func TestZeroSeedMatchesOne(t *testing.T) {
	a, b := New(0), New(1)
	for i := 0; i < 10; i++ {
		require.Equal(t, b.Next(), a.Next())
	}
	assert.Equal(t, uint32(0), a.SeedValue())
}

func TestReseedRestartsStream(t *testing.T) {
	s := New(42)
	first := []float64{s.Next(), s.Next(), s.Next()}
	s.Seed(42)
	assert.Equal(t, first, []float64{s.Next(), s.Next(), s.Next()})
}

func TestNextInt(t *testing.T) {
	s := New(20260206)
	got := make([]int, 5)
	for i := range got {
		got[i] = s.NextInt(1, 6)
	}
	assert.Equal(t, []int{6, 3, 3, 4, 4}, got)

	s.Seed(7)
	for i := 0; i < 1000; i++ {
		n := s.NextInt(-2, 2)
		require.GreaterOrEqual(t, n, -2)
		require.LessOrEqual(t, n, 2)
	}
}

func TestNextRange(t *testing.T) {
	s := New(99)
	for i := 0; i < 10000; i++ {
		v := s.Next()
		require.GreaterOrEqual(t, v, 0.0)
		require.Less(t, v, 1.0)
	}
}
