package env

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscrete(t *testing.T) {
	d := Discrete{N: 3}
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		a := d.Sample(rng)
		require.True(t, d.Contains(a), "sample %v", a)
	}

	idx, err := d.Index([]float64{2})
	require.NoError(t, err)
	assert.Equal(t, 2, idx)

	for _, bad := range [][]float64{{3}, {-1}, {0.5}, {0, 1}} {
		_, err := d.Index(bad)
		assert.Error(t, err, "%v", bad)
	}
}

func TestBox(t *testing.T) {
	b := NewBox(2, -1, 1)
	assert.Equal(t, 2, b.Dim())
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 50; i++ {
		require.True(t, b.Contains(b.Sample(rng)))
	}
	assert.Equal(t, []float64{-1, 0.5}, b.Clip([]float64{-3, 0.5}))
	assert.False(t, b.Contains([]float64{0}))
}

func TestJointStep(t *testing.T) {
	s := JointStep{Dones: []bool{false, true}}
	assert.True(t, s.AnyDone())
	assert.False(t, JointStep{Dones: []bool{false}}.AnyDone())
	assert.Equal(t, []float64{1, 2, 3}, Flatten([][]float64{{1}, {2, 3}}))
}
