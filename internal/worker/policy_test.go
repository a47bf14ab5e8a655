package worker

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worldmodel-rl/internal/env"
)

func TestSoftmax(t *testing.T) {
	probs := softmax([]float64{1000, 1000})
	assert.InDelta(t, 0.5, probs[0], 1e-12)
	assert.InDelta(t, 0.5, probs[1], 1e-12)
}

func TestSoftmaxPolicyPrefersHigherLogit(t *testing.T) {
	p := NewSoftmaxPolicy(PolicyWeights{
		W: [][]float64{{0}, {10}},
		B: []float64{0, 0},
	})
	rng := rand.New(rand.NewSource(1))
	counts := [2]int{}
	for i := 0; i < 200; i++ {
		a, logProb := p.Action([]float64{1}, rng)
		counts[a]++
		assert.LessOrEqual(t, logProb, 0.0)
	}
	assert.Greater(t, counts[1], 190)

	act := p.Act([]float64{1}, rng)
	require.Len(t, act, 1)
	assert.True(t, env.Discrete{N: 2}.Contains(act))
}

func TestDefaultWeights(t *testing.T) {
	w := DefaultWeights(4, 2)
	require.Len(t, w.W, 2)
	assert.Equal(t, []float64{0.01, 0.01, 0.01, 0.01}, w.W[0])
	assert.Equal(t, []float64{-0.01, -0.01, -0.01, -0.01}, w.W[1])
	assert.Equal(t, []float64{0, 0}, w.B)
}

func TestRandomPolicy(t *testing.T) {
	p := RandomPolicy{Space: env.NewBox(2, -1, 1)}
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 20; i++ {
		a := p.Act(nil, rng)
		require.Len(t, a, 2)
		assert.False(t, math.Abs(a[0]) > 1 || math.Abs(a[1]) > 1)
	}
}
