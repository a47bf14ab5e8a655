package encoder

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worldmodel-rl/internal/cartpole"
)

func TestProjectionShapeIsConstant(t *testing.T) {
	p, err := NewProjection(4, 3, 8, 1)
	require.NoError(t, err)
	assert.Equal(t, 8, p.Dim())
	assert.Equal(t, 3, p.Window())

	rng := rand.New(rand.NewSource(5))
	for n := 1; n <= 5; n++ {
		batch := make([][]float64, n)
		for i := range batch {
			batch[i] = make([]float64, 12)
			for j := range batch[i] {
				batch[i][j] = rng.NormFloat64()
			}
		}
		out, err := p.Encode(batch)
		require.NoError(t, err)
		require.Len(t, out, n)
		for _, latent := range out {
			require.Len(t, latent, 8)
			for _, v := range latent {
				assert.GreaterOrEqual(t, v, 0.0)
			}
		}
	}
}

func TestProjectionIsDeterministic(t *testing.T) {
	a, err := NewProjection(2, 2, 3, 42)
	require.NoError(t, err)
	b, err := NewProjection(2, 2, 3, 42)
	require.NoError(t, err)

	in := [][]float64{{1, -2, 0.5, 3}}
	outA, err := a.Encode(in)
	require.NoError(t, err)
	outB, err := b.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, outA, outB)

	again, err := a.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, outA, again)
}

func TestEncodeRejectsWrongShape(t *testing.T) {
	p, err := NewProjection(2, 2, 3, 1)
	require.NoError(t, err)
	_, err = p.Encode([][]float64{{1, 2, 3}})
	assert.ErrorIs(t, err, ErrShape)

	_, err = Identity{Frames: 1, Size: 2}.Encode([][]float64{{1}})
	assert.ErrorIs(t, err, ErrShape)

	_, err = NewProjection(0, 2, 3, 1)
	assert.Error(t, err)
}

func TestFrameStack(t *testing.T) {
	s := NewFrameStack(3)
	s.Reset([]float64{1, 1})
	assert.Equal(t, []float64{1, 1, 1, 1, 1, 1}, s.Stack())

	s.Push([]float64{2, 2})
	s.Push([]float64{3, 3})
	s.Push([]float64{4, 4})
	assert.Equal(t, []float64{2, 2, 3, 3, 4, 4}, s.Stack())
}

func TestEncodedEnv(t *testing.T) {
	p, err := NewProjection(4, 2, 6, 3)
	require.NoError(t, err)
	e := NewEncodedEnv(cartpole.NewEnv(rand.New(rand.NewSource(1))), p)

	obs, err := e.Reset()
	require.NoError(t, err)
	assert.Len(t, obs, 6)
	assert.Equal(t, 6, e.ObservationSpace().Dim())

	next, reward, _, _, err := e.Step([]float64{0})
	require.NoError(t, err)
	assert.Len(t, next, 6)
	assert.Equal(t, 1.0, reward)
}
