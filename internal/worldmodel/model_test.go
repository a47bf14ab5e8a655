package worldmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worldmodel-rl/internal/buffer"
	"worldmodel-rl/internal/encoder"
)

func step(i int, terminal bool) buffer.Transition {
	return buffer.Transition{
		State0:   []float64{float64(i), 0},
		Action:   []float64{float64(10 + i)},
		Reward:   float64(100 + i),
		State1:   []float64{float64(i + 1), 0},
		Terminal: terminal,
	}
}

func TestDecomposeAlignsHistoryWithTarget(t *testing.T) {
	window := []buffer.Transition{step(0, false), step(1, false), step(2, false), step(3, true)}
	ex, err := Decompose(window, encoder.Identity{Frames: 1, Size: 2})
	require.NoError(t, err)

	assert.Equal(t, [][]float64{{1, 0}, {2, 0}, {3, 0}}, ex.Latents)
	assert.Equal(t, [][]float64{{11}, {12}, {13}}, ex.Actions)
	assert.Equal(t, []float64{4, 0}, ex.Next)
	assert.Equal(t, 103.0, ex.Reward)
	assert.True(t, ex.Terminal)
}

func TestDecomposeErrors(t *testing.T) {
	_, err := Decompose([]buffer.Transition{step(0, false)}, encoder.Identity{Frames: 1, Size: 2})
	assert.ErrorIs(t, err, ErrShape)

	_, err = Decompose([]buffer.Transition{step(0, false), step(1, false)}, encoder.Identity{Frames: 1, Size: 3})
	assert.ErrorIs(t, err, encoder.ErrShape)
}

func TestOneStep(t *testing.T) {
	examples, err := OneStep([]buffer.Transition{step(0, false), step(1, true)}, encoder.Identity{Frames: 1, Size: 2})
	require.NoError(t, err)
	require.Len(t, examples, 2)
	assert.Equal(t, [][]float64{{1, 0}}, examples[1].Latents)
	assert.Equal(t, []float64{2, 0}, examples[1].Next)
	assert.True(t, examples[1].Terminal)
}
