package particles

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEpisodeEndsAtMaxSteps(t *testing.T) {
	e, err := NewEnv(3, 5, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	obs, err := e.Reset()
	require.NoError(t, err)
	require.Len(t, obs, 3)
	for _, o := range obs {
		assert.Len(t, o, e.ObservationSpace(0).Dim())
	}

	actions := [][]float64{{0, 0}, {0, 0}, {0, 0}}
	for i := 1; i <= 5; i++ {
		step, err := e.Step(actions)
		require.NoError(t, err)
		assert.Equal(t, i == 5, step.AnyDone(), "step %d", i)
		assert.Len(t, step.Rewards, 3)
	}
}

func TestRealizedActionsAreClipped(t *testing.T) {
	e, err := NewEnv(2, 10, rand.New(rand.NewSource(2)))
	require.NoError(t, err)
	_, err = e.Reset()
	require.NoError(t, err)

	step, err := e.Step([][]float64{{3, -0.5}, {0.2, -4}})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, -0.5}, {0.2, -1}}, step.Realized)
	assert.LessOrEqual(t, step.Rewards[0], 0.0)
}

func TestStepValidation(t *testing.T) {
	e, err := NewEnv(2, 10, rand.New(rand.NewSource(3)))
	require.NoError(t, err)

	_, err = e.Step([][]float64{{0, 0}, {0, 0}})
	assert.Error(t, err)

	_, err = e.Reset()
	require.NoError(t, err)
	_, err = e.Step([][]float64{{0, 0}})
	assert.Error(t, err)
	_, err = e.Step([][]float64{{0}, {0, 0}})
	assert.Error(t, err)

	_, err = NewEnv(0, 1, nil)
	assert.Error(t, err)
}
