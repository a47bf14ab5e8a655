package cartpole

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResetIsSeeded(t *testing.T) {
	a, err := NewEnv(rand.New(rand.NewSource(9))).Reset()
	require.NoError(t, err)
	b, err := NewEnv(rand.New(rand.NewSource(9))).Reset()
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 4)
}

func TestPoleFallsUnderConstantPush(t *testing.T) {
	e := NewEnv(rand.New(rand.NewSource(1)))
	_, err := e.Reset()
	require.NoError(t, err)

	var (
		done   bool
		reward float64
		steps  int
	)
	for !done {
		_, reward, done, _, err = e.Step([]float64{1})
		require.NoError(t, err)
		steps++
		require.Less(t, steps, MaxSteps())
	}
	assert.Equal(t, 0.0, reward)
}

func TestStepRejectsInvalidAction(t *testing.T) {
	e := NewEnv(rand.New(rand.NewSource(1)))
	_, _, _, _, err := e.Step([]float64{2})
	assert.Error(t, err)
	_, _, _, _, err = e.Step(nil)
	assert.Error(t, err)
}
