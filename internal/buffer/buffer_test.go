package buffer

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mark(i int, terminal bool) Transition {
	return Transition{
		State0:   []float64{float64(i)},
		Action:   []float64{0},
		Reward:   float64(i),
		State1:   []float64{float64(i + 1)},
		Terminal: terminal,
	}
}

func marks(ts []Transition) []float64 {
	out := make([]float64, len(ts))
	for i, t := range ts {
		out[i] = t.State0[0]
	}
	return out
}

func TestNewReplayBuffer(t *testing.T) {
	_, err := NewReplayBuffer(0)
	require.Error(t, err)

	rb, err := NewReplayBuffer(4)
	require.NoError(t, err)
	assert.Equal(t, 4, rb.Capacity())
	assert.Equal(t, 0, rb.Len())
}

func TestAppendEvictsOldest(t *testing.T) {
	rb, err := NewReplayBuffer(5)
	require.NoError(t, err)

	for i := 1; i <= 7; i++ {
		rb.Append(mark(i, false))
	}
	require.Equal(t, 5, rb.Len())
	assert.Equal(t, []float64{3, 4, 5, 6, 7}, marks(rb.Transitions()))
}

func TestAppendManyKeepsLastCapacity(t *testing.T) {
	for _, tc := range []struct{ capacity, appends int }{{1, 3}, {3, 10}, {8, 9}, {16, 100}} {
		rb, err := NewReplayBuffer(tc.capacity)
		require.NoError(t, err)
		for i := 0; i < tc.appends; i++ {
			rb.Append(mark(i, false))
		}
		require.Equal(t, tc.capacity, rb.Len())
		for i := 0; i < tc.capacity; i++ {
			got, err := rb.At(i)
			require.NoError(t, err)
			assert.Equal(t, float64(tc.appends-tc.capacity+i), got.State0[0])
		}
	}
}

func TestClear(t *testing.T) {
	rb, err := NewReplayBuffer(3)
	require.NoError(t, err)
	rb.Append(mark(0, false))
	rb.Append(mark(1, false))
	rb.Clear()

	assert.Equal(t, 0, rb.Len())
	assert.Equal(t, 3, rb.Capacity())
	_, err = rb.At(0)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestSample(t *testing.T) {
	rb, err := NewReplayBuffer(10)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		rb.Append(mark(i, false))
	}

	t.Run("explicit indices", func(t *testing.T) {
		got, err := rb.Sample(2, []int{3, 1})
		require.NoError(t, err)
		assert.Equal(t, []float64{3, 1}, marks(got))
	})

	t.Run("index out of range", func(t *testing.T) {
		_, err := rb.Sample(2, []int{0, 4})
		assert.ErrorIs(t, err, ErrIndexOutOfRange)
		_, err = rb.Sample(1, []int{-1})
		assert.ErrorIs(t, err, ErrIndexOutOfRange)
	})

	t.Run("count above length", func(t *testing.T) {
		_, err := rb.Sample(5, []int{0, 1, 2, 3, 4})
		assert.ErrorIs(t, err, ErrInsufficientData)
		_, err = rb.SampleRandom(rand.New(rand.NewSource(1)), 5)
		assert.ErrorIs(t, err, ErrInsufficientData)
	})

	t.Run("count equal to length", func(t *testing.T) {
		got, err := rb.SampleRandom(rand.New(rand.NewSource(1)), 4)
		require.NoError(t, err)
		assert.ElementsMatch(t, []float64{0, 1, 2, 3}, marks(got))
	})

	t.Run("sample shares storage", func(t *testing.T) {
		got, err := rb.Sample(1, []int{2})
		require.NoError(t, err)
		stored, err := rb.At(2)
		require.NoError(t, err)
		assert.Same(t, &stored.State0[0], &got[0].State0[0])
	})
}
