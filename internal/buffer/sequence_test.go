package buffer

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowInsufficientData(t *testing.T) {
	rb, err := NewReplayBuffer(10)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		rb.Append(mark(i, false))
	}
	s := NewSampler(rand.New(rand.NewSource(1)), 0)

	_, err = s.Window(rb, 3)
	assert.ErrorIs(t, err, ErrInsufficientData)

	rb.Append(mark(3, false))
	w, err := s.Window(rb, 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 2, 3}, marks(w))

	_, err = s.Window(rb, 0)
	assert.Error(t, err)
}

func TestWindowOnlyLastMayBeTerminal(t *testing.T) {
	rb, err := NewReplayBuffer(64)
	require.NoError(t, err)
	for i := 0; i < 40; i++ {
		rb.Append(mark(i, i == 39))
	}
	s := NewSampler(rand.New(rand.NewSource(7)), 0)

	windows, err := s.Windows(rb, 5, 200)
	require.NoError(t, err)
	require.Len(t, windows, 200)
	for _, w := range windows {
		require.Len(t, w, 6)
		for _, tr := range w[:5] {
			assert.False(t, tr.Terminal)
		}
	}
}

func TestWindowRejectsEpisodeBoundary(t *testing.T) {
	rb, err := NewReplayBuffer(16)
	require.NoError(t, err)
	// episode A: 0..4 non-terminal, 5 terminal; episode B: 6..9 non-terminal
	for i := 0; i < 10; i++ {
		rb.Append(mark(i, i == 5))
	}
	s := NewSampler(rand.New(rand.NewSource(3)), 0)

	seen := map[float64]int{}
	for i := 0; i < 500; i++ {
		w, err := s.Window(rb, 3)
		require.NoError(t, err)
		start := w[0].State0[0]
		seen[start]++
		for j, tr := range w {
			assert.Equal(t, start+float64(j), tr.State0[0], "window must be contiguous")
		}
	}
	for start := range seen {
		assert.Contains(t, []float64{0, 1, 2, 6}, start)
	}
	assert.Len(t, seen, 4)
	assert.Zero(t, seen[3])
}

func TestWindowRetryCap(t *testing.T) {
	rb, err := NewReplayBuffer(8)
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		rb.Append(mark(i, true))
	}
	s := NewSampler(rand.New(rand.NewSource(1)), 25)

	_, err = s.Window(rb, 2)
	assert.ErrorIs(t, err, ErrInsufficientData)
}
