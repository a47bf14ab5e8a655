package buffer

import (
	"errors"
	"fmt"
	"math/rand"
)

// DefaultMaxDraws bounds how many windows a Sampler rejects in a row
// before giving up.
const DefaultMaxDraws = 1000

// Sampler draws sequence windows: L+1 contiguous transitions whose first L
// transitions are all non-terminal, so a window never runs across an
// episode boundary except at its very end.
type Sampler struct {
	Rand     *rand.Rand
	MaxDraws int
}

func NewSampler(rng *rand.Rand, maxDraws int) *Sampler {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	if maxDraws <= 0 {
		maxDraws = DefaultMaxDraws
	}
	return &Sampler{Rand: rng, MaxDraws: maxDraws}
}

// Window draws one window of length+1 transitions.
func (s *Sampler) Window(rb *ReplayBuffer, length int) ([]Transition, error) {
	if length < 1 {
		return nil, errors.New("sequence length must be at least 1")
	}
	n := length + 1
	if rb.Len() < n {
		return nil, fmt.Errorf("%w: need %d transitions for a window, have %d", ErrInsufficientData, n, rb.Len())
	}

	indices := make([]int, n)
	for draw := 0; draw < s.MaxDraws; draw++ {
		start := s.Rand.Intn(rb.Len() - n + 1)
		for i := range indices {
			indices[i] = start + i
		}
		window, err := rb.Sample(n, indices)
		if err != nil {
			return nil, err
		}
		if !crossesEpisode(window) {
			return window, nil
		}
	}
	return nil, fmt.Errorf("%w: no terminal-free window of %d after %d draws", ErrInsufficientData, n, s.MaxDraws)
}

// Windows draws count windows with replacement.
func (s *Sampler) Windows(rb *ReplayBuffer, length, count int) ([][]Transition, error) {
	out := make([][]Transition, 0, count)
	for i := 0; i < count; i++ {
		w, err := s.Window(rb, length)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// only the final transition of a window may be terminal
func crossesEpisode(window []Transition) bool {
	for _, t := range window[:len(window)-1] {
		if t.Terminal {
			return true
		}
	}
	return false
}
