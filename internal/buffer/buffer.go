package buffer

import (
	"errors"
	"fmt"
	"math/rand"

	"worldmodel-rl/internal/ring"
)

// Transition is one recorded environment step. Its slices are shared with
// every sample that returns it and must not be modified.
type Transition struct {
	State0 []float64 `json:"state0"`
	// Action is the action the environment applied.
	Action []float64 `json:"action"`
	// Intended is the action the policy asked for, when it differs in kind
	// from Action (for example before clipping). Nil otherwise.
	Intended []float64 `json:"intended,omitempty"`
	Reward   float64   `json:"reward"`
	// Rewards holds per-agent rewards on joint transitions.
	Rewards  []float64 `json:"rewards,omitempty"`
	State1   []float64 `json:"state1"`
	Terminal bool      `json:"terminal"`
}

// ReplayBuffer is a bounded transition store in temporal order. Once full,
// each append evicts the oldest transition.
type ReplayBuffer struct {
	items *ring.Ring[Transition]
}

var (
	ErrInsufficientData = errors.New("insufficient data in buffer")
	ErrIndexOutOfRange  = errors.New("sample index out of range")
)

func NewReplayBuffer(capacity int) (*ReplayBuffer, error) {
	if capacity <= 0 {
		return nil, errors.New("capacity must be greater than zero")
	}
	return &ReplayBuffer{items: ring.New[Transition](capacity)}, nil
}

// Append records t, evicting the oldest transition when at capacity.
func (rb *ReplayBuffer) Append(t Transition) {
	rb.items.Push(t)
}

// Clear drops every transition and keeps the allocated storage.
func (rb *ReplayBuffer) Clear() {
	rb.items.Clear()
}

// Sample returns count transitions at the given positions, 0 being the
// oldest.
func (rb *ReplayBuffer) Sample(count int, indices []int) ([]Transition, error) {
	if count > rb.items.Len() {
		return nil, fmt.Errorf("%w: want %d transitions, have %d", ErrInsufficientData, count, rb.items.Len())
	}
	if len(indices) != count {
		return nil, fmt.Errorf("%w: %d indices for %d transitions", ErrIndexOutOfRange, len(indices), count)
	}
	out := make([]Transition, count)
	for i, idx := range indices {
		if idx < 0 || idx >= rb.items.Len() {
			return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, idx, rb.items.Len())
		}
		out[i] = rb.items.At(idx)
	}
	return out, nil
}

// SampleRandom returns count distinct transitions drawn uniformly.
func (rb *ReplayBuffer) SampleRandom(rng *rand.Rand, count int) ([]Transition, error) {
	if count > rb.items.Len() {
		return nil, fmt.Errorf("%w: want %d transitions, have %d", ErrInsufficientData, count, rb.items.Len())
	}
	return rb.Sample(count, rng.Perm(rb.items.Len())[:count])
}

// At returns the transition at position i.
func (rb *ReplayBuffer) At(i int) (Transition, error) {
	if i < 0 || i >= rb.items.Len() {
		return Transition{}, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, rb.items.Len())
	}
	return rb.items.At(i), nil
}

// Transitions returns the stored transitions, oldest first.
func (rb *ReplayBuffer) Transitions() []Transition {
	return rb.items.Slice()
}

func (rb *ReplayBuffer) Capacity() int {
	return rb.items.Cap()
}

func (rb *ReplayBuffer) Len() int {
	return rb.items.Len()
}
