package encoder

import (
	"worldmodel-rl/internal/env"
	"worldmodel-rl/internal/ring"
)

// FrameStack keeps the most recent frames of an episode so they can be fed
// to an Encoder as one row.
type FrameStack struct {
	frames *ring.Ring[[]float64]
}

func NewFrameStack(window int) *FrameStack {
	return &FrameStack{frames: ring.New[[]float64](window)}
}

// Reset starts a new episode, padding the window with its first frame.
func (s *FrameStack) Reset(first []float64) {
	s.frames.Clear()
	for i := 0; i < s.frames.Cap(); i++ {
		s.frames.Push(first)
	}
}

func (s *FrameStack) Push(frame []float64) {
	s.frames.Push(frame)
}

// Stack returns the frames concatenated oldest first.
func (s *FrameStack) Stack() []float64 {
	return env.Flatten(s.frames.Slice())
}
