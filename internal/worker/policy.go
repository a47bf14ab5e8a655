package worker

import (
	"math"
	"math/rand"

	"worldmodel-rl/internal/env"
)

// Policy selects an action for an observation.
type Policy interface {
	Act(obs []float64, rng *rand.Rand) []float64
}

// RandomPolicy samples uniformly from an action space.
type RandomPolicy struct {
	Space env.Space
}

func (p RandomPolicy) Act(_ []float64, rng *rand.Rand) []float64 {
	return p.Space.Sample(rng)
}

type PolicyWeights struct {
	W [][]float64 `json:"w"` // shape: [actions][obs]
	B []float64   `json:"b"` // shape: [actions]
}

// SoftmaxPolicy samples a discrete action from a linear softmax over the
// observation.
type SoftmaxPolicy struct {
	Weights PolicyWeights
}

// DefaultWeights gives each action a small, alternating-sign preference.
func DefaultWeights(obsDim, actions int) PolicyWeights {
	w := PolicyWeights{W: make([][]float64, actions), B: make([]float64, actions)}
	for i := range w.W {
		sign := 1.0
		if i%2 == 1 {
			sign = -1
		}
		w.W[i] = make([]float64, obsDim)
		for j := range w.W[i] {
			w.W[i][j] = 0.01 * sign
		}
	}
	return w
}

func NewSoftmaxPolicy(weights PolicyWeights) *SoftmaxPolicy {
	return &SoftmaxPolicy{
		Weights: weights,
	}
}

func (p *SoftmaxPolicy) Act(obs []float64, rng *rand.Rand) []float64 {
	choice, _ := p.Action(obs, rng)
	return []float64{float64(choice)}
}

// Action returns chosen action and its log-probability
func (p *SoftmaxPolicy) Action(state []float64, rng *rand.Rand) (int, float64) {
	logits := make([]float64, len(p.Weights.B))
	for i := range logits {
		logits[i] = p.Weights.B[i]
		for j := 0; j < len(state) && j < len(p.Weights.W[i]); j++ {
			logits[i] += p.Weights.W[i][j] * state[j]
		}
	}
	probs := softmax(logits)
	choice := sampleCategorical(probs, rng)
	return choice, math.Log(probs[choice] + 1e-8)
}

func softmax(logits []float64) []float64 {
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		if v > maxLogit {
			maxLogit = v
		}
	}
	values := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		values[i] = math.Exp(v - maxLogit)
		sum += values[i]
	}
	for i := range values {
		values[i] /= sum
	}
	return values
}

func sampleCategorical(probs []float64, rng *rand.Rand) int {
	threshold := rng.Float64()
	var cumulativeProb float64
	for i, prob := range probs {
		cumulativeProb += prob
		if threshold <= cumulativeProb {
			return i
		}
	}
	return len(probs) - 1
}
