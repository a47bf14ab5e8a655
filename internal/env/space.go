package env

import (
	"fmt"
	"math/rand"
)

// Space describes the shape of observations or actions.
type Space interface {
	// Dim is the length of a vector drawn from the space.
	Dim() int
	Sample(rng *rand.Rand) []float64
	Contains(v []float64) bool
}

// Discrete is the set {0, ..., N-1}, encoded as a one-element vector.
type Discrete struct {
	N int
}

func (d Discrete) Dim() int { return 1 }

func (d Discrete) Sample(rng *rand.Rand) []float64 {
	return []float64{float64(rng.Intn(d.N))}
}

func (d Discrete) Contains(v []float64) bool {
	if len(v) != 1 {
		return false
	}
	k := int(v[0])
	return float64(k) == v[0] && k >= 0 && k < d.N
}

// Index returns the action index held by v.
func (d Discrete) Index(v []float64) (int, error) {
	if !d.Contains(v) {
		return 0, fmt.Errorf("action %v not in discrete space of %d", v, d.N)
	}
	return int(v[0]), nil
}

func (d Discrete) String() string { return fmt.Sprintf("Discrete(%d)", d.N) }

// Box is a vector space with per-dimension bounds.
type Box struct {
	Low  []float64
	High []float64
}

// NewBox returns a Box of dim dimensions sharing one bound pair.
func NewBox(dim int, low, high float64) Box {
	b := Box{Low: make([]float64, dim), High: make([]float64, dim)}
	for i := 0; i < dim; i++ {
		b.Low[i] = low
		b.High[i] = high
	}
	return b
}

func (b Box) Dim() int { return len(b.Low) }

func (b Box) Sample(rng *rand.Rand) []float64 {
	v := make([]float64, len(b.Low))
	for i := range v {
		v[i] = b.Low[i] + rng.Float64()*(b.High[i]-b.Low[i])
	}
	return v
}

func (b Box) Contains(v []float64) bool {
	if len(v) != len(b.Low) {
		return false
	}
	for i, x := range v {
		if x < b.Low[i] || x > b.High[i] {
			return false
		}
	}
	return true
}

// Clip returns a copy of v limited to the box bounds.
func (b Box) Clip(v []float64) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		switch {
		case x < b.Low[i]:
			out[i] = b.Low[i]
		case x > b.High[i]:
			out[i] = b.High[i]
		default:
			out[i] = x
		}
	}
	return out
}

func (b Box) String() string { return fmt.Sprintf("Box(%d)", len(b.Low)) }
