// Package encoder maps stacked raw observations to fixed-size latent
// vectors. The world model and everything downstream only see latents.
package encoder

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

var ErrShape = errors.New("observation shape mismatch")

// Encoder is a batched function from Window() concatenated frames of
// FrameDim() values each to latents of Dim() values. Implementations are
// read-only after construction.
type Encoder interface {
	Encode(batch [][]float64) ([][]float64, error)
	Window() int
	FrameDim() int
	Dim() int
}

// Projection is a fixed random linear map followed by a ReLU.
type Projection struct {
	window   int
	frameDim int
	weights  *mat.Dense // dim x window*frameDim
	bias     []float64
}

// NewProjection builds a projection encoder. The same seed always yields the
// same encoder.
func NewProjection(frameDim, window, dim int, seed int64) (*Projection, error) {
	if frameDim <= 0 || window <= 0 || dim <= 0 {
		return nil, errors.New("frame size, window and latent size must be positive")
	}
	rng := rand.New(rand.NewSource(seed))
	in := frameDim * window
	scale := 1 / math.Sqrt(float64(in))
	data := make([]float64, dim*in)
	for i := range data {
		data[i] = rng.NormFloat64() * scale
	}
	bias := make([]float64, dim)
	for i := range bias {
		bias[i] = 0.1 * scale
	}
	return &Projection{
		window:   window,
		frameDim: frameDim,
		weights:  mat.NewDense(dim, in, data),
		bias:     bias,
	}, nil
}

func (p *Projection) Encode(batch [][]float64) ([][]float64, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	in := p.window * p.frameDim
	x := mat.NewDense(len(batch), in, nil)
	for i, row := range batch {
		if len(row) != in {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrShape, i, len(row), in)
		}
		x.SetRow(i, row)
	}
	var z mat.Dense
	z.Mul(x, p.weights.T())

	dim, _ := p.weights.Dims()
	out := make([][]float64, len(batch))
	for i := range out {
		v := make([]float64, dim)
		for j := range v {
			v[j] = math.Max(0, z.At(i, j)+p.bias[j])
		}
		out[i] = v
	}
	return out, nil
}

func (p *Projection) Window() int   { return p.window }
func (p *Projection) FrameDim() int { return p.frameDim }

func (p *Projection) Dim() int {
	dim, _ := p.weights.Dims()
	return dim
}

// Identity passes stacked frames through unchanged.
type Identity struct {
	Frames int
	Size   int
}

func (id Identity) Encode(batch [][]float64) ([][]float64, error) {
	out := make([][]float64, len(batch))
	for i, row := range batch {
		if len(row) != id.Dim() {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrShape, i, len(row), id.Dim())
		}
		out[i] = append([]float64(nil), row...)
	}
	return out, nil
}

func (id Identity) Window() int   { return id.Frames }
func (id Identity) FrameDim() int { return id.Size }
func (id Identity) Dim() int      { return id.Frames * id.Size }
