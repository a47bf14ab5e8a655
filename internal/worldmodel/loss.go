package worldmodel

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Loss holds the mean loss of each output head.
type Loss struct {
	Next     float64 `json:"next"`     // mean absolute error
	Reward   float64 `json:"reward"`   // mean squared error
	Terminal float64 `json:"terminal"` // binary cross-entropy
}

func (l Loss) Total() float64 { return l.Next + l.Reward + l.Terminal }

func (l Loss) scale(f float64) Loss {
	return Loss{Next: l.Next * f, Reward: l.Reward * f, Terminal: l.Terminal * f}
}

func (l Loss) add(o Loss) Loss {
	return Loss{Next: l.Next + o.Next, Reward: l.Reward + o.Reward, Terminal: l.Terminal + o.Terminal}
}

// EpochReport is the loss after one pass over the training examples.
type EpochReport struct {
	Train      Loss  `json:"train"`
	Validation *Loss `json:"validation,omitempty"`
}

// FitReport lists per-epoch losses of one Fit call.
type FitReport struct {
	Examples int           `json:"examples"`
	Epochs   []EpochReport `json:"epochs"`
}

// Final returns the last epoch's training loss.
func (r FitReport) Final() Loss {
	if len(r.Epochs) == 0 {
		return Loss{}
	}
	return r.Epochs[len(r.Epochs)-1].Train
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// bce is the cross-entropy of a logit against a binary label, computed
// without forming log(sigmoid(z)).
func bce(z, label float64) float64 {
	return math.Max(z, 0) - z*label + math.Log1p(math.Exp(-math.Abs(z)))
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// lossAndGrad returns the mean loss over out (n x D+2 raw outputs) and its
// gradient with respect to out.
func lossAndGrad(out, targets *mat.Dense, dim int) (Loss, *mat.Dense) {
	n, cols := out.Dims()
	grad := mat.NewDense(n, cols, nil)
	var loss Loss
	inv := 1 / float64(n)
	for i := 0; i < n; i++ {
		for j := 0; j < dim; j++ {
			d := out.At(i, j) - targets.At(i, j)
			loss.Next += math.Abs(d) / float64(dim)
			grad.Set(i, j, sign(d)/float64(dim)*inv)
		}
		d := out.At(i, dim) - targets.At(i, dim)
		loss.Reward += d * d
		grad.Set(i, dim, 2*d*inv)

		z, label := out.At(i, dim+1), targets.At(i, dim+1)
		loss.Terminal += bce(z, label)
		grad.Set(i, dim+1, (sigmoid(z)-label)*inv)
	}
	return loss.scale(inv), grad
}

// probEps keeps the cross-entropy of a saturated probability finite.
const probEps = 1e-7

// Evaluate scores p on examples with the same heads as training, without
// updating anything.
func Evaluate(p Predictor, examples []Example) (Loss, error) {
	if len(examples) == 0 {
		return Loss{}, fmt.Errorf("%w: no examples", ErrShape)
	}
	var total Loss
	for i, ex := range examples {
		pred, err := p.Predict(ex.Latents, ex.Actions)
		if err != nil {
			return Loss{}, fmt.Errorf("example %d: %w", i, err)
		}
		if len(pred.Next) != len(ex.Next) {
			return Loss{}, fmt.Errorf("%w: example %d predicts %d values, want %d", ErrShape, i, len(pred.Next), len(ex.Next))
		}
		var l Loss
		for j, v := range pred.Next {
			l.Next += math.Abs(v-ex.Next[j]) / float64(len(ex.Next))
		}
		d := pred.Reward - ex.Reward
		l.Reward = d * d
		prob := math.Min(math.Max(pred.Terminal, probEps), 1-probEps)
		if ex.Terminal {
			l.Terminal = -math.Log(prob)
		} else {
			l.Terminal = -math.Log1p(-prob)
		}
		total = total.add(l)
	}
	return total.scale(1 / float64(len(examples))), nil
}
