package worldmodel

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Config sizes and trains an MLP.
type Config struct {
	SequenceLength  int     `json:"sequence_length"`
	LatentDim       int     `json:"latent_dim"`
	ActionDim       int     `json:"action_dim"`
	Hidden          int     `json:"hidden"`
	LearningRate    float64 `json:"learning_rate"`
	Epochs          int     `json:"epochs"`
	BatchSize       int     `json:"batch_size"`
	ValidationSplit float64 `json:"validation_split"`
	Seed            int64   `json:"seed"`
}

func (c Config) withDefaults() Config {
	if c.SequenceLength <= 0 {
		c.SequenceLength = 1
	}
	if c.Hidden <= 0 {
		c.Hidden = 64
	}
	if c.LearningRate <= 0 {
		c.LearningRate = 1e-3
	}
	if c.Epochs <= 0 {
		c.Epochs = 2
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	return c
}

func (c Config) inputDim() int  { return c.SequenceLength * (c.LatentDim + c.ActionDim) }
func (c Config) outputDim() int { return c.LatentDim + 2 }

// MLP is a transition model with one hidden ReLU layer and three heads read
// from a shared output layer: next latent (linear), reward (linear) and a
// termination logit.
type MLP struct {
	cfg Config

	w1 *mat.Dense // hidden x input
	b1 []float64
	wo *mat.Dense // output x hidden
	bo []float64

	opt *rmsprop
	rng *rand.Rand
}

var _ Model = (*MLP)(nil)

func NewMLP(cfg Config) (*MLP, error) {
	cfg = cfg.withDefaults()
	if cfg.LatentDim <= 0 || cfg.ActionDim <= 0 {
		return nil, errors.New("latent and action sizes must be positive")
	}
	if cfg.ValidationSplit < 0 || cfg.ValidationSplit >= 1 {
		return nil, errors.New("validation split must be in [0, 1)")
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	in, out := cfg.inputDim(), cfg.outputDim()
	m := &MLP{
		cfg: cfg,
		w1:  mat.NewDense(cfg.Hidden, in, glorot(rng, cfg.Hidden, in)),
		b1:  make([]float64, cfg.Hidden),
		wo:  mat.NewDense(out, cfg.Hidden, glorot(rng, out, cfg.Hidden)),
		bo:  make([]float64, out),
		rng: rng,
	}
	m.opt = newRMSProp(cfg.LearningRate, m.params())
	return m, nil
}

func glorot(rng *rand.Rand, fanOut, fanIn int) []float64 {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	data := make([]float64, fanOut*fanIn)
	for i := range data {
		data[i] = (rng.Float64()*2 - 1) * limit
	}
	return data
}

func (m *MLP) Config() Config { return m.cfg }

func (m *MLP) params() [][]float64 {
	return [][]float64{m.w1.RawMatrix().Data, m.b1, m.wo.RawMatrix().Data, m.bo}
}

// Predict returns the continuation of one history.
func (m *MLP) Predict(latents, actions [][]float64) (Prediction, error) {
	row, err := m.row(latents, actions)
	if err != nil {
		return Prediction{}, err
	}
	_, _, out := m.forward(mat.NewDense(1, len(row), row))
	raw := out.RawRowView(0)
	d := m.cfg.LatentDim
	return Prediction{
		Next:     append([]float64(nil), raw[:d]...),
		Reward:   raw[d],
		Terminal: sigmoid(raw[d+1]),
	}, nil
}

// Fit trains on examples for the configured number of epochs. The trailing
// ValidationSplit fraction of examples is held out and only evaluated.
func (m *MLP) Fit(examples []Example) (FitReport, error) {
	if len(examples) == 0 {
		return FitReport{}, errors.New("no examples to fit")
	}
	n := len(examples)
	in, outDim := m.cfg.inputDim(), m.cfg.outputDim()
	x := mat.NewDense(n, in, nil)
	y := mat.NewDense(n, outDim, nil)
	for i, ex := range examples {
		row, err := m.row(ex.Latents, ex.Actions)
		if err != nil {
			return FitReport{}, fmt.Errorf("example %d: %w", i, err)
		}
		target, err := m.target(ex)
		if err != nil {
			return FitReport{}, fmt.Errorf("example %d: %w", i, err)
		}
		x.SetRow(i, row)
		y.SetRow(i, target)
	}

	nVal := int(float64(n) * m.cfg.ValidationSplit)
	nTrain := n - nVal
	if nTrain < 1 {
		nTrain, nVal = n, 0
	}

	report := FitReport{Examples: n}
	for epoch := 0; epoch < m.cfg.Epochs; epoch++ {
		perm := m.rng.Perm(nTrain)
		var total Loss
		for start := 0; start < nTrain; start += m.cfg.BatchSize {
			end := start + m.cfg.BatchSize
			if end > nTrain {
				end = nTrain
			}
			loss := m.step(gather(x, perm[start:end]), gather(y, perm[start:end]))
			total = total.add(loss.scale(float64(end - start)))
		}
		er := EpochReport{Train: total.scale(1 / float64(nTrain))}
		if nVal > 0 {
			_, _, out := m.forward(x.Slice(nTrain, n, 0, in))
			val, _ := lossAndGrad(out, y.Slice(nTrain, n, 0, outDim).(*mat.Dense), m.cfg.LatentDim)
			er.Validation = &val
		}
		report.Epochs = append(report.Epochs, er)
	}
	return report, nil
}

// row flattens a history into one input row: latent_0, action_0, latent_1, ...
func (m *MLP) row(latents, actions [][]float64) ([]float64, error) {
	if len(latents) != m.cfg.SequenceLength || len(actions) != m.cfg.SequenceLength {
		return nil, fmt.Errorf("%w: history of %d latents and %d actions, want %d",
			ErrShape, len(latents), len(actions), m.cfg.SequenceLength)
	}
	row := make([]float64, 0, m.cfg.inputDim())
	for i := range latents {
		if len(latents[i]) != m.cfg.LatentDim {
			return nil, fmt.Errorf("%w: latent %d has %d values, want %d", ErrShape, i, len(latents[i]), m.cfg.LatentDim)
		}
		if len(actions[i]) != m.cfg.ActionDim {
			return nil, fmt.Errorf("%w: action %d has %d values, want %d", ErrShape, i, len(actions[i]), m.cfg.ActionDim)
		}
		row = append(row, latents[i]...)
		row = append(row, actions[i]...)
	}
	return row, nil
}

func (m *MLP) target(ex Example) ([]float64, error) {
	if len(ex.Next) != m.cfg.LatentDim {
		return nil, fmt.Errorf("%w: target latent has %d values, want %d", ErrShape, len(ex.Next), m.cfg.LatentDim)
	}
	t := make([]float64, 0, m.cfg.outputDim())
	t = append(t, ex.Next...)
	t = append(t, ex.Reward)
	if ex.Terminal {
		return append(t, 1), nil
	}
	return append(t, 0), nil
}

func (m *MLP) forward(x mat.Matrix) (z1, h, out *mat.Dense) {
	n, _ := x.Dims()
	z1 = mat.NewDense(n, m.cfg.Hidden, nil)
	z1.Mul(x, m.w1.T())
	addBias(z1, m.b1)

	h = mat.DenseCopyOf(z1)
	h.Apply(func(_, _ int, v float64) float64 { return math.Max(0, v) }, h)

	out = mat.NewDense(n, m.cfg.outputDim(), nil)
	out.Mul(h, m.wo.T())
	addBias(out, m.bo)
	return z1, h, out
}

// step runs one minibatch update and returns the minibatch loss before it.
func (m *MLP) step(x, y *mat.Dense) Loss {
	loss, grads := m.gradients(x, y)
	m.opt.update(m.params(), grads)
	return loss
}

// gradients returns the loss on a minibatch and its gradient for each
// parameter block, in params() order.
func (m *MLP) gradients(x, y *mat.Dense) (Loss, [][]float64) {
	z1, h, out := m.forward(x)
	loss, g := lossAndGrad(out, y, m.cfg.LatentDim)

	var dWo mat.Dense
	dWo.Mul(g.T(), h)
	dbo := colSums(g)

	var dH mat.Dense
	dH.Mul(g, m.wo)
	dH.Apply(func(i, j int, v float64) float64 {
		if z1.At(i, j) <= 0 {
			return 0
		}
		return v
	}, &dH)

	var dW1 mat.Dense
	dW1.Mul(dH.T(), x)
	db1 := colSums(&dH)

	return loss, [][]float64{dW1.RawMatrix().Data, db1, dWo.RawMatrix().Data, dbo}
}

func addBias(z *mat.Dense, b []float64) {
	z.Apply(func(_, j int, v float64) float64 { return v + b[j] }, z)
}

func colSums(m *mat.Dense) []float64 {
	_, c := m.Dims()
	out := make([]float64, c)
	for j := range out {
		out[j] = floats.Sum(mat.Col(nil, j, m))
	}
	return out
}

func gather(m *mat.Dense, rows []int) *mat.Dense {
	_, c := m.Dims()
	out := mat.NewDense(len(rows), c, nil)
	for i, r := range rows {
		out.SetRow(i, m.RawRowView(r))
	}
	return out
}

// rmsprop keeps a running mean of squared gradients per parameter.
type rmsprop struct {
	lr, rho, eps float64
	cache        [][]float64
}

func newRMSProp(lr float64, params [][]float64) *rmsprop {
	cache := make([][]float64, len(params))
	for i, p := range params {
		cache[i] = make([]float64, len(p))
	}
	return &rmsprop{lr: lr, rho: 0.9, eps: 1e-7, cache: cache}
}

func (o *rmsprop) update(params, grads [][]float64) {
	for i, p := range params {
		c, g := o.cache[i], grads[i]
		for j := range p {
			c[j] = o.rho*c[j] + (1-o.rho)*g[j]*g[j]
			p[j] -= o.lr * g[j] / (math.Sqrt(c[j]) + o.eps)
		}
	}
}

// Weights is a serialisable snapshot of an MLP's parameters.
type Weights struct {
	Config Config    `json:"config"`
	W1     []float64 `json:"w1"`
	B1     []float64 `json:"b1"`
	Wo     []float64 `json:"wo"`
	Bo     []float64 `json:"bo"`
}

func (m *MLP) Weights() Weights {
	p := m.params()
	return Weights{
		Config: m.cfg,
		W1:     append([]float64(nil), p[0]...),
		B1:     append([]float64(nil), p[1]...),
		Wo:     append([]float64(nil), p[2]...),
		Bo:     append([]float64(nil), p[3]...),
	}
}

// SetWeights replaces the parameters. The snapshot must come from a model
// of the same shape.
func (m *MLP) SetWeights(w Weights) error {
	c := w.Config.withDefaults()
	if c.SequenceLength != m.cfg.SequenceLength || c.LatentDim != m.cfg.LatentDim ||
		c.ActionDim != m.cfg.ActionDim || c.Hidden != m.cfg.Hidden {
		return fmt.Errorf("%w: weights for %d x (%d+%d) -> %d, model is %d x (%d+%d) -> %d", ErrShape,
			c.SequenceLength, c.LatentDim, c.ActionDim, c.Hidden,
			m.cfg.SequenceLength, m.cfg.LatentDim, m.cfg.ActionDim, m.cfg.Hidden)
	}
	src := [][]float64{w.W1, w.B1, w.Wo, w.Bo}
	for i, p := range m.params() {
		if len(src[i]) != len(p) {
			return fmt.Errorf("%w: parameter block %d has %d values, want %d", ErrShape, i, len(src[i]), len(p))
		}
	}
	for i, p := range m.params() {
		copy(p, src[i])
	}
	return nil
}

// FromWeights builds an MLP from a snapshot.
func FromWeights(w Weights) (*MLP, error) {
	m, err := NewMLP(w.Config)
	if err != nil {
		return nil, err
	}
	if err := m.SetWeights(w); err != nil {
		return nil, err
	}
	return m, nil
}
