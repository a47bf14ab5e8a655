// Package synth serves a learned transition model behind the real
// environment contract, so a policy learner can train against simulated
// dynamics without knowing it.
package synth

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"worldmodel-rl/internal/encoder"
	"worldmodel-rl/internal/env"
	"worldmodel-rl/internal/ring"
	"worldmodel-rl/internal/telemetry"
	"worldmodel-rl/internal/worldmodel"
)

var (
	ErrNotInitialized = errors.New("synthetic environment stepped before reset")
	ErrSeedFailed     = errors.New("could not seed history from the real environment")
)

const (
	DefaultTerminalThreshold = 0.5
	DefaultSeedAttempts      = 10
)

type Config struct {
	// SequenceLength is the history length the model was trained with.
	SequenceLength int
	// TerminalThreshold is the termination probability above which a step
	// reports done.
	TerminalThreshold float64
	// MaxEpisodeSteps forces done after this many simulated steps. The model
	// may never predict termination away from its training data. Zero
	// disables truncation.
	MaxEpisodeSteps int
	// SeedAttempts bounds how often seeding restarts when the real episode
	// ends during it.
	SeedAttempts int
}

// Env is the synthetic environment. Its observations are latents.
type Env struct {
	model   worldmodel.Predictor
	enc     encoder.Encoder
	real    env.Env
	cfg     Config
	rng     *rand.Rand
	metrics *telemetry.Metrics

	latents *ring.Ring[[]float64]
	actions *ring.Ring[[]float64]
	steps   int
	ready   bool
}

var _ env.Env = (*Env)(nil)

// New wraps model. The real environment is only used to seed histories on
// Reset; rng drives the random seeding policy.
func New(model worldmodel.Predictor, enc encoder.Encoder, real env.Env, cfg Config, rng *rand.Rand) (*Env, error) {
	if cfg.SequenceLength <= 0 {
		return nil, errors.New("sequence length must be > 0")
	}
	if cfg.TerminalThreshold <= 0 {
		cfg.TerminalThreshold = DefaultTerminalThreshold
	}
	if cfg.SeedAttempts <= 0 {
		cfg.SeedAttempts = DefaultSeedAttempts
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Env{
		model:   model,
		enc:     enc,
		real:    real,
		cfg:     cfg,
		rng:     rng,
		latents: ring.New[[]float64](cfg.SequenceLength),
		actions: ring.New[[]float64](cfg.SequenceLength),
	}, nil
}

// WithMetrics counts simulated steps on m.
func (e *Env) WithMetrics(m *telemetry.Metrics) *Env {
	e.metrics = m
	return e
}

// Reset seeds a fresh history with a short random rollout in the real
// environment and returns the latest latent state.
func (e *Env) Reset() ([]float64, error) {
	e.ready = false
	e.latents.Clear()
	e.actions.Clear()
	e.steps = 0

	var lastErr error
	for attempt := 0; attempt < e.cfg.SeedAttempts; attempt++ {
		stacks, actions, err := e.rollout()
		if err != nil {
			return nil, err
		}
		if stacks == nil {
			lastErr = fmt.Errorf("%w: real episode ended during seeding", ErrSeedFailed)
			continue
		}
		latents, err := e.enc.Encode(stacks)
		if err != nil {
			return nil, fmt.Errorf("encode seed history: %w", err)
		}
		for i := range latents {
			e.latents.Push(latents[i])
			e.actions.Push(actions[i])
		}
		e.ready = true
		return e.latents.Last(), nil
	}
	return nil, fmt.Errorf("%w after %d attempts", lastErr, e.cfg.SeedAttempts)
}

// rollout takes SequenceLength+Window random real steps and returns the last
// SequenceLength frame stacks together with the action that produced each.
// It returns nil stacks if the real episode ended first.
func (e *Env) rollout() ([][]float64, [][]float64, error) {
	if _, err := e.real.Reset(); err != nil {
		return nil, nil, fmt.Errorf("reset real environment: %w", err)
	}
	n := e.cfg.SequenceLength + e.enc.Window()
	frames := make([][]float64, 0, n)
	taken := make([][]float64, 0, n)
	for i := 0; i < n; i++ {
		a := e.real.ActionSpace().Sample(e.rng)
		obs, _, done, _, err := e.real.Step(a)
		if err != nil {
			return nil, nil, fmt.Errorf("seed step %d: %w", i, err)
		}
		frames = append(frames, obs)
		taken = append(taken, a)
		if done && i < n-1 {
			return nil, nil, nil
		}
	}

	w := e.enc.Window()
	stacks := make([][]float64, 0, e.cfg.SequenceLength)
	actions := make([][]float64, 0, e.cfg.SequenceLength)
	for end := n - e.cfg.SequenceLength; end < n; end++ {
		stacks = append(stacks, env.Flatten(frames[end-w+1:end+1]))
		actions = append(actions, taken[end])
	}
	return stacks, actions, nil
}

// Step advances the simulated history by one model prediction. The
// returned info holds "truncated" when the step limit forced done.
func (e *Env) Step(action []float64) ([]float64, float64, bool, env.Info, error) {
	if !e.ready {
		return nil, 0, false, nil, ErrNotInitialized
	}
	// pairs every latent with the action taken in it; the windows only move
	// once the prediction succeeded
	actions := append(e.actions.Slice()[1:], action)
	pred, err := e.model.Predict(e.latents.Slice(), actions)
	if err != nil {
		return nil, 0, false, nil, fmt.Errorf("predict: %w", err)
	}
	e.actions.Push(action)
	e.latents.Push(pred.Next)
	e.steps++
	e.metrics.AddSyntheticStep(context.Background())

	done := pred.Terminal > e.cfg.TerminalThreshold
	info := env.Info{}
	if !done && e.cfg.MaxEpisodeSteps > 0 && e.steps >= e.cfg.MaxEpisodeSteps {
		done = true
		info["truncated"] = true
	}
	return pred.Next, pred.Reward, done, info, nil
}

// History returns copies of the current latent and action windows.
func (e *Env) History() (latents, actions [][]float64) {
	return e.latents.Slice(), e.actions.Slice()
}

func (e *Env) ActionSpace() env.Space { return e.real.ActionSpace() }

func (e *Env) ObservationSpace() env.Space { return encoder.LatentSpace(e.enc.Dim()) }
