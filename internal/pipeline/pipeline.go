// Package pipeline runs the single-agent loop: collect real experience,
// learn a transition model in latent space, train a policy inside the
// learned model and validate it against the real environment.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"path/filepath"

	"gonum.org/v1/gonum/floats"

	"worldmodel-rl/internal/buffer"
	"worldmodel-rl/internal/checkpoint"
	"worldmodel-rl/internal/dqn"
	"worldmodel-rl/internal/encoder"
	"worldmodel-rl/internal/env"
	"worldmodel-rl/internal/report"
	"worldmodel-rl/internal/synth"
	"worldmodel-rl/internal/telemetry"
	"worldmodel-rl/internal/worker"
	"worldmodel-rl/internal/worldmodel"
)

const (
	ModelKey   = "transition_model.json"
	ReportName = "report.html"
	// TestEpisodes is the number of episodes Test runs.
	TestEpisodes = 10
)

// PolicyLearner is the policy-learning algorithm trained inside the
// synthetic environment.
type PolicyLearner interface {
	Fit(ctx context.Context, e env.Env, steps int) ([]dqn.Episode, error)
	Test(ctx context.Context, e env.Env, episodes int) ([]float64, error)
	SaveWeights(path string, overwrite bool) error
	LoadWeights(path string) error
}

type ModelConfig struct {
	Hidden          int     `yaml:"hidden"`
	Epochs          int     `yaml:"epochs"`
	LearningRate    float64 `yaml:"learning_rate"`
	BatchSize       int     `yaml:"batch_size"`
	ValidationSplit float64 `yaml:"validation_split"`
}

type Config struct {
	EnvName string `yaml:"env_name"`
	Seed    int64  `yaml:"seed"`
	// BufferCapacity is both the replay capacity and the number of real
	// transitions collected.
	BufferCapacity int `yaml:"buffer_capacity"`
	// CollectPolicy is "random" or "softmax".
	CollectPolicy string `yaml:"collect_policy"`

	FrameWindow      int         `yaml:"frame_window"`
	LatentDim        int         `yaml:"latent_dim"`
	SequenceLength   int         `yaml:"sequence_length"`
	ExamplesPerEpoch int         `yaml:"examples_per_epoch"`
	Passes           int         `yaml:"passes"`
	Model            ModelConfig `yaml:"model"`

	TerminalThreshold float64 `yaml:"terminal_threshold"`
	MaxEpisodeSteps   int     `yaml:"max_episode_steps"`
	SeedAttempts      int     `yaml:"seed_attempts"`

	PolicySteps        int        `yaml:"policy_steps"`
	Cycles             int        `yaml:"cycles"`
	ValidationEpisodes int        `yaml:"validation_episodes"`
	DQN                dqn.Config `yaml:"dqn"`
}

func DefaultConfig() Config {
	return Config{
		EnvName:          "cartpole",
		BufferCapacity:   20000,
		CollectPolicy:    "random",
		FrameWindow:      2,
		LatentDim:        16,
		SequenceLength:   4,
		ExamplesPerEpoch: 2048,
		Model: ModelConfig{
			Hidden:          64,
			Epochs:          2,
			LearningRate:    1e-3,
			BatchSize:       32,
			ValidationSplit: .1,
		},
		TerminalThreshold:  synth.DefaultTerminalThreshold,
		MaxEpisodeSteps:    500,
		SeedAttempts:       synth.DefaultSeedAttempts,
		PolicySteps:        50000,
		Cycles:             5,
		ValidationEpisodes: 5,
		DQN:                dqn.DefaultConfig(50000),
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.BufferCapacity <= c.SequenceLength {
		errs = append(errs, errors.New("buffer capacity must exceed the sequence length"))
	}
	if c.FrameWindow <= 0 || c.LatentDim <= 0 || c.SequenceLength <= 0 {
		errs = append(errs, errors.New("frame window, latent dim and sequence length must be > 0"))
	}
	if c.ExamplesPerEpoch <= 0 {
		errs = append(errs, errors.New("examples per epoch must be > 0"))
	}
	if c.Cycles <= 0 || c.PolicySteps < c.Cycles {
		errs = append(errs, errors.New("policy steps must cover at least one step per cycle"))
	}
	if c.CollectPolicy != "random" && c.CollectPolicy != "softmax" {
		errs = append(errs, fmt.Errorf("collect policy %q must be random or softmax", c.CollectPolicy))
	}
	if err := c.DQN.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("dqn: %w", err))
	}
	return errors.Join(errs...)
}

// Pipeline owns one run directory.
type Pipeline struct {
	cfg    Config
	runDir string

	// Store receives the transition model weights.
	Store   checkpoint.Store
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

func New(cfg Config, runDir string) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:    cfg,
		runDir: runDir,
		Store:  checkpoint.NewFileStore(runDir),
		Logger: slog.Default(),
	}, nil
}

// CycleResult is one round of synthetic training followed by validation.
type CycleResult struct {
	Cycle             int       `json:"cycle"`
	SyntheticEpisodes int       `json:"synthetic_episodes"`
	SyntheticReward   float64   `json:"synthetic_reward"`
	Validation        []float64 `json:"validation"`
	MeanValidation    float64   `json:"mean_validation"`
}

type Result struct {
	Collect      worker.Stats           `json:"collect"`
	ModelReports []worldmodel.FitReport `json:"model_reports"`
	Cycles       []CycleResult          `json:"cycles"`
	WeightsPath  string                 `json:"weights_path"`
	ReportPath   string                 `json:"report_path"`
}

// seeds derived from the run seed; the encoder seed must be stable so Test
// rebuilds the same latent space.
func (p *Pipeline) seed(offset int64) int64 { return p.cfg.Seed*7919 + offset }

func (p *Pipeline) newEncoder(realEnv env.Env) (*encoder.Projection, error) {
	return encoder.NewProjection(realEnv.ObservationSpace().Dim(), p.cfg.FrameWindow, p.cfg.LatentDim, p.seed(1))
}

func (p *Pipeline) newLearner(enc encoder.Encoder, realEnv env.Env) (*dqn.Agent, error) {
	d, ok := realEnv.ActionSpace().(env.Discrete)
	if !ok {
		return nil, dqn.ErrActionSpace
	}
	cfg := p.cfg.DQN
	cfg.Seed = p.seed(2)
	agent, err := dqn.NewAgent(enc.Dim(), d.N, cfg)
	if err != nil {
		return nil, err
	}
	agent.Name = p.cfg.EnvName
	agent.Dir = p.runDir
	agent.Logger = p.Logger
	return agent, nil
}

func (p *Pipeline) collectPolicy(realEnv env.Env) worker.Policy {
	if p.cfg.CollectPolicy == "softmax" {
		if d, ok := realEnv.ActionSpace().(env.Discrete); ok {
			return worker.NewSoftmaxPolicy(worker.DefaultWeights(realEnv.ObservationSpace().Dim(), d.N))
		}
	}
	return worker.RandomPolicy{Space: realEnv.ActionSpace()}
}

// Train runs the whole loop and writes the model, the policy weights, the
// policy training log and an HTML report into the run directory.
func (p *Pipeline) Train(ctx context.Context) (Result, error) {
	var res Result
	realEnv, err := MakeEnv(p.cfg.EnvName, rand.New(rand.NewSource(p.seed(3))))
	if err != nil {
		return res, err
	}
	enc, err := p.newEncoder(realEnv)
	if err != nil {
		return res, err
	}

	rb, err := buffer.NewReplayBuffer(p.cfg.BufferCapacity)
	if err != nil {
		return res, err
	}
	runner := &worker.Runner{
		Env:     realEnv,
		Policy:  p.collectPolicy(realEnv),
		Buffer:  rb,
		Window:  p.cfg.FrameWindow,
		Seed:    p.seed(4),
		Logger:  p.Logger,
		Metrics: p.Metrics,
	}
	if res.Collect, err = runner.Collect(ctx, p.cfg.BufferCapacity); err != nil {
		return res, fmt.Errorf("collect: %w", err)
	}

	model, err := worldmodel.NewMLP(worldmodel.Config{
		SequenceLength:  p.cfg.SequenceLength,
		LatentDim:       enc.Dim(),
		ActionDim:       realEnv.ActionSpace().Dim(),
		Hidden:          p.cfg.Model.Hidden,
		LearningRate:    p.cfg.Model.LearningRate,
		Epochs:          p.cfg.Model.Epochs,
		BatchSize:       p.cfg.Model.BatchSize,
		ValidationSplit: p.cfg.Model.ValidationSplit,
		Seed:            p.seed(5),
	})
	if err != nil {
		return res, err
	}
	trainer := &worldmodel.Trainer{
		Model:   model,
		Encoder: enc,
		Sampler: buffer.NewSampler(rand.New(rand.NewSource(p.seed(6))), 0),
		Config: worldmodel.TrainerConfig{
			SequenceLength:   p.cfg.SequenceLength,
			ExamplesPerEpoch: p.cfg.ExamplesPerEpoch,
			Passes:           p.cfg.Passes,
		},
		Logger:  p.Logger,
		Metrics: p.Metrics,
	}
	if res.ModelReports, err = trainer.Train(ctx, rb); err != nil {
		return res, fmt.Errorf("train transition model: %w", err)
	}
	if err := p.Store.Save(ctx, ModelKey, model.Weights(), true); err != nil {
		return res, err
	}

	sim, err := synth.New(model, enc, realEnv, synth.Config{
		SequenceLength:    p.cfg.SequenceLength,
		TerminalThreshold: p.cfg.TerminalThreshold,
		MaxEpisodeSteps:   p.cfg.MaxEpisodeSteps,
		SeedAttempts:      p.cfg.SeedAttempts,
	}, rand.New(rand.NewSource(p.seed(7))))
	if err != nil {
		return res, err
	}
	sim.WithMetrics(p.Metrics)

	validationReal, err := MakeEnv(p.cfg.EnvName, rand.New(rand.NewSource(p.seed(8))))
	if err != nil {
		return res, err
	}
	validation := encoder.NewEncodedEnv(validationReal, enc)

	agent, err := p.newLearner(enc, realEnv)
	if err != nil {
		return res, err
	}
	if agent.Log, err = checkpoint.OpenJSONLog(filepath.Join(p.runDir, checkpoint.LogName(p.cfg.EnvName))); err != nil {
		return res, err
	}
	defer agent.Log.Close()

	if res.Cycles, err = p.cycles(ctx, agent, sim, validation); err != nil {
		return res, err
	}

	res.WeightsPath = filepath.Join(p.runDir, checkpoint.WeightsName(p.cfg.EnvName))
	if err := agent.SaveWeights(res.WeightsPath, true); err != nil {
		return res, err
	}
	res.ReportPath = filepath.Join(p.runDir, ReportName)
	if err := report.WriteFile(res.ReportPath, p.charts(res)...); err != nil {
		return res, err
	}
	p.Logger.Info("training run complete", "dir", p.runDir, "weights", res.WeightsPath)
	return res, nil
}

// cycles alternates policy training in the synthetic environment with
// validation episodes in the real one.
func (p *Pipeline) cycles(ctx context.Context, learner PolicyLearner, sim, validation env.Env) ([]CycleResult, error) {
	perCycle := p.cfg.PolicySteps / p.cfg.Cycles
	out := make([]CycleResult, 0, p.cfg.Cycles)
	for c := 1; c <= p.cfg.Cycles; c++ {
		episodes, err := learner.Fit(ctx, sim, perCycle)
		if err != nil {
			return out, fmt.Errorf("cycle %d: fit in synthetic env: %w", c, err)
		}
		cr := CycleResult{Cycle: c, SyntheticEpisodes: len(episodes)}
		for _, ep := range episodes {
			cr.SyntheticReward += ep.Reward
		}
		if len(episodes) > 0 {
			cr.SyntheticReward /= float64(len(episodes))
		}

		if cr.Validation, err = learner.Test(ctx, validation, p.cfg.ValidationEpisodes); err != nil {
			return out, fmt.Errorf("cycle %d: validate: %w", c, err)
		}
		if len(cr.Validation) > 0 {
			cr.MeanValidation = floats.Sum(cr.Validation) / float64(len(cr.Validation))
		}
		out = append(out, cr)
		p.Logger.Info("cycle done", "cycle", c, "synthetic_episodes", cr.SyntheticEpisodes,
			"synthetic_reward", cr.SyntheticReward, "validation_reward", cr.MeanValidation)
	}
	return out, nil
}

func (p *Pipeline) charts(res Result) []report.Chart {
	synthetic := report.Series{Name: "synthetic"}
	measured := report.Series{Name: "real"}
	for _, c := range res.Cycles {
		synthetic.Values = append(synthetic.Values, c.SyntheticReward)
		measured.Values = append(measured.Values, c.MeanValidation)
	}
	return []report.Chart{
		report.LossChart("transition model loss per pass", res.ModelReports),
		{Title: "mean episode reward per cycle", Series: []report.Series{synthetic, measured}},
	}
}

// TestResult holds the rewards of the test episodes and, when the run
// directory has a transition model, its loss on freshly collected real
// transitions.
type TestResult struct {
	Rewards []float64        `json:"rewards"`
	Model   *worldmodel.Loss `json:"model,omitempty"`
}

// Test loads policy weights and runs TestEpisodes episodes in the encoded
// real environment, then scores the saved transition model.
func (p *Pipeline) Test(ctx context.Context, weights string) (TestResult, error) {
	var res TestResult
	realEnv, err := MakeEnv(p.cfg.EnvName, rand.New(rand.NewSource(p.seed(9))))
	if err != nil {
		return res, err
	}
	enc, err := p.newEncoder(realEnv)
	if err != nil {
		return res, err
	}
	agent, err := p.newLearner(enc, realEnv)
	if err != nil {
		return res, err
	}
	if weights == "" {
		weights = filepath.Join(p.runDir, checkpoint.WeightsName(p.cfg.EnvName))
	}
	if err := agent.LoadWeights(weights); err != nil {
		return res, err
	}
	if res.Rewards, err = agent.Test(ctx, encoder.NewEncodedEnv(realEnv, enc), TestEpisodes); err != nil {
		return res, err
	}

	loss, err := p.modelLoss(ctx, enc)
	switch {
	case errors.Is(err, checkpoint.ErrNotFound):
		p.Logger.Warn("no transition model in run directory", "key", ModelKey)
	case err != nil:
		return res, fmt.Errorf("score transition model: %w", err)
	default:
		res.Model = &loss
		p.Logger.Info("transition model scored", "next", loss.Next, "reward", loss.Reward, "terminal", loss.Terminal)
	}
	return res, nil
}

// evalSteps is the number of fresh real transitions the saved model is
// scored on.
const evalSteps = 500

// modelLoss restores the saved transition model and measures its loss on
// transitions it never trained on.
func (p *Pipeline) modelLoss(ctx context.Context, enc encoder.Encoder) (worldmodel.Loss, error) {
	var w worldmodel.Weights
	if err := p.Store.Load(ctx, ModelKey, &w); err != nil {
		return worldmodel.Loss{}, err
	}
	model, err := worldmodel.FromWeights(w)
	if err != nil {
		return worldmodel.Loss{}, err
	}

	realEnv, err := MakeEnv(p.cfg.EnvName, rand.New(rand.NewSource(p.seed(10))))
	if err != nil {
		return worldmodel.Loss{}, err
	}
	steps := max(evalSteps, 4*(w.Config.SequenceLength+1))
	rb, err := buffer.NewReplayBuffer(steps)
	if err != nil {
		return worldmodel.Loss{}, err
	}
	runner := &worker.Runner{
		Env:     realEnv,
		Policy:  p.collectPolicy(realEnv),
		Buffer:  rb,
		Window:  p.cfg.FrameWindow,
		Seed:    p.seed(11),
		Logger:  p.Logger,
		Metrics: p.Metrics,
	}
	if _, err := runner.Collect(ctx, steps); err != nil {
		return worldmodel.Loss{}, fmt.Errorf("collect: %w", err)
	}

	tr := &worldmodel.Trainer{
		Encoder: enc,
		Sampler: buffer.NewSampler(rand.New(rand.NewSource(p.seed(12))), 0),
		Config: worldmodel.TrainerConfig{
			SequenceLength:   w.Config.SequenceLength,
			ExamplesPerEpoch: min(p.cfg.ExamplesPerEpoch, steps),
		},
	}
	examples, err := tr.Examples(rb)
	if err != nil {
		return worldmodel.Loss{}, err
	}
	return worldmodel.Evaluate(model, examples)
}
