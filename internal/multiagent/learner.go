package multiagent

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"path"

	"worldmodel-rl/internal/buffer"
	"worldmodel-rl/internal/checkpoint"
	"worldmodel-rl/internal/encoder"
	"worldmodel-rl/internal/env"
	"worldmodel-rl/internal/telemetry"
	"worldmodel-rl/internal/worker"
	"worldmodel-rl/internal/worldmodel"
)

// LearnerConfig sizes one agent's memory and transition model.
type LearnerConfig struct {
	MemSize      int     `yaml:"mem_size"`
	Epochs       int     `yaml:"epochs"`
	LearningRate float64 `yaml:"learning_rate"`
	BatchSize    int     `yaml:"batch_size"`
	Hidden       int     `yaml:"hidden"`
	// SequenceLength above one trains on sampled windows instead of single
	// transitions.
	SequenceLength   int     `yaml:"sequence_length"`
	ExamplesPerEpoch int     `yaml:"examples_per_epoch"`
	ValidationSplit  float64 `yaml:"validation_split"`
	Seed             int64   `yaml:"seed"`
}

func DefaultLearnerConfig() LearnerConfig {
	return LearnerConfig{
		MemSize:          3000,
		Epochs:           4,
		LearningRate:     .001,
		BatchSize:        32,
		Hidden:           64,
		ExamplesPerEpoch: 256,
		ValidationSplit:  .1,
	}
}

// Learner is one agent: a random policy over its own action space, a
// private memory of transitions and a transition model from its own
// observation and everyone's actions to its next observation.
type Learner struct {
	ID     int
	Model  *worldmodel.MLP
	Memory *buffer.ReplayBuffer
	Policy worker.Policy

	cfg     LearnerConfig
	enc     encoder.Identity
	rng     *rand.Rand
	sampler *buffer.Sampler

	// Store and Dir locate saved weights. A nil Store skips saving.
	Store   checkpoint.Store
	Dir     string
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// NewLearner builds agent id's learner. jointActionDim is the size of all
// agents' actions concatenated.
func NewLearner(id, obsDim, jointActionDim int, actions env.Space, cfg LearnerConfig) (*Learner, error) {
	memory, err := buffer.NewReplayBuffer(cfg.MemSize)
	if err != nil {
		return nil, fmt.Errorf("agent %d memory: %w", id, err)
	}
	seqLen := cfg.SequenceLength
	if seqLen < 1 {
		seqLen = 1
	}
	model, err := worldmodel.NewMLP(worldmodel.Config{
		SequenceLength:  seqLen,
		LatentDim:       obsDim,
		ActionDim:       jointActionDim,
		Hidden:          cfg.Hidden,
		LearningRate:    cfg.LearningRate,
		Epochs:          cfg.Epochs,
		BatchSize:       cfg.BatchSize,
		ValidationSplit: cfg.ValidationSplit,
		Seed:            cfg.Seed + int64(id),
	})
	if err != nil {
		return nil, fmt.Errorf("agent %d model: %w", id, err)
	}
	rng := rand.New(rand.NewSource(cfg.Seed + int64(id)))
	return &Learner{
		ID:      id,
		Model:   model,
		Memory:  memory,
		Policy:  worker.RandomPolicy{Space: actions},
		cfg:     cfg,
		enc:     encoder.Identity{Frames: 1, Size: obsDim},
		rng:     rng,
		sampler: buffer.NewSampler(rng, 0),
		Logger:  slog.Default(),
	}, nil
}

// Act queries the agent's policy for its own observation.
func (l *Learner) Act(obs []float64) []float64 {
	return l.Policy.Act(obs, l.rng)
}

// Train fits the model on the private memory and saves its weights.
func (l *Learner) Train(ctx context.Context) (worldmodel.FitReport, error) {
	examples, err := l.examples()
	if err != nil {
		return worldmodel.FitReport{}, fmt.Errorf("agent %d: %w", l.ID, err)
	}
	report, err := l.Model.Fit(examples)
	if err != nil {
		return report, fmt.Errorf("agent %d: fit: %w", l.ID, err)
	}

	final := report.Final()
	l.Metrics.RecordLoss(ctx, fmt.Sprintf("agent%d", l.ID), final.Next, final.Reward, final.Terminal)
	l.Logger.Info("agent model trained", "agent", l.ID, "examples", report.Examples,
		"loss_next", final.Next, "loss_reward", final.Reward)

	if l.Store != nil {
		if err := l.Store.Save(ctx, path.Join(l.Dir, "model.json"), l.Model.Weights(), true); err != nil {
			return report, fmt.Errorf("agent %d: %w", l.ID, err)
		}
	}
	return report, nil
}

func (l *Learner) examples() ([]worldmodel.Example, error) {
	if l.Memory.Len() == 0 {
		return nil, fmt.Errorf("%w: memory is empty", buffer.ErrInsufficientData)
	}
	if l.cfg.SequenceLength <= 1 {
		return worldmodel.OneStep(l.Memory.Transitions(), l.enc)
	}
	t := worldmodel.Trainer{
		Encoder: l.enc,
		Sampler: l.sampler,
		Config: worldmodel.TrainerConfig{
			SequenceLength:   l.cfg.SequenceLength,
			ExamplesPerEpoch: l.cfg.ExamplesPerEpoch,
		},
	}
	return t.Examples(l.Memory)
}
