// Package multiagent runs several agents in one shared environment. Every
// agent keeps its own transition model and memory but sees the actions of
// all agents, and the Orchestrator alternates between filling memories with
// real experience and training the models on it.
package multiagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"worldmodel-rl/internal/buffer"
	"worldmodel-rl/internal/checkpoint"
	"worldmodel-rl/internal/env"
	"worldmodel-rl/internal/telemetry"
	"worldmodel-rl/internal/worldmodel"
)

var ErrNotImplemented = errors.New("not implemented")

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseFill
	PhaseTrain
	PhaseEvaluate
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFill:
		return "fill"
	case PhaseTrain:
		return "train"
	case PhaseEvaluate:
		return "evaluate"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

type Config struct {
	Scenario string `yaml:"scenario"`
	// TargetSize is how many joint transitions one fill collects at most.
	// Zero uses the learners' memory size.
	TargetSize int           `yaml:"target_size"`
	Learner    LearnerConfig `yaml:"learner"`
	// RunID prefixes every saved artifact.
	RunID string `yaml:"-"`
}

// Validate checks that one fill can end without an episode boundary.
func (c Config) Validate() error {
	if c.TargetSize > c.Learner.MemSize {
		return fmt.Errorf("target size %d exceeds memory size %d", c.TargetSize, c.Learner.MemSize)
	}
	return nil
}

// Orchestrator owns the joint memory and the per-agent learners.
type Orchestrator struct {
	Env      env.MultiEnv
	Learners []*Learner
	Joint    *buffer.ReplayBuffer

	cfg    Config
	phase  Phase
	rounds int

	// store receives per-agent weights and per-round summaries. Nil skips
	// saving.
	store checkpoint.Store

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	tracer  trace.Tracer
}

// New builds one learner per agent. store may be nil.
func New(e env.MultiEnv, cfg Config, store checkpoint.Store, logger *slog.Logger, metrics *telemetry.Metrics) (*Orchestrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TargetSize <= 0 {
		cfg.TargetSize = cfg.Learner.MemSize
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	n := e.NumAgents()
	jointActionDim := 0
	for i := 0; i < n; i++ {
		jointActionDim += e.ActionSpace(i).Dim()
	}

	joint, err := buffer.NewReplayBuffer(cfg.Learner.MemSize)
	if err != nil {
		return nil, fmt.Errorf("joint memory: %w", err)
	}
	o := &Orchestrator{
		Env:     e,
		Joint:   joint,
		cfg:     cfg,
		store:   store,
		Logger:  logger,
		Metrics: metrics,
		tracer:  otel.Tracer("worldmodel-rl/multiagent"),
	}
	for i := 0; i < n; i++ {
		l, err := NewLearner(i, e.ObservationSpace(i).Dim(), jointActionDim, e.ActionSpace(i), cfg.Learner)
		if err != nil {
			return nil, err
		}
		l.Store = store
		l.Dir = checkpoint.RunDir("", cfg.RunID, checkpoint.AgentDir(i, cfg.Scenario))
		l.Logger = logger.With("agent", i)
		l.Metrics = metrics
		o.Learners = append(o.Learners, l)
	}
	return o, nil
}

func (o *Orchestrator) Phase() Phase { return o.phase }

// Rounds is the number of completed rounds.
func (o *Orchestrator) Rounds() int { return o.rounds }

// FillResult describes one fill phase.
type FillResult struct {
	Steps  int     `json:"steps"`
	Done   bool    `json:"done"`
	Reward float64 `json:"reward"`
}

// Fill clears every memory and steps the environment until the joint memory
// holds TargetSize transitions or an agent's episode ends.
func (o *Orchestrator) Fill(ctx context.Context) (FillResult, error) {
	o.phase = PhaseFill
	defer func() { o.phase = PhaseIdle }()

	o.Joint.Clear()
	for _, l := range o.Learners {
		l.Memory.Clear()
	}

	var res FillResult
	obs, err := o.Env.Reset()
	if err != nil {
		return res, fmt.Errorf("reset: %w", err)
	}
	for o.Joint.Len() < o.cfg.TargetSize {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		intended := make([][]float64, len(o.Learners))
		for i, l := range o.Learners {
			intended[i] = l.Act(obs[i])
		}
		step, err := o.Env.Step(intended)
		if err != nil {
			return res, fmt.Errorf("step %d: %w", res.Steps, err)
		}
		realized := step.Realized
		if realized == nil {
			realized = intended
		}
		o.record(obs, intended, realized, step)
		res.Steps++
		for _, r := range step.Rewards {
			res.Reward += r
		}

		obs = step.Observations
		if step.AnyDone() {
			res.Done = true
			o.Logger.Info("episode done", "steps", res.Steps, "reward", res.Reward)
			break
		}
	}
	o.Metrics.AddTransitions(ctx, "joint", res.Steps)
	return res, nil
}

func (o *Orchestrator) record(obs, intended, realized [][]float64, step env.JointStep) {
	jointRealized := env.Flatten(realized)
	jointIntended := env.Flatten(intended)
	var total float64
	for _, r := range step.Rewards {
		total += r
	}
	o.Joint.Append(buffer.Transition{
		State0:   env.Flatten(obs),
		Action:   jointRealized,
		Intended: jointIntended,
		Reward:   total,
		Rewards:  step.Rewards,
		State1:   env.Flatten(step.Observations),
		Terminal: step.AnyDone(),
	})
	for i, l := range o.Learners {
		l.Memory.Append(buffer.Transition{
			State0:   obs[i],
			Action:   jointRealized,
			Intended: jointIntended,
			Reward:   step.Rewards[i],
			State1:   step.Observations[i],
			Terminal: step.Dones[i],
		})
	}
}

// Train fits every agent's model on its memory.
func (o *Orchestrator) Train(ctx context.Context) ([]worldmodel.FitReport, error) {
	o.phase = PhaseTrain
	defer func() { o.phase = PhaseIdle }()

	reports := make([]worldmodel.FitReport, 0, len(o.Learners))
	for _, l := range o.Learners {
		select {
		case <-ctx.Done():
			return reports, ctx.Err()
		default:
		}
		report, err := l.Train(ctx)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// RoundResult is the outcome of one fill and train round.
type RoundResult struct {
	Round   int                    `json:"round"`
	Fill    FillResult             `json:"fill"`
	Reports []worldmodel.FitReport `json:"reports"`
}

// Round runs one fill phase followed by one train phase.
func (o *Orchestrator) Round(ctx context.Context) (RoundResult, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.round",
		trace.WithAttributes(
			attribute.String("scenario", o.cfg.Scenario),
			attribute.Int("round", o.rounds+1),
			attribute.Int("agents", len(o.Learners)),
		),
	)
	defer span.End()

	res := RoundResult{Round: o.rounds + 1}
	fill, err := o.Fill(ctx)
	res.Fill = fill
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fill failed")
		return res, fmt.Errorf("round %d fill: %w", res.Round, err)
	}
	span.SetAttributes(attribute.Int("fill.steps", fill.Steps), attribute.Bool("fill.done", fill.Done))

	res.Reports, err = o.Train(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "train failed")
		return res, fmt.Errorf("round %d train: %w", res.Round, err)
	}
	if o.store != nil {
		if err := o.store.Save(ctx, o.RoundKey(res.Round), res, true); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "save failed")
			return res, fmt.Errorf("round %d: %w", res.Round, err)
		}
	}
	o.rounds++
	o.Metrics.AddRound(ctx, o.cfg.Scenario)
	span.SetStatus(codes.Ok, "round complete")
	o.Logger.Info("round complete", "round", res.Round, "steps", fill.Steps)
	return res, nil
}

// RoundKey locates the saved summary of round n in the scenario directory.
func (o *Orchestrator) RoundKey(n int) string {
	dir := checkpoint.RunDir("", o.cfg.RunID, checkpoint.ScenarioDir(o.cfg.Scenario))
	return path.Join(filepath.ToSlash(dir), fmt.Sprintf("round_%d.json", n))
}

// Run performs rounds rounds, stopping at the first error.
func (o *Orchestrator) Run(ctx context.Context, rounds int) ([]RoundResult, error) {
	results := make([]RoundResult, 0, rounds)
	for i := 0; i < rounds; i++ {
		res, err := o.Round(ctx)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Evaluate scores the trained models against the real environment.
func (o *Orchestrator) Evaluate(context.Context) error {
	return ErrNotImplemented
}

// StepModel advances a simulated joint step through the learned models.
func (o *Orchestrator) StepModel(context.Context, [][]float64, [][]float64) (env.JointStep, error) {
	return env.JointStep{}, ErrNotImplemented
}
