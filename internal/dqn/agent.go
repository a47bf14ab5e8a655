// Package dqn is a compact deep-Q style policy learner: a linear Q function
// over the observation, a hard-synced target copy, annealed epsilon-greedy
// exploration and experience replay.
package dqn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"worldmodel-rl/internal/buffer"
	"worldmodel-rl/internal/checkpoint"
	"worldmodel-rl/internal/env"
)

var ErrActionSpace = errors.New("dqn requires a discrete action space")

// qfunc is Q(s) = W s + b, one row per action.
type qfunc struct {
	w *mat.Dense
	b *mat.VecDense
}

func (q *qfunc) values(obs []float64) []float64 {
	rows, _ := q.w.Dims()
	out := mat.NewVecDense(rows, nil)
	out.MulVec(q.w, mat.NewVecDense(len(obs), obs))
	out.AddVec(out, q.b)
	return out.RawVector().Data
}

func (q *qfunc) clone() *qfunc {
	return &qfunc{w: mat.DenseCopyOf(q.w), b: mat.VecDenseCopyOf(q.b)}
}

// Agent learns a greedy discrete policy. Train it with Fit and evaluate it
// with Test.
type Agent struct {
	cfg     Config
	obsDim  int
	actions int

	q      *qfunc
	target *qfunc
	memory *buffer.ReplayBuffer
	rng    *rand.Rand
	step   int

	// Name is used for checkpoint and log file names.
	Name string
	// Dir receives periodic checkpoints. Empty disables them.
	Dir    string
	Log    *checkpoint.JSONLog
	Logger *slog.Logger
}

func NewAgent(obsDim, actions int, cfg Config) (*Agent, error) {
	if obsDim <= 0 || actions <= 0 {
		return nil, fmt.Errorf("invalid dimensions: obs %d, actions %d", obsDim, actions)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	memory, err := buffer.NewReplayBuffer(cfg.MemoryLimit)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	w := mat.NewDense(actions, obsDim, nil)
	for i := 0; i < actions; i++ {
		for j := 0; j < obsDim; j++ {
			w.Set(i, j, (rng.Float64()*2-1)*0.01)
		}
	}
	q := &qfunc{w: w, b: mat.NewVecDense(actions, nil)}
	return &Agent{
		cfg:     cfg,
		obsDim:  obsDim,
		actions: actions,
		q:       q,
		target:  q.clone(),
		memory:  memory,
		rng:     rng,
		Name:    "agent",
		Logger:  slog.Default(),
	}, nil
}

// Steps is the number of training steps taken so far.
func (a *Agent) Steps() int { return a.step }

// QValues returns the online Q estimate for every action.
func (a *Agent) QValues(obs []float64) []float64 { return a.q.values(obs) }

// Epsilon is the exploration rate at the current training step.
func (a *Agent) Epsilon() float64 {
	if a.cfg.AnnealSteps <= 0 {
		return a.cfg.EpsMin
	}
	slope := (a.cfg.EpsMin - a.cfg.EpsMax) / float64(a.cfg.AnnealSteps)
	return math.Max(a.cfg.EpsMin, a.cfg.EpsMax+slope*float64(a.step))
}

func (a *Agent) act(obs []float64, eps float64) int {
	if a.rng.Float64() < eps {
		return a.rng.Intn(a.actions)
	}
	return floats.MaxIdx(a.q.values(obs))
}

func (a *Agent) check(e env.Env) error {
	d, ok := e.ActionSpace().(env.Discrete)
	if !ok {
		return ErrActionSpace
	}
	if d.N != a.actions {
		return fmt.Errorf("%w: env has %d actions, agent %d", ErrActionSpace, d.N, a.actions)
	}
	if dim := e.ObservationSpace().Dim(); dim != a.obsDim {
		return fmt.Errorf("observation dim %d, agent expects %d", dim, a.obsDim)
	}
	return nil
}

// Episode is one finished (or cut) episode's summary, also the log entry.
type Episode struct {
	Episode int     `json:"episode"`
	Step    int     `json:"nb_steps"`
	Steps   int     `json:"nb_episode_steps"`
	Reward  float64 `json:"episode_reward"`
	Loss    float64 `json:"loss"`
	MeanQ   float64 `json:"mean_q"`
	Epsilon float64 `json:"eps"`
}

// Fit trains for steps environment steps. The context is checked between
// episodes.
func (a *Agent) Fit(ctx context.Context, e env.Env, steps int) ([]Episode, error) {
	if err := a.check(e); err != nil {
		return nil, err
	}
	var history []Episode
	for taken := 0; taken < steps; {
		select {
		case <-ctx.Done():
			return history, ctx.Err()
		default:
		}

		obs, err := e.Reset()
		if err != nil {
			return history, fmt.Errorf("reset: %w", err)
		}
		ep := Episode{Episode: len(history) + 1}
		var losses, qs []float64
		for taken < steps {
			action := a.act(obs, a.Epsilon())
			next, reward, done, _, err := e.Step([]float64{float64(action)})
			if err != nil {
				return history, fmt.Errorf("step %d: %w", a.step, err)
			}
			a.memory.Append(buffer.Transition{
				State0:   obs,
				Action:   []float64{float64(action)},
				Reward:   reward,
				State1:   next,
				Terminal: done,
			})
			a.step++
			taken++
			ep.Steps++
			ep.Reward += reward
			qs = append(qs, a.q.values(obs)[action])

			if a.step > a.cfg.Warmup && a.step%a.cfg.TrainInterval == 0 {
				if loss, ok := a.update(); ok {
					losses = append(losses, loss)
				}
			}
			if a.step%a.cfg.TargetUpdate == 0 {
				a.target = a.q.clone()
			}
			if a.Dir != "" && a.cfg.CheckpointInterval > 0 && a.step%a.cfg.CheckpointInterval == 0 {
				path := filepath.Join(a.Dir, checkpoint.StepWeightsName(a.Name, a.step))
				if err := a.SaveWeights(path, true); err != nil {
					return history, err
				}
			}

			obs = next
			if done {
				break
			}
		}

		ep.Step = a.step
		ep.Epsilon = a.Epsilon()
		if len(losses) > 0 {
			ep.Loss = floats.Sum(losses) / float64(len(losses))
		}
		if len(qs) > 0 {
			ep.MeanQ = floats.Sum(qs) / float64(len(qs))
		}
		history = append(history, ep)
		if err := a.Log.Write(ep); err != nil {
			return history, fmt.Errorf("write log: %w", err)
		}
		a.Logger.Debug("dqn episode", "episode", ep.Episode, "step", a.step, "reward", ep.Reward, "eps", ep.Epsilon)
	}
	return history, nil
}

// update takes one minibatch gradient step on the Huber TD error.
func (a *Agent) update() (float64, bool) {
	if a.memory.Len() < a.cfg.BatchSize {
		return 0, false
	}
	batch, err := a.memory.SampleRandom(a.rng, a.cfg.BatchSize)
	if err != nil {
		return 0, false
	}
	gradW := mat.NewDense(a.actions, a.obsDim, nil)
	gradB := mat.NewVecDense(a.actions, nil)
	var loss float64
	for _, t := range batch {
		y := t.Reward
		if !t.Terminal {
			y += a.cfg.Gamma * floats.Max(a.target.values(t.State1))
		}
		act := int(t.Action[0])
		td := a.q.values(t.State0)[act] - y
		loss += huber(td, a.cfg.DeltaClip)
		g := td
		if a.cfg.DeltaClip > 0 {
			g = math.Max(-a.cfg.DeltaClip, math.Min(a.cfg.DeltaClip, td))
		}
		for j, v := range t.State0 {
			gradW.Set(act, j, gradW.At(act, j)+g*v)
		}
		gradB.SetVec(act, gradB.AtVec(act)+g)
	}
	scale := a.cfg.LearningRate / float64(len(batch))
	gradW.Scale(scale, gradW)
	gradB.ScaleVec(scale, gradB)
	a.q.w.Sub(a.q.w, gradW)
	a.q.b.SubVec(a.q.b, gradB)
	return loss / float64(len(batch)), true
}

func huber(d, clip float64) float64 {
	if clip <= 0 || math.Abs(d) <= clip {
		return 0.5 * d * d
	}
	return clip * (math.Abs(d) - 0.5*clip)
}

// Test runs episodes with the test exploration rate and returns each
// episode's total reward. It never updates the Q function.
func (a *Agent) Test(ctx context.Context, e env.Env, episodes int) ([]float64, error) {
	if err := a.check(e); err != nil {
		return nil, err
	}
	rewards := make([]float64, 0, episodes)
	for i := 0; i < episodes; i++ {
		select {
		case <-ctx.Done():
			return rewards, ctx.Err()
		default:
		}
		obs, err := e.Reset()
		if err != nil {
			return rewards, fmt.Errorf("reset: %w", err)
		}
		var total float64
		for n := 0; a.cfg.MaxEpisodeSteps <= 0 || n < a.cfg.MaxEpisodeSteps; n++ {
			next, reward, done, _, err := e.Step([]float64{float64(a.act(obs, a.cfg.EpsTest))})
			if err != nil {
				return rewards, fmt.Errorf("test episode %d: %w", i+1, err)
			}
			total += reward
			obs = next
			if done {
				break
			}
		}
		rewards = append(rewards, total)
		a.Logger.Info("test episode", "episode", i+1, "reward", total)
	}
	return rewards, nil
}
