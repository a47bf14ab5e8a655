// Package worker collects real experience: action-selection policies and the
// rollout loop that records transitions into replay memory.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"worldmodel-rl/internal/buffer"
	"worldmodel-rl/internal/encoder"
	"worldmodel-rl/internal/env"
	"worldmodel-rl/internal/telemetry"
)

// Episode summarises one (possibly cut short) real episode.
type Episode struct {
	ID     int     `json:"episode_id"`
	Steps  int     `json:"steps"`
	Reward float64 `json:"episode_reward"`
	Done   bool    `json:"done"`
}

// Stats is the outcome of one Collect call.
type Stats struct {
	Transitions int       `json:"transitions"`
	Episodes    []Episode `json:"episodes"`
}

// Runner steps a real environment under Policy and records every transition
// into Buffer. States are stacks of the last Window observations, the input
// an encoder expects.
type Runner struct {
	Env     env.Env
	Policy  Policy
	Buffer  *buffer.ReplayBuffer
	Window  int
	Seed    int64
	Logger  *slog.Logger
	Metrics *telemetry.Metrics

	rng       *rand.Rand
	episodeID int
}

// Collect records steps transitions, resetting the environment whenever an
// episode ends. The context is checked before each episode.
func (r *Runner) Collect(ctx context.Context, steps int) (Stats, error) {
	if steps <= 0 {
		return Stats{}, errors.New("steps must be > 0")
	}
	if r.Window <= 0 {
		r.Window = 1
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(r.Seed))
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var stats Stats
	stack := encoder.NewFrameStack(r.Window)
	for stats.Transitions < steps {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		r.episodeID++
		obs, err := r.Env.Reset()
		if err != nil {
			return stats, fmt.Errorf("reset: %w", err)
		}
		stack.Reset(obs)
		state := stack.Stack()
		episode := Episode{ID: r.episodeID}

		for stats.Transitions < steps {
			action := r.Policy.Act(obs, r.rng)
			next, reward, done, _, err := r.Env.Step(action)
			if err != nil {
				return stats, fmt.Errorf("episode %d step %d: %w", episode.ID, episode.Steps, err)
			}
			stack.Push(next)
			nextState := stack.Stack()

			r.Buffer.Append(buffer.Transition{
				State0:   state,
				Action:   action,
				Reward:   reward,
				State1:   nextState,
				Terminal: done,
			})
			stats.Transitions++
			episode.Steps++
			episode.Reward += reward

			state, obs = nextState, next
			if done {
				episode.Done = true
				break
			}
		}
		stats.Episodes = append(stats.Episodes, episode)
		logger.Debug("episode collected", "episode", episode.ID, "steps", episode.Steps, "reward", episode.Reward)
	}

	r.Metrics.AddTransitions(ctx, "real", stats.Transitions)
	logger.Info("real rollouts collected", "transitions", stats.Transitions, "episodes", len(stats.Episodes))
	return stats, nil
}
