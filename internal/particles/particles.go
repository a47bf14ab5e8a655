// Package particles is a small cooperative multi-agent world: agents move in
// the plane and are rewarded for covering a set of landmarks between them
// while avoiding collisions.
package particles

import (
	"errors"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"worldmodel-rl/internal/env"
)

const (
	defaultMaxSteps = 25
	stepSize        = 0.1
	agentSize       = 0.15
	collisionCost   = 1.0
)

// Env is the "spread" scenario: N agents, N landmarks, shared reward.
type Env struct {
	Agents    int
	MaxSteps  int
	Rand      *rand.Rand
	positions [][]float64
	landmarks [][]float64
	steps     int
}

var _ env.MultiEnv = (*Env)(nil)

func NewEnv(agents, maxSteps int, rng *rand.Rand) (*Env, error) {
	if agents <= 0 {
		return nil, errors.New("agents must be greater than zero")
	}
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Env{Agents: agents, MaxSteps: maxSteps, Rand: rng}, nil
}

func (e *Env) NumAgents() int { return e.Agents }

func (e *Env) Reset() ([][]float64, error) {
	e.positions = e.scatter()
	e.landmarks = e.scatter()
	e.steps = 0
	return e.observations(), nil
}

func (e *Env) scatter() [][]float64 {
	out := make([][]float64, e.Agents)
	for i := range out {
		out[i] = []float64{e.Rand.Float64()*2 - 1, e.Rand.Float64()*2 - 1}
	}
	return out
}

// Step moves every agent by its clipped velocity. The clipped velocities are
// reported back as the realized actions.
func (e *Env) Step(actions [][]float64) (env.JointStep, error) {
	if e.positions == nil {
		return env.JointStep{}, errors.New("step called before reset")
	}
	if len(actions) != e.Agents {
		return env.JointStep{}, errors.New("one action per agent required")
	}
	realized := make([][]float64, e.Agents)
	for i, a := range actions {
		space := e.ActionSpace(i).(env.Box)
		if len(a) != space.Dim() {
			return env.JointStep{}, errors.New("action must be a 2-d velocity")
		}
		realized[i] = space.Clip(a)
		e.positions[i][0] += stepSize * realized[i][0]
		e.positions[i][1] += stepSize * realized[i][1]
	}
	e.steps++

	reward := e.coverage() - collisionCost*float64(e.collisions())
	rewards := make([]float64, e.Agents)
	dones := make([]bool, e.Agents)
	for i := range rewards {
		rewards[i] = reward
		dones[i] = e.steps >= e.MaxSteps
	}
	return env.JointStep{
		Observations: e.observations(),
		Rewards:      rewards,
		Dones:        dones,
		Realized:     realized,
		Info:         env.Info{"steps": e.steps},
	}, nil
}

// coverage is minus the sum, over landmarks, of the distance to the closest agent.
func (e *Env) coverage() float64 {
	var total float64
	for _, l := range e.landmarks {
		best := math.Inf(1)
		for _, p := range e.positions {
			best = math.Min(best, floats.Distance(l, p, 2))
		}
		total += best
	}
	return -total
}

func (e *Env) collisions() int {
	n := 0
	for i := range e.positions {
		for j := i + 1; j < len(e.positions); j++ {
			if floats.Distance(e.positions[i], e.positions[j], 2) < 2*agentSize {
				n++
			}
		}
	}
	return n
}

// observations: own position, then landmarks and other agents relative to it.
func (e *Env) observations() [][]float64 {
	obs := make([][]float64, e.Agents)
	for i, p := range e.positions {
		o := make([]float64, 0, e.obsDim())
		o = append(o, p...)
		for _, l := range e.landmarks {
			o = append(o, l[0]-p[0], l[1]-p[1])
		}
		for j, q := range e.positions {
			if j != i {
				o = append(o, q[0]-p[0], q[1]-p[1])
			}
		}
		obs[i] = o
	}
	return obs
}

func (e *Env) obsDim() int {
	return 2 + 2*e.Agents + 2*(e.Agents-1)
}

func (e *Env) ActionSpace(int) env.Space {
	return env.NewBox(2, -1, 1)
}

func (e *Env) ObservationSpace(int) env.Space {
	return env.NewBox(e.obsDim(), math.Inf(-1), math.Inf(1))
}
