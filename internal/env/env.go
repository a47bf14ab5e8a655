// Package env defines the environment contract shared by real environments
// and the learned synthetic one, so a policy learner can be pointed at
// either without knowing which it got.
package env

// Info carries auxiliary per-step data. It may be nil.
type Info map[string]any

// Env is a single-agent episodic environment.
//
// Observations and actions are flat float vectors. Discrete actions are a
// one-element vector holding the action index.
type Env interface {
	// Reset starts a new episode and returns its first observation.
	Reset() ([]float64, error)

	// Step applies action and returns the next observation, the reward, whether
	// the episode ended and auxiliary info.
	Step(action []float64) (obs []float64, reward float64, done bool, info Info, err error)

	ActionSpace() Space
	ObservationSpace() Space
}

// JointStep is the outcome of one step of a multi-agent environment.
type JointStep struct {
	Observations [][]float64
	Rewards      []float64
	Dones        []bool

	// Realized holds the actions the environment actually applied, after
	// clipping or other physical constraints. Nil means the intended actions
	// were applied unchanged.
	Realized [][]float64
	Info     Info
}

// AnyDone reports whether any agent's episode ended.
func (s JointStep) AnyDone() bool {
	for _, d := range s.Dones {
		if d {
			return true
		}
	}
	return false
}

// MultiEnv is an environment shared by several agents that act together.
type MultiEnv interface {
	NumAgents() int
	Reset() ([][]float64, error)
	Step(actions [][]float64) (JointStep, error)
	ActionSpace(agent int) Space
	ObservationSpace(agent int) Space
}

// Flatten concatenates per-agent vectors into one joint vector.
func Flatten(parts [][]float64) []float64 {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]float64, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
