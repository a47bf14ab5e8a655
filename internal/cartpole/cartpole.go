// Package cartpole is the classic pole-balancing task, used as the real
// environment for the single-agent world-model pipeline.
package cartpole

import (
	"math"
	"math/rand"

	"worldmodel-rl/internal/env"
)

const (
	gravity        = 9.81
	massCart       = 1.0
	massPole       = 0.1
	length         = 0.5
	totalMass      = massCart + massPole
	poleMassLength = massPole * length
	forceMax       = 10.0
	tau            = 0.02

	xThreshold     = 2.4
	thetaThreshold = 12.0 * math.Pi / 180.0
	maxSteps       = 500
)

type State struct {
	X        float64 `json:"x"`
	XDot     float64 `json:"x_dot"`
	Theta    float64 `json:"theta"`
	ThetaDot float64 `json:"theta_dot"`
}

// Vector returns the observation form of s.
func (s State) Vector() []float64 {
	return []float64{s.X, s.XDot, s.Theta, s.ThetaDot}
}

type Env struct {
	State State
	Steps int
	Rand  *rand.Rand
}

var _ env.Env = (*Env)(nil)

func NewEnv(rng *rand.Rand) *Env {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	e := &Env{Rand: rng}
	e.reset()
	return e
}

func (e *Env) Reset() ([]float64, error) {
	return e.reset().Vector(), nil
}

func (e *Env) reset() State {
	e.State = State{
		X:        e.Rand.Float64()*0.1 - 0.05,
		XDot:     e.Rand.Float64()*0.1 - 0.05,
		Theta:    e.Rand.Float64()*0.1 - 0.05,
		ThetaDot: e.Rand.Float64()*0.1 - 0.05,
	}
	e.Steps = 0
	return e.State
}

// Step pushes the cart left (action 0) or right (action 1).
func (e *Env) Step(action []float64) ([]float64, float64, bool, env.Info, error) {
	a, err := e.ActionSpace().(env.Discrete).Index(action)
	if err != nil {
		return nil, 0, false, nil, err
	}
	force := forceMax
	if a == 0 {
		force = -forceMax
	}

	x := e.State.X
	xDot := e.State.XDot
	theta := e.State.Theta
	thetaDot := e.State.ThetaDot

	cosTheta := math.Cos(theta)
	sinTheta := math.Sin(theta)

	temp := (force + poleMassLength*thetaDot*thetaDot*sinTheta) / totalMass
	thetaAcc := (gravity*sinTheta - cosTheta*temp) / (length * (4.0/3.0 - massPole*cosTheta*cosTheta/totalMass))
	xAcc := temp - poleMassLength*thetaAcc*cosTheta/totalMass
	x += tau * xDot
	xDot += tau * xAcc
	theta += tau * thetaDot
	thetaDot += tau * thetaAcc

	e.State = State{
		X:        x,
		XDot:     xDot,
		Theta:    theta,
		ThetaDot: thetaDot,
	}
	e.Steps++

	done := x < -xThreshold || x > xThreshold || theta < -thetaThreshold || theta > thetaThreshold || e.Steps >= maxSteps
	reward := 1.0
	if done && e.Steps < maxSteps {
		reward = 0.0
	}
	return e.State.Vector(), reward, done, env.Info{"steps": e.Steps}, nil
}

func (e *Env) ActionSpace() env.Space {
	return env.Discrete{N: 2}
}

func (e *Env) ObservationSpace() env.Space {
	return env.Box{
		Low:  []float64{-2 * xThreshold, math.Inf(-1), -2 * thetaThreshold, math.Inf(-1)},
		High: []float64{2 * xThreshold, math.Inf(1), 2 * thetaThreshold, math.Inf(1)},
	}
}

func MaxSteps() int {
	return maxSteps
}
