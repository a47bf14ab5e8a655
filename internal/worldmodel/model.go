// Package worldmodel learns the forward dynamics of an environment in latent
// space: given a short history of latent states and the actions taken in
// them, predict the next latent state, the reward and whether the episode
// ends.
package worldmodel

import (
	"errors"
	"fmt"

	"worldmodel-rl/internal/buffer"
	"worldmodel-rl/internal/encoder"
)

var ErrShape = errors.New("input shape mismatch")

// Prediction is the model's one-step continuation of a history.
type Prediction struct {
	Next     []float64
	Reward   float64
	Terminal float64 // probability
}

// Example is one supervised training pair: a history and its continuation.
type Example struct {
	Latents  [][]float64
	Actions  [][]float64
	Next     []float64
	Reward   float64
	Terminal bool
}

// Predictor is the read-only side of a model.
type Predictor interface {
	Predict(latents, actions [][]float64) (Prediction, error)
}

// Model is a trainable transition model. Fit runs to completion once called.
type Model interface {
	Predictor
	Fit(examples []Example) (FitReport, error)
}

// Decompose turns a sequence window of L+1 transitions into one example.
//
// The history is the L transitions ending with the last one: each state0
// paired with the action taken in it. The target is the last transition's
// outcome. The window's first transition only anchors the history inside
// its episode.
func Decompose(window []buffer.Transition, enc encoder.Encoder) (Example, error) {
	if len(window) < 2 {
		return Example{}, fmt.Errorf("%w: window of %d transitions", ErrShape, len(window))
	}
	return fromHistory(window[1:], enc)
}

// OneStep builds one example per transition, each with a history of one.
func OneStep(transitions []buffer.Transition, enc encoder.Encoder) ([]Example, error) {
	out := make([]Example, 0, len(transitions))
	for _, t := range transitions {
		ex, err := fromHistory([]buffer.Transition{t}, enc)
		if err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, nil
}

func fromHistory(history []buffer.Transition, enc encoder.Encoder) (Example, error) {
	rows := make([][]float64, 0, len(history)+1)
	for _, t := range history {
		rows = append(rows, t.State0)
	}
	last := history[len(history)-1]
	rows = append(rows, last.State1)

	latents, err := enc.Encode(rows)
	if err != nil {
		return Example{}, fmt.Errorf("encode history: %w", err)
	}
	actions := make([][]float64, len(history))
	for i, t := range history {
		actions[i] = t.Action
	}
	return Example{
		Latents:  latents[:len(history)],
		Actions:  actions,
		Next:     latents[len(history)],
		Reward:   last.Reward,
		Terminal: last.Terminal,
	}, nil
}
