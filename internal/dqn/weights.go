package dqn

import (
	"context"
	"fmt"
	"path/filepath"

	"gonum.org/v1/gonum/mat"

	"worldmodel-rl/internal/checkpoint"
)

// Weights is the persisted form of the Q function.
type Weights struct {
	ObsDim  int         `json:"obs_dim"`
	Actions int         `json:"actions"`
	Step    int         `json:"step"`
	W       [][]float64 `json:"w"`
	B       []float64   `json:"b"`
}

func (a *Agent) Weights() Weights {
	w := Weights{ObsDim: a.obsDim, Actions: a.actions, Step: a.step, W: make([][]float64, a.actions)}
	for i := range w.W {
		w.W[i] = mat.Row(nil, i, a.q.w)
	}
	w.B = append([]float64(nil), a.q.b.RawVector().Data...)
	return w
}

// SetWeights replaces both the online and target Q functions.
func (a *Agent) SetWeights(w Weights) error {
	if w.ObsDim != a.obsDim || w.Actions != a.actions || len(w.W) != a.actions || len(w.B) != a.actions {
		return fmt.Errorf("weights shape %dx%d, agent %dx%d", w.Actions, w.ObsDim, a.actions, a.obsDim)
	}
	for i, row := range w.W {
		if len(row) != a.obsDim {
			return fmt.Errorf("weights row %d has %d columns, want %d", i, len(row), a.obsDim)
		}
		a.q.w.SetRow(i, row)
	}
	for i, v := range w.B {
		a.q.b.SetVec(i, v)
	}
	a.target = a.q.clone()
	return nil
}

// SaveWeights writes the weights as JSON to path. Without overwrite an
// existing file is an error.
func (a *Agent) SaveWeights(path string, overwrite bool) error {
	store := checkpoint.NewFileStore(filepath.Dir(path))
	if err := store.Save(context.Background(), filepath.Base(path), a.Weights(), overwrite); err != nil {
		return fmt.Errorf("save weights: %w", err)
	}
	return nil
}

func (a *Agent) LoadWeights(path string) error {
	var w Weights
	store := checkpoint.NewFileStore(filepath.Dir(path))
	if err := store.Load(context.Background(), filepath.Base(path), &w); err != nil {
		return fmt.Errorf("load weights: %w", err)
	}
	return a.SetWeights(w)
}
