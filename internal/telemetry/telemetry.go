// Package telemetry holds the OpenTelemetry instruments shared by the
// training components. A nil *Metrics records nothing.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics are created once per process and shared.
type Metrics struct {
	// loss records per-pass training loss, one point per loss head
	loss metric.Float64Histogram

	// transitions counts real transitions recorded into replay memory
	transitions metric.Int64Counter

	// syntheticSteps counts steps served by a synthetic environment
	syntheticSteps metric.Int64Counter

	// rounds counts completed orchestration rounds
	rounds metric.Int64Counter
}

// New creates the instruments on meter.
func New(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.loss, err = meter.Float64Histogram(
		"worldmodel.loss",
		metric.WithDescription("Transition model training loss per head"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create loss histogram: %w", err)
	}

	m.transitions, err = meter.Int64Counter(
		"rollout.transitions",
		metric.WithDescription("Real environment transitions recorded"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create transitions counter: %w", err)
	}

	m.syntheticSteps, err = meter.Int64Counter(
		"synth.steps",
		metric.WithDescription("Steps simulated by the learned model"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create synthetic steps counter: %w", err)
	}

	m.rounds, err = meter.Int64Counter(
		"orchestrator.rounds",
		metric.WithDescription("Completed fill/train rounds"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create rounds counter: %w", err)
	}
	return m, nil
}

// Noop returns instruments backed by the no-op meter provider.
func Noop() *Metrics {
	m, err := New(noop.NewMeterProvider().Meter("worldmodel-rl"))
	if err != nil {
		// the no-op meter never fails
		panic(err)
	}
	return m
}

// RecordLoss records the three loss heads of one training pass.
func (m *Metrics) RecordLoss(ctx context.Context, component string, next, reward, terminal float64) {
	if m == nil {
		return
	}
	for head, v := range map[string]float64{"next": next, "reward": reward, "terminal": terminal} {
		m.loss.Record(ctx, v, metric.WithAttributes(
			attribute.String("component", component),
			attribute.String("head", head),
		))
	}
}

func (m *Metrics) AddTransitions(ctx context.Context, source string, n int) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, int64(n), metric.WithAttributes(attribute.String("source", source)))
}

func (m *Metrics) AddSyntheticStep(ctx context.Context) {
	if m == nil {
		return
	}
	m.syntheticSteps.Add(ctx, 1)
}

func (m *Metrics) AddRound(ctx context.Context, scenario string) {
	if m == nil {
		return
	}
	m.rounds.Add(ctx, 1, metric.WithAttributes(attribute.String("scenario", scenario)))
}
