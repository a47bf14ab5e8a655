package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestNewCreatesInstruments(t *testing.T) {
	m, err := New(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)
	require.NotNil(t, m)

	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordLoss(ctx, "test", 1, 2, 3)
		m.AddTransitions(ctx, "real", 4)
		m.AddSyntheticStep(ctx)
		m.AddRound(ctx, "spread")
	})
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	assert.NotPanics(t, func() {
		m.RecordLoss(ctx, "test", 1, 2, 3)
		m.AddTransitions(ctx, "real", 4)
		m.AddSyntheticStep(ctx)
		m.AddRound(ctx, "spread")
	})
}
