package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worldmodel-rl/internal/config"
	"worldmodel-rl/internal/pipeline"
)

func TestRunRejectsUnknownMode(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := run(context.Background(), logger, config.Default(), "evaluate", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestPrintCycles(t *testing.T) {
	var buf bytes.Buffer
	printCycles(&buf, []pipeline.CycleResult{
		{Cycle: 1, SyntheticEpisodes: 4, SyntheticReward: 10, MeanValidation: 20},
		{Cycle: 2, SyntheticEpisodes: 3, SyntheticReward: 12, MeanValidation: 15},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "synthetic")
	assert.Contains(t, lines[1], "20.00")
	assert.Contains(t, lines[2], "15.00")
}
