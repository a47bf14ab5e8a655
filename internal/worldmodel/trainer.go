package worldmodel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"worldmodel-rl/internal/buffer"
	"worldmodel-rl/internal/encoder"
	"worldmodel-rl/internal/telemetry"
)

// TrainerConfig controls how training batches are assembled.
type TrainerConfig struct {
	// SequenceLength is the history length L; windows hold L+1 transitions.
	SequenceLength int
	// ExamplesPerEpoch is how many windows are sampled for each Fit call,
	// independent of how many transitions the buffer holds.
	ExamplesPerEpoch int
	// Passes is the number of sample-then-fit rounds. Zero derives it from
	// the buffer size so the data is revisited about nine times.
	Passes int
}

// Trainer fits a Model on windows resampled from a replay buffer.
type Trainer struct {
	Model   Model
	Encoder encoder.Encoder
	Sampler *buffer.Sampler
	Config  TrainerConfig
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

func (t *Trainer) passes(rb *buffer.ReplayBuffer) int {
	if t.Config.Passes > 0 {
		return t.Config.Passes
	}
	return 9*(rb.Len()/t.Config.ExamplesPerEpoch) + 1
}

// Train runs every pass and returns one report per pass. The context is
// checked between passes; a Fit call, once started, runs to completion.
func (t *Trainer) Train(ctx context.Context, rb *buffer.ReplayBuffer) ([]FitReport, error) {
	if t.Config.ExamplesPerEpoch <= 0 {
		return nil, errors.New("examples per epoch must be > 0")
	}
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}

	passes := t.passes(rb)
	reports := make([]FitReport, 0, passes)
	for pass := 0; pass < passes; pass++ {
		select {
		case <-ctx.Done():
			return reports, ctx.Err()
		default:
		}

		examples, err := t.Examples(rb)
		if err != nil {
			return reports, fmt.Errorf("pass %d: %w", pass, err)
		}
		report, err := t.Model.Fit(examples)
		if err != nil {
			return reports, fmt.Errorf("pass %d: fit: %w", pass, err)
		}
		reports = append(reports, report)

		final := report.Final()
		t.Metrics.RecordLoss(ctx, "worldmodel", final.Next, final.Reward, final.Terminal)
		logger.Info("transition model pass done",
			"pass", pass+1, "passes", passes, "examples", report.Examples,
			"loss_next", final.Next, "loss_reward", final.Reward, "loss_terminal", final.Terminal)
	}
	return reports, nil
}

// Examples samples and decomposes one epoch's worth of windows.
func (t *Trainer) Examples(rb *buffer.ReplayBuffer) ([]Example, error) {
	windows, err := t.Sampler.Windows(rb, t.Config.SequenceLength, t.Config.ExamplesPerEpoch)
	if err != nil {
		return nil, err
	}
	examples := make([]Example, len(windows))
	for i, w := range windows {
		if examples[i], err = Decompose(w, t.Encoder); err != nil {
			return nil, err
		}
	}
	return examples, nil
}
