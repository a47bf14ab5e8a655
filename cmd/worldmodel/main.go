package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/logrusorgru/aurora"
	"go.opentelemetry.io/otel"

	"worldmodel-rl/internal/checkpoint"
	"worldmodel-rl/internal/config"
	"worldmodel-rl/internal/pipeline"
	"worldmodel-rl/internal/telemetry"
)

func main() {
	mode := flag.String("mode", "train", "train or test")
	envName := flag.String("env-name", "", "environment to run (default from config)")
	weights := flag.String("weights", "", "policy weights to load in test mode")
	configPath := flag.String("config", "", "YAML config file")
	runID := flag.String("run", "", "run id; train generates one when empty")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *envName != "" {
		cfg.Pipeline.EnvName = *envName
	}
	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg, *mode, *runID, *weights); err != nil {
		logger.Error("run failed", "mode", *mode, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg config.Config, mode, runID, weights string) error {
	if mode != "train" && mode != "test" {
		return fmt.Errorf("unknown mode %q", mode)
	}
	if runID == "" && mode == "train" {
		runID = uuid.NewString()
	}
	runDir := filepath.Join(cfg.OutputDir, runID)
	logger = logger.With("run", runID, "env", cfg.Pipeline.EnvName)

	p, err := pipeline.New(cfg.Pipeline, runDir)
	if err != nil {
		return err
	}
	p.Logger = logger
	if p.Metrics, err = telemetry.New(otel.GetMeterProvider().Meter("worldmodel-rl")); err != nil {
		return err
	}
	if cfg.RedisURL != "" {
		store, err := checkpoint.NewRedisStore(checkpoint.RedisOptions{
			URL:    cfg.RedisURL,
			Prefix: "worldmodel:" + runID + ":",
		})
		if err != nil {
			return err
		}
		defer store.Close()
		p.Store = store
	}

	if mode == "test" {
		if weights == "" && runID == "" {
			weights = checkpoint.WeightsName(cfg.Pipeline.EnvName)
		}
		res, err := p.Test(ctx, weights)
		if err != nil {
			return err
		}
		logger.Info("test done", "episodes", len(res.Rewards))
		for i, r := range res.Rewards {
			fmt.Printf("episode %2d  reward %s\n", i+1, aurora.Green(fmt.Sprintf("%8.1f", r)))
		}
		if res.Model != nil {
			fmt.Printf("transition model loss %s\n", aurora.Yellow(fmt.Sprintf("%.4f", res.Model.Total())))
		}
		return nil
	}

	logger.Info("training", "dir", runDir, "buffer_capacity", cfg.Pipeline.BufferCapacity,
		"sequence_length", cfg.Pipeline.SequenceLength, "policy_steps", cfg.Pipeline.PolicySteps)
	res, err := p.Train(ctx)
	if err != nil {
		return err
	}
	printCycles(os.Stdout, res.Cycles)
	logger.Info("report written", "path", res.ReportPath)
	return nil
}

// printCycles prints one row per cycle, validation rewards green when they
// did not drop since the previous cycle.
func printCycles(w io.Writer, cycles []pipeline.CycleResult) {
	fmt.Fprintf(w, "%5s %10s %10s %10s\n", "cycle", "episodes", "synthetic", "real")
	prev := 0.0
	for i, c := range cycles {
		cell := fmt.Sprintf("%10.2f", c.MeanValidation)
		if i == 0 || c.MeanValidation >= prev {
			fmt.Fprintf(w, "%5d %10d %10.2f %s\n", c.Cycle, c.SyntheticEpisodes, c.SyntheticReward, aurora.Green(cell))
		} else {
			fmt.Fprintf(w, "%5d %10d %10.2f %s\n", c.Cycle, c.SyntheticEpisodes, c.SyntheticReward, aurora.Red(cell))
		}
		prev = c.MeanValidation
	}
}
