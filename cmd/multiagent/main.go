package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"

	"worldmodel-rl/internal/checkpoint"
	"worldmodel-rl/internal/config"
	"worldmodel-rl/internal/multiagent"
	"worldmodel-rl/internal/particles"
	"worldmodel-rl/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	scenario := flag.String("scenario", "", "scenario name (default from config)")
	rounds := flag.Int("rounds", -1, "fill/train rounds (default from config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *scenario != "" {
		cfg.MultiAgent.Orchestrator.Scenario = *scenario
	}
	if *rounds >= 0 {
		cfg.MultiAgent.Rounds = *rounds
	}
	level, _ := cfg.Level()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg config.Config) error {
	ma := cfg.MultiAgent
	ma.Orchestrator.RunID = uuid.NewString()
	logger = logger.With("run", ma.Orchestrator.RunID, "scenario", ma.Orchestrator.Scenario)

	world, err := particles.NewEnv(ma.Agents, ma.MaxSteps, rand.New(rand.NewSource(cfg.Seed)))
	if err != nil {
		return err
	}
	metrics, err := telemetry.New(otel.GetMeterProvider().Meter("worldmodel-rl"))
	if err != nil {
		return err
	}

	var store checkpoint.Store = checkpoint.NewFileStore(cfg.OutputDir)
	if cfg.RedisURL != "" {
		rs, err := checkpoint.NewRedisStore(checkpoint.RedisOptions{URL: cfg.RedisURL})
		if err != nil {
			return err
		}
		defer rs.Close()
		store = rs
	}

	o, err := multiagent.New(world, ma.Orchestrator, store, logger, metrics)
	if err != nil {
		return err
	}
	logger.Info("starting", "agents", ma.Agents, "rounds", ma.Rounds, "mem_size", ma.Orchestrator.Learner.MemSize)
	results, err := o.Run(ctx, ma.Rounds)
	if err != nil {
		return err
	}
	for _, r := range results {
		logger.Info("round summary", "round", r.Round, "steps", r.Fill.Steps, "reward", r.Fill.Reward)
	}
	return nil
}
