package pipeline

import (
	"context"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worldmodel-rl/internal/checkpoint"
	"worldmodel-rl/internal/dqn"
	"worldmodel-rl/internal/env"
	"worldmodel-rl/internal/telemetry"
	"worldmodel-rl/internal/worldmodel"
)

func smallConfig() Config {
	cfg := DefaultConfig()
	cfg.Seed = 3
	cfg.BufferCapacity = 300
	cfg.LatentDim = 6
	cfg.SequenceLength = 3
	cfg.ExamplesPerEpoch = 64
	cfg.Passes = 2
	cfg.Model.Hidden = 16
	cfg.Model.Epochs = 1
	cfg.MaxEpisodeSteps = 30
	cfg.PolicySteps = 200
	cfg.Cycles = 2
	cfg.ValidationEpisodes = 2
	cfg.DQN = dqn.DefaultConfig(200)
	cfg.DQN.Warmup = 20
	cfg.DQN.BatchSize = 16
	cfg.DQN.AnnealSteps = 100
	return cfg
}

func TestMakeEnv(t *testing.T) {
	e, err := MakeEnv("cartpole", rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, env.Discrete{N: 2}, e.ActionSpace())

	_, err = MakeEnv("pong", nil)
	assert.ErrorIs(t, err, ErrUnknownEnv)
	assert.Equal(t, []string{"cartpole"}, EnvNames())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.CollectPolicy = "greedy"
	cfg.Cycles = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collect policy")
	assert.Contains(t, err.Error(), "per cycle")

	_, err = New(cfg, t.TempDir())
	assert.Error(t, err)
}

type fakeLearner struct {
	fitSteps []int
}

func (f *fakeLearner) Fit(_ context.Context, _ env.Env, steps int) ([]dqn.Episode, error) {
	f.fitSteps = append(f.fitSteps, steps)
	return []dqn.Episode{{Reward: 2}, {Reward: 4}}, nil
}

func (f *fakeLearner) Test(context.Context, env.Env, int) ([]float64, error) {
	return []float64{1, 2, 3}, nil
}

func (f *fakeLearner) SaveWeights(string, bool) error { return nil }
func (f *fakeLearner) LoadWeights(string) error       { return nil }

func TestCyclesSplitPolicySteps(t *testing.T) {
	cfg := smallConfig()
	cfg.PolicySteps = 90
	cfg.Cycles = 3
	p, err := New(cfg, t.TempDir())
	require.NoError(t, err)

	learner := &fakeLearner{}
	results, err := p.cycles(context.Background(), learner, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{30, 30, 30}, learner.fitSteps)
	require.Len(t, results, 3)
	for i, r := range results {
		assert.Equal(t, i+1, r.Cycle)
		assert.Equal(t, 2, r.SyntheticEpisodes)
		assert.Equal(t, 3.0, r.SyntheticReward)
		assert.Equal(t, 2.0, r.MeanValidation)
	}
}

func TestTrainThenTest(t *testing.T) {
	dir := t.TempDir()
	p, err := New(smallConfig(), dir)
	require.NoError(t, err)
	p.Metrics = telemetry.Noop()

	res, err := p.Train(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 300, res.Collect.Transitions)
	assert.Len(t, res.ModelReports, 2)
	require.Len(t, res.Cycles, 2)
	for _, c := range res.Cycles {
		assert.Len(t, c.Validation, 2)
		assert.Greater(t, c.SyntheticEpisodes, 0)
	}

	for _, name := range []string{
		ModelKey,
		ReportName,
		checkpoint.WeightsName("cartpole"),
		checkpoint.LogName("cartpole"),
	} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	var w worldmodel.Weights
	require.NoError(t, p.Store.Load(context.Background(), ModelKey, &w))
	assert.Equal(t, 6, w.Config.LatentDim)
	assert.Equal(t, 3, w.Config.SequenceLength)

	tr, err := p.Test(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, tr.Rewards, TestEpisodes)
	for _, r := range tr.Rewards {
		assert.Greater(t, r, 0.0)
	}
	// the restored model is scored on transitions it never trained on
	require.NotNil(t, tr.Model)
	assert.Greater(t, tr.Model.Total(), 0.0)
	assert.False(t, math.IsNaN(tr.Model.Total()))

	// without a saved model only the policy is tested
	require.NoError(t, os.Remove(filepath.Join(dir, ModelKey)))
	tr, err = p.Test(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, tr.Rewards, TestEpisodes)
	assert.Nil(t, tr.Model)
}

func TestTestWithoutWeights(t *testing.T) {
	p, err := New(smallConfig(), t.TempDir())
	require.NoError(t, err)
	_, err = p.Test(context.Background(), "")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestSoftmaxCollection(t *testing.T) {
	cfg := smallConfig()
	cfg.CollectPolicy = "softmax"
	cfg.Cycles = 1
	cfg.PolicySteps = 50
	p, err := New(cfg, t.TempDir())
	require.NoError(t, err)
	res, err := p.Train(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 300, res.Collect.Transitions)
}
