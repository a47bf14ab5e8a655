package checkpoint

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type snapshot struct {
	W []float64 `json:"w"`
	N int       `json:"n"`
}

func TestNames(t *testing.T) {
	assert.Equal(t, "dqn_cartpole_weights.json", WeightsName("cartpole"))
	assert.Equal(t, "dqn_cartpole_weights_250000.json", StepWeightsName("cartpole", 250000))
	assert.Equal(t, "dqn_cartpole_log.json", LogName("cartpole"))
	assert.Equal(t, "agentID2_scenario_spread", AgentDir(2, "spread"))
	assert.Equal(t, "agentID0", AgentDir(0, ""))
	assert.Equal(t, "scenario_namespread", ScenarioDir("spread"))
	assert.Equal(t, filepath.Join("out", "run", "agentID1"), RunDir("out", "run", AgentDir(1, "")))
}

func testStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	in := snapshot{W: []float64{1.5, -2}, N: 3}

	var out snapshot
	err := s.Load(ctx, "run/model.json", &out)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Save(ctx, "run/model.json", in, false))
	require.NoError(t, s.Load(ctx, "run/model.json", &out))
	assert.Equal(t, in, out)

	err = s.Save(ctx, "run/model.json", snapshot{N: 9}, false)
	assert.ErrorIs(t, err, ErrExists)

	require.NoError(t, s.Save(ctx, "run/model.json", snapshot{N: 9}, true))
	require.NoError(t, s.Load(ctx, "run/model.json", &out))
	assert.Equal(t, 9, out.N)
}

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	testStore(t, NewFileStore(dir))
	_, err := os.Stat(filepath.Join(dir, "run", "model.json"))
	assert.NoError(t, err)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedisStore(RedisOptions{URL: fmt.Sprintf("redis://%s", mr.Addr())})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	testStore(t, s)
	assert.True(t, mr.Exists("worldmodel:run/model.json"))
}

func TestRedisStoreConnectErrors(t *testing.T) {
	_, err := NewRedisStore(RedisOptions{URL: "invalid://url"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse Redis URL")
}

func TestJSONLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", LogName("cartpole"))
	l, err := OpenJSONLog(path)
	require.NoError(t, err)
	require.NoError(t, l.Write(map[string]any{"step": 1, "loss": 0.5}))
	require.NoError(t, l.Write(map[string]any{"step": 2, "loss": 0.25}))
	require.NoError(t, l.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var steps []float64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &entry))
		steps = append(steps, entry["step"].(float64))
	}
	assert.Equal(t, []float64{1, 2}, steps)

	var nilLog *JSONLog
	assert.NoError(t, nilLog.Write("dropped"))
	assert.NoError(t, nilLog.Close())
}
