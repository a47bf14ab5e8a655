package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worldmodel-rl/internal/worldmodel"
)

func TestLossChart(t *testing.T) {
	reports := []worldmodel.FitReport{
		{Epochs: []worldmodel.EpochReport{{Train: worldmodel.Loss{Next: 3, Reward: 2, Terminal: 1}}}},
		{Epochs: []worldmodel.EpochReport{
			{Train: worldmodel.Loss{Next: 9}},
			{Train: worldmodel.Loss{Next: 1, Reward: 0.5, Terminal: 0.25}},
		}},
	}
	c := LossChart("model", reports)
	require.Len(t, c.Series, 3)
	assert.Equal(t, []float64{3, 1}, c.Series[0].Values)
	assert.Equal(t, []float64{2, 0.5}, c.Series[1].Values)
	assert.Equal(t, []float64{1, 0.25}, c.Series[2].Values)
	assert.Equal(t, 2, c.points())
}

func TestRender(t *testing.T) {
	var buf bytes.Buffer
	err := Render(&buf,
		Chart{Title: "transition model loss", Series: []Series{{Name: "next", Values: []float64{1, 0.5}}}},
		Chart{Title: "validation reward", Series: []Series{{Name: "mean", Values: []float64{10, 20, 30}}}},
	)
	require.NoError(t, err)
	html := buf.String()
	assert.Contains(t, html, "<html")
	assert.Contains(t, html, "transition model loss")
	assert.Contains(t, html, "validation reward")
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "report.html")
	require.NoError(t, WriteFile(path, Chart{Title: "empty"}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "empty")
}
