// Package report renders training curves as a standalone HTML page.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"worldmodel-rl/internal/worldmodel"
)

type Series struct {
	Name   string
	Values []float64
}

// Chart is one line chart. Every series shares the x axis 1..n.
type Chart struct {
	Title  string
	Series []Series
}

func (c Chart) points() int {
	n := 0
	for _, s := range c.Series {
		n = max(n, len(s.Values))
	}
	return n
}

func (c Chart) line() *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: c.Title}),
		charts.WithInitializationOpts(opts.Initialization{Theme: "shine"}),
	)
	xs := make([]string, c.points())
	for i := range xs {
		xs[i] = fmt.Sprintf("%d", i+1)
	}
	line.SetXAxis(xs)
	for _, s := range c.Series {
		items := make([]opts.LineData, 0, len(s.Values))
		for _, v := range s.Values {
			items = append(items, opts.LineData{Value: v})
		}
		line.AddSeries(s.Name, items)
	}
	return line
}

// Render writes all charts as one page.
func Render(w io.Writer, cs ...Chart) error {
	page := components.NewPage()
	for _, c := range cs {
		page.AddCharts(c.line())
	}
	return page.Render(w)
}

func WriteFile(path string, cs ...Chart) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := Render(f, cs...); err != nil {
		f.Close()
		return fmt.Errorf("render report: %w", err)
	}
	return f.Close()
}

// LossChart plots the final training loss of every pass, one series per
// head.
func LossChart(title string, reports []worldmodel.FitReport) Chart {
	next := Series{Name: "next"}
	reward := Series{Name: "reward"}
	terminal := Series{Name: "terminal"}
	for _, r := range reports {
		l := r.Final()
		next.Values = append(next.Values, l.Next)
		reward.Values = append(reward.Values, l.Reward)
		terminal.Values = append(terminal.Values, l.Terminal)
	}
	return Chart{Title: title, Series: []Series{next, reward, terminal}}
}
