package viz

import (
	"fmt"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/robustflow/internal/dynamo"
	"github.com/san-kum/robustflow/internal/flow"
)

// PlotOptions sizes the trajectory charts.
type PlotOptions struct {
	Width  int
	Height int
}

func DefaultPlotOptions() PlotOptions {
	return PlotOptions{Width: 70, Height: 8}
}

// PlotTrajectory charts each block of the state, x, λ, u and v, against the
// sample index.
func PlotTrajectory(res *dynamo.Result, l flow.Layout, opts PlotOptions) string {
	if res == nil || len(res.States) < 2 {
		return ""
	}
	blocks := []struct {
		name  string
		first int
		size  int
	}{
		{"x", 0, l.N},
		{"λ", l.Lambda(), 1},
		{"u", l.N + 1, l.P},
		{"v", l.N + 1 + l.P, l.M},
	}

	var s strings.Builder
	for _, b := range blocks {
		if b.size == 0 {
			continue
		}
		series := make([][]float64, b.size)
		for i := range series {
			series[i] = finiteOnly(res.Component(b.first + i))
		}
		caption := fmt.Sprintf("%s over t ∈ [%g, %g]", b.name, res.Times[0], res.Times[len(res.Times)-1])
		chart := asciigraph.PlotMany(series,
			asciigraph.Width(opts.Width),
			asciigraph.Height(opts.Height),
			asciigraph.SeriesColors(seriesColors(b.size)...),
			asciigraph.Caption(caption))
		s.WriteString(graphStyle().Render(chart) + "\n\n")
	}
	return s.String()
}

// PlotSeries charts one series with a caption.
func PlotSeries(values []float64, caption string, opts PlotOptions) string {
	if len(values) < 2 {
		return ""
	}
	return asciigraph.Plot(finiteOnly(values),
		asciigraph.Width(opts.Width),
		asciigraph.Height(opts.Height),
		asciigraph.Caption(caption))
}

var palette = []asciigraph.AnsiColor{
	asciigraph.Cyan,
	asciigraph.Yellow,
	asciigraph.Magenta,
	asciigraph.Green,
	asciigraph.Red,
	asciigraph.Blue,
}

func seriesColors(n int) []asciigraph.AnsiColor {
	out := make([]asciigraph.AnsiColor, n)
	for i := range out {
		out[i] = palette[i%len(palette)]
	}
	return out
}

// finiteOnly replaces non-finite values with the previous finite one.
func finiteOnly(v []float64) []float64 {
	out := make([]float64, len(v))
	last := 0.0
	for i, x := range v {
		if finite(x) {
			last = x
		}
		out[i] = last
	}
	return out
}
