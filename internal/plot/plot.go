// Package plot renders numeric series as PNG line charts.
package plot

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

var (
	// ErrTooFewPoints is returned when a series has fewer than two values.
	ErrTooFewPoints = errors.New("plot: a series needs at least two points")

	// ErrNonFinite is returned when a series holds NaN or Inf, or when a
	// logarithmic axis is asked to show a non-positive value.
	ErrNonFinite = errors.New("plot: series values must be finite")
)

// Series is one line of a chart. X values are the 1-based indices.
type Series struct {
	Name   string
	Values []float64
}

// Options controls the chart frame.
type Options struct {
	Title  string
	XLabel string
	YLabel string
	Width  int
	Height int
	// Log10 plots log10 of every value.
	Log10 bool
}

var palette = []drawing.Color{
	chart.ColorBlue,
	chart.ColorRed,
	chart.ColorGreen,
	{R: 255, G: 165, B: 0, A: 255},
}

// Line renders the series as a PNG into w.
func Line(w io.Writer, opts Options, series ...Series) error {
	if len(series) == 0 {
		return ErrTooFewPoints
	}
	if opts.Width <= 0 {
		opts.Width = 800
	}
	if opts.Height <= 0 {
		opts.Height = 400
	}

	lines := make([]chart.Series, 0, len(series))
	for i, s := range series {
		ys, err := values(s, opts.Log10)
		if err != nil {
			return err
		}
		xs := make([]float64, len(ys))
		for k := range xs {
			xs[k] = float64(k + 1)
		}
		lines = append(lines, chart.ContinuousSeries{
			Name:    s.Name,
			XValues: xs,
			YValues: ys,
			Style:   chart.Style{StrokeColor: palette[i%len(palette)], StrokeWidth: 2.0},
		})
	}

	yLabel := opts.YLabel
	if opts.Log10 && yLabel != "" {
		yLabel = "log10 " + yLabel
	}
	graph := chart.Chart{
		Title:  opts.Title,
		Width:  opts.Width,
		Height: opts.Height,
		XAxis: chart.XAxis{
			Name:  opts.XLabel,
			Style: chart.Style{FontSize: 10.0},
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%d", int(v.(float64)))
			},
		},
		YAxis: chart.YAxis{
			Name:  yLabel,
			Style: chart.Style{FontSize: 10.0},
		},
		Series: lines,
	}
	if len(lines) > 1 {
		graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	}
	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("plot: rendering: %w", err)
	}
	return nil
}

// Xi renders a coherence series.
func Xi(w io.Writer, xi []float64) error {
	return Line(w, Options{Title: "Phase coherence", XLabel: "step", YLabel: "xi"}, Series{Name: "xi", Values: xi})
}

// Convergence renders a truth-error history on a log scale.
func Convergence(w io.Writer, hist []float64) error {
	return Line(w, Options{Title: "Convergence", XLabel: "sweep", YLabel: "relative error", Log10: true}, Series{Name: "rel_to_truth", Values: hist})
}

func values(s Series, log10 bool) ([]float64, error) {
	if len(s.Values) < 2 {
		return nil, fmt.Errorf("%w: %q has %d", ErrTooFewPoints, s.Name, len(s.Values))
	}
	out := make([]float64, len(s.Values))
	for k, v := range s.Values {
		if log10 {
			if v <= 0 {
				return nil, fmt.Errorf("%w: %q[%d] = %v on a log axis", ErrNonFinite, s.Name, k, v)
			}
			v = math.Log10(v)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %q[%d] = %v", ErrNonFinite, s.Name, k, v)
		}
		out[k] = v
	}
	return out, nil
}
