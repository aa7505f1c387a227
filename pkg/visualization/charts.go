package visualization

import (
	"fmt"
	"io"
	"math"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"rockct3d/pkg/metrics"
	"rockct3d/pkg/threshold"
)

// MetricsChart renders the SNR of every filter as a bar chart. An infinite
// SNR is drawn at the height of the largest finite one and labelled "inf".
func MetricsChart(records []metrics.Record, w io.Writer) error {
	if len(records) == 0 {
		return fmt.Errorf("no metric records to chart")
	}

	top, bottom := math.Inf(-1), 0.0
	for _, r := range records {
		if !math.IsInf(r.SNR, 0) && !math.IsNaN(r.SNR) {
			top = math.Max(top, r.SNR)
			bottom = math.Min(bottom, r.SNR)
		}
	}
	if math.IsInf(top, -1) {
		top = 1
	}

	bars := make([]chart.Value, 0, len(records))
	for _, r := range records {
		value, label := r.SNR, fmt.Sprintf("%s %.1f", r.Filter, r.SNR)
		switch {
		case math.IsInf(r.SNR, 1):
			value, label = top, r.Filter+" inf"
		case math.IsInf(r.SNR, -1), math.IsNaN(r.SNR):
			value, label = bottom, r.Filter+" n/a"
		}
		bars = append(bars, chart.Value{Value: value, Label: label})
	}

	if top <= bottom {
		top = bottom + 1
	}

	graph := chart.BarChart{
		Title:  "SNR by filter (dB)",
		Width:  max(512, 110*len(bars)+100),
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40},
		},
		BarWidth:   60,
		BarSpacing: 40,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: bottom, Max: top + 0.05*(top-bottom)},
		},
		Bars: bars,
	}

	return graph.Render(chart.PNG, w)
}

// Marker is a named vertical line on the histogram chart
type Marker struct {
	Name  string
	Value float64
}

// HistogramChart renders the intensity histogram of data with one vertical
// line per finite marker
func HistogramChart(data []float64, bins int, markers []Marker, w io.Writer) error {
	h, err := threshold.NewHistogram(data, bins)
	if err != nil {
		return err
	}

	peak := 0.0
	for _, c := range h.Counts {
		peak = math.Max(peak, c)
	}

	series := []chart.Series{
		chart.ContinuousSeries{
			Name:    "histogram",
			XValues: h.Centers,
			YValues: h.Counts,
			Style: chart.Style{
				StrokeColor: drawing.ColorFromHex("4a4a4a"),
				FillColor:   drawing.ColorFromHex("4a4a4a").WithAlpha(64),
			},
		},
	}

	palette := []string{"d62728", "1f77b4", "2ca02c", "ff7f0e"}
	for i, m := range markers {
		if math.IsNaN(m.Value) || math.IsInf(m.Value, 0) {
			continue
		}
		series = append(series, chart.ContinuousSeries{
			Name:    fmt.Sprintf("%s = %.4g", m.Name, m.Value),
			XValues: []float64{m.Value, m.Value},
			YValues: []float64{0, peak},
			Style: chart.Style{
				StrokeColor: drawing.ColorFromHex(palette[i%len(palette)]),
				StrokeWidth: 2,
			},
		})
	}

	graph := chart.Chart{
		Width:  800,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 20, Left: 20},
		},
		XAxis: chart.XAxis{
			Name: "intensity",
		},
		YAxis: chart.YAxis{
			Name: "voxels",
		},
		Series: series,
	}
	if h.Degenerate() {
		graph.XAxis.Range = &chart.ContinuousRange{Min: h.Min - 1, Max: h.Max + 1}
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return graph.Render(chart.PNG, w)
}
