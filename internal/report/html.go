package report

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/circuit.report/internal/units"
)

// maxChartPoints caps the samples per series so long laps stay responsive.
const maxChartPoints = 2000

// HTMLReport renders a go-echarts page to out: a speed trace of every lap
// against the first lap's optimal profile, a track map with corner
// markers, and per-corner time loss for each timed lap.
func HTMLReport(out io.Writer, laps []Lap, speedUnits string) error {
	if len(laps) == 0 || laps[0].Analysis == nil || laps[0].Analysis.Optimal == nil {
		return errors.New("html report: no laps")
	}

	page := components.NewPage()
	page.AddCharts(speedChart(laps, speedUnits))
	if p := laps[0].Analysis.Profile; p.Len() > 0 && len(p.X) == p.Len() && len(p.Y) == p.Len() {
		page.AddCharts(trackMap(laps[0]))
	}
	if bar := lossChart(laps); bar != nil {
		page.AddCharts(bar)
	}
	if err := page.Render(out); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	return nil
}

// WriteHTML renders the HTML report to path.
func (w *Writer) WriteHTML(laps []Lap, path string) error {
	f, err := w.FS.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := HTMLReport(f, laps, w.Units); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func speedChart(laps []Lap, speedUnits string) *charts.Line {
	ref := laps[0].Analysis
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Speed", Width: "1200px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Speed vs Distance",
			Subtitle: fmt.Sprintf("reference=%s optimal lap=%.3fs", ref.LapID, ref.Optimal.LapTime),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "Distance (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: fmt.Sprintf("Speed (%s)", units.Label(speedUnits))}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)

	line.AddSeries("optimal", lineData(ref.Optimal.Distance, ref.Optimal.Speed, speedUnits))
	for _, lap := range laps {
		if lap.Trace == nil || lap.Analysis == nil {
			continue
		}
		line.AddSeries(lap.Analysis.LapID, lineData(lap.Trace.Distance, lap.Trace.Speed, speedUnits))
	}
	return line
}

func lineData(x, speeds []float64, speedUnits string) []opts.LineData {
	n := min(len(x), len(speeds))
	st := stride(n)
	data := make([]opts.LineData, 0, n/st+1)
	for i := 0; i < n; i += st {
		data = append(data, opts.LineData{Value: []interface{}{x[i], round(units.ConvertSpeed(speeds[i], speedUnits))}})
	}
	return data
}

func trackMap(lap Lap) *charts.Scatter {
	res := lap.Analysis
	p := res.Profile
	n := p.Len()
	st := stride(n)

	path := make([]opts.ScatterData, 0, n/st+1)
	var extent float64
	for i := 0; i < n; i += st {
		path = append(path, opts.ScatterData{Value: []interface{}{round(p.X[i]), round(p.Y[i])}})
		extent = math.Max(extent, math.Max(math.Abs(p.X[i]), math.Abs(p.Y[i])))
	}
	pad := math.Ceil(extent*1.1/10) * 10

	corners := make([]opts.ScatterData, 0, len(res.Corners))
	for _, c := range res.Corners {
		i := profileIndex(p.Distance, c.GeometricApex)
		corners = append(corners, opts.ScatterData{
			Name:  fmt.Sprintf("T%d", c.Number),
			Value: []interface{}{round(p.X[i]), round(p.Y[i])},
		})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Track", Width: "800px", Height: "800px"}),
		charts.WithTitleOpts(opts.Title{Title: "Track Map", Subtitle: fmt.Sprintf("lap=%s corners=%d", res.LapID, len(res.Corners))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("path", path, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))
	scatter.AddSeries("corners", corners,
		charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 12}),
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top", Formatter: "{b}"}),
	)
	return scatter
}

// lossChart returns nil when no lap carries per-corner time loss.
func lossChart(laps []Lap) *charts.Bar {
	ref := laps[0].Analysis
	if len(ref.CornerTimes) == 0 {
		return nil
	}
	labels := make([]string, len(ref.CornerTimes))
	for i, ct := range ref.CornerTimes {
		labels[i] = fmt.Sprintf("T%d", ct.Number)
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Time loss", Width: "1200px", Height: "400px"}),
		charts.WithTitleOpts(opts.Title{Title: "Time Lost per Corner", Subtitle: "actual - optimal (s)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(labels)

	series := 0
	for _, lap := range laps {
		if lap.Analysis == nil || len(lap.Analysis.CornerTimes) != len(labels) {
			continue
		}
		data := make([]opts.BarData, len(labels))
		timed := false
		for i, ct := range lap.Analysis.CornerTimes {
			if ct.Loss != nil {
				data[i] = opts.BarData{Value: round(*ct.Loss)}
				timed = true
			}
		}
		if timed {
			bar.AddSeries(lap.Analysis.LapID, data)
			series++
		}
	}
	if series == 0 {
		return nil
	}
	return bar
}

func stride(n int) int {
	return max(1, (n+maxChartPoints-1)/maxChartPoints)
}

func profileIndex(distance []float64, d float64) int {
	for i, v := range distance {
		if v >= d {
			return i
		}
	}
	return len(distance) - 1
}

func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}
