// Package report renders lap analyses as PNG charts (gonum/plot) and an
// interactive HTML page (go-echarts). All output goes through an
// fsutil.FileSystem.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/circuit.report/internal/circuit/l1trace"
	"github.com/banshee-data/circuit.report/internal/circuit/l5pace"
	"github.com/banshee-data/circuit.report/internal/circuit/pipeline"
	"github.com/banshee-data/circuit.report/internal/fsutil"
	"github.com/banshee-data/circuit.report/internal/security"
	"github.com/banshee-data/circuit.report/internal/units"
)

var (
	actualColor   = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	optimalColor  = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	ceilingColor  = color.RGBA{R: 127, G: 127, B: 127, A: 255}
	brakeColor    = color.RGBA{R: 255, G: 127, B: 14, A: 255}
	throttleColor = color.RGBA{R: 44, G: 160, B: 44, A: 255}
)

const (
	plotWidth  = 14 * vg.Inch
	plotHeight = 6 * vg.Inch
)

// Lap pairs an analysis with the trace it was computed from.
type Lap struct {
	Analysis *pipeline.LapAnalysis
	Trace    *l1trace.LapTrace
}

// Writer writes report files in the configured speed unit.
type Writer struct {
	FS    fsutil.FileSystem
	Units string
}

// SpeedPlot writes a PNG of actual speed, optimal speed and the cornering
// ceiling against distance, with the optimal brake and throttle points.
func (w *Writer) SpeedPlot(lap Lap, path string) error {
	res := lap.Analysis
	if res == nil || res.Optimal == nil {
		return errors.New("speed plot: missing analysis")
	}
	label := units.Label(w.Units)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - Speed vs Optimal", res.LapID)
	p.X.Label.Text = "Distance (m)"
	p.Y.Label.Text = fmt.Sprintf("Speed (%s)", label)

	opt := res.Optimal
	ceiling := w.series(opt.Distance, opt.Ceiling)
	if err := addLine(p, "ceiling", ceiling, ceilingColor, []vg.Length{vg.Points(4), vg.Points(3)}); err != nil {
		return err
	}
	if err := addLine(p, "optimal", w.series(opt.Distance, opt.Speed), optimalColor, nil); err != nil {
		return err
	}
	if lap.Trace != nil && lap.Trace.Len() > 0 {
		if err := addLine(p, "actual", w.series(lap.Trace.Distance, lap.Trace.Speed), actualColor, nil); err != nil {
			return err
		}
	}

	brakes, throttles := w.transitionPoints(opt)
	if err := addMarkers(p, "brake", brakes, brakeColor, draw.TriangleGlyph{}); err != nil {
		return err
	}
	if err := addMarkers(p, "throttle", throttles, throttleColor, draw.CircleGlyph{}); err != nil {
		return err
	}

	configureLegend(p)
	return w.savePNG(p, path)
}

// CurvaturePlot writes a PNG of signed curvature against distance with
// markers at each corner's entry and exit.
func (w *Writer) CurvaturePlot(lap Lap, path string) error {
	res := lap.Analysis
	if res == nil || res.Profile == nil {
		return errors.New("curvature plot: missing geometry")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - Curvature", res.LapID)
	p.X.Label.Text = "Distance (m)"
	p.Y.Label.Text = "Curvature (1/m)"

	pts := make(plotter.XYs, res.Profile.Len())
	for i := range pts {
		pts[i] = plotter.XY{X: res.Profile.Distance[i], Y: res.Profile.Curvature[i]}
	}
	if err := addLine(p, "curvature", pts, actualColor, nil); err != nil {
		return err
	}

	var entries, exits plotter.XYs
	for _, c := range res.Corners {
		entries = append(entries, plotter.XY{X: c.Entry, Y: 0})
		exits = append(exits, plotter.XY{X: c.Exit, Y: 0})
	}
	if err := addMarkers(p, "corner entry", entries, brakeColor, draw.TriangleGlyph{}); err != nil {
		return err
	}
	if err := addMarkers(p, "corner exit", exits, throttleColor, draw.TriangleGlyph{}); err != nil {
		return err
	}

	configureLegend(p)
	return w.savePNG(p, path)
}

// WritePlots writes the speed and curvature plots for every lap into dir
// and returns the written paths. File names are derived from sanitised lap
// IDs.
func (w *Writer) WritePlots(laps []Lap, dir string) ([]string, error) {
	if err := w.FS.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating plot dir: %w", err)
	}
	var written []string
	for _, lap := range laps {
		if lap.Analysis == nil {
			continue
		}
		stem := security.SanitizeFilename(lap.Analysis.LapID)
		speed := filepath.Join(dir, stem+"_speed.png")
		if err := w.SpeedPlot(lap, speed); err != nil {
			return written, fmt.Errorf("lap %s: %w", lap.Analysis.LapID, err)
		}
		curv := filepath.Join(dir, stem+"_curvature.png")
		if err := w.CurvaturePlot(lap, curv); err != nil {
			return written, fmt.Errorf("lap %s: %w", lap.Analysis.LapID, err)
		}
		written = append(written, speed, curv)
	}
	return written, nil
}

func (w *Writer) series(x, speeds []float64) plotter.XYs {
	n := min(len(x), len(speeds))
	pts := make(plotter.XYs, n)
	for i := range n {
		pts[i] = plotter.XY{X: x[i], Y: units.ConvertSpeed(speeds[i], w.Units)}
	}
	return pts
}

func (w *Writer) transitionPoints(opt *l5pace.OptimalProfile) (brakes, throttles plotter.XYs) {
	for _, tr := range opt.Transitions {
		pt := plotter.XY{X: tr.Distance, Y: units.ConvertSpeed(opt.SpeedAt(tr.Distance), w.Units)}
		if tr.Kind == l5pace.TransitionBrake {
			brakes = append(brakes, pt)
		} else {
			throttles = append(throttles, pt)
		}
	}
	return brakes, throttles
}

func addLine(p *plot.Plot, name string, pts plotter.XYs, c color.Color, dashes []vg.Length) error {
	if len(pts) == 0 {
		return nil
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("%s line: %w", name, err)
	}
	line.Color = c
	line.Width = vg.Points(1)
	line.Dashes = dashes
	p.Add(line)
	p.Legend.Add(name, line)
	return nil
}

func addMarkers(p *plot.Plot, name string, pts plotter.XYs, c color.Color, shape draw.GlyphDrawer) error {
	if len(pts) == 0 {
		return nil
	}
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("%s markers: %w", name, err)
	}
	sc.GlyphStyle.Color = c
	sc.GlyphStyle.Shape = shape
	sc.GlyphStyle.Radius = vg.Points(4)
	p.Add(sc)
	p.Legend.Add(name, sc)
	return nil
}

func configureLegend(p *plot.Plot) {
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
}

func (w *Writer) savePNG(p *plot.Plot, path string) error {
	wt, err := p.WriterTo(plotWidth, plotHeight, "png")
	if err != nil {
		return fmt.Errorf("rendering %s: %w", path, err)
	}
	f, err := w.FS.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}
