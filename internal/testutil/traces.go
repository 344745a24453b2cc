package testutil

import (
	"math"

	"github.com/banshee-data/circuit.report/internal/circuit/l1trace"
)

const (
	gravity   = 9.80665
	originLat = 52.0732 // Silverstone-ish
	originLon = -1.0156
)

// Section is one constant-curvature piece of a synthetic track. Positive
// curvature turns left.
type Section struct {
	Length    float64 // m
	Curvature float64 // 1/m
}

// TraceOptions controls which channels a synthetic trace carries and the
// driver model used for its speed channel.
type TraceOptions struct {
	WithGPS     bool
	WithHeading bool
	TopSpeed    float64 // m/s
	LateralG    float64 // cornering limit used for the speed channel
	AccelG      float64
	DecelG      float64
}

// DefaultTraceOptions returns options for a trace with every channel.
func DefaultTraceOptions() TraceOptions {
	return TraceOptions{
		WithGPS:     true,
		WithHeading: true,
		TopSpeed:    50,
		LateralG:    1.0,
		AccelG:      0.4,
		DecelG:      0.9,
	}
}

// BuildTrace integrates sections into a uniform-step lap trace. The path
// starts at the origin heading east.
func BuildTrace(sections []Section, step float64, opts TraceOptions) *l1trace.LapTrace {
	var total float64
	for _, s := range sections {
		total += s.Length
	}
	n := int(math.Round(total/step)) + 1

	dist := make([]float64, n)
	curv := make([]float64, n)
	for i := range dist {
		dist[i] = float64(i) * step
		curv[i] = curvatureAt(sections, dist[i])
	}

	psi := make([]float64, n) // mathematical heading, CCW from east
	x := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		psi[i] = headingAt(sections, dist[i])
		if i == 0 {
			continue
		}
		// Simpson's rule on the exact heading.
		a := psi[i-1]
		m := headingAt(sections, 0.5*(dist[i-1]+dist[i]))
		b := psi[i]
		x[i] = x[i-1] + step/6*(math.Cos(a)+4*math.Cos(m)+math.Cos(b))
		y[i] = y[i-1] + step/6*(math.Sin(a)+4*math.Sin(m)+math.Sin(b))
	}
	return assemble(dist, curv, psi, x, y, opts)
}

// headingAt integrates the piecewise-constant curvature from 0 to d.
func headingAt(sections []Section, d float64) float64 {
	var start, psi float64
	for _, s := range sections {
		if d <= start {
			break
		}
		covered := math.Min(d, start+s.Length) - start
		psi += s.Curvature * covered
		start += s.Length
	}
	return psi
}

// CircleTrace returns n samples on a circle of the given radius at the
// given spacing, turning left, with exact positions.
func CircleTrace(n int, step, radius float64, opts TraceOptions) *l1trace.LapTrace {
	dist := make([]float64, n)
	curv := make([]float64, n)
	psi := make([]float64, n)
	x := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		s := float64(i) * step
		dist[i] = s
		curv[i] = 1 / radius
		psi[i] = s / radius
		x[i] = radius * math.Sin(s/radius)
		y[i] = radius * (1 - math.Cos(s/radius))
	}
	return assemble(dist, curv, psi, x, y, opts)
}

// StraightTrace returns a straight line heading east.
func StraightTrace(length, step float64, opts TraceOptions) *l1trace.LapTrace {
	return BuildTrace([]Section{{Length: length}}, step, opts)
}

// OvalSections returns a closed stadium: two straights joined by two
// left-hand semicircles of the given radius, starting mid-straight.
func OvalSections(straight, radius float64) []Section {
	half := math.Pi * radius
	return []Section{
		{Length: straight / 2},
		{Length: half, Curvature: 1 / radius},
		{Length: straight},
		{Length: half, Curvature: 1 / radius},
		{Length: straight / 2},
	}
}

// CornerAtStartSections returns a closed stadium whose first semicircle
// starts at distance 0, so the lap begins inside a corner.
func CornerAtStartSections(straight, radius float64) []Section {
	half := math.Pi * radius
	return []Section{
		{Length: half, Curvature: 1 / radius},
		{Length: straight},
		{Length: half, Curvature: 1 / radius},
		{Length: straight},
	}
}

// SBendSections returns a straight, a left arc, an immediate right arc
// and a straight.
func SBendSections(lead, arc, radius float64) []Section {
	return []Section{
		{Length: lead},
		{Length: arc, Curvature: 1 / radius},
		{Length: arc, Curvature: -1 / radius},
		{Length: lead},
	}
}

// CurvatureOf returns the piecewise curvature of sections at distance d.
func CurvatureOf(sections []Section, d float64) float64 {
	return curvatureAt(sections, d)
}

func curvatureAt(sections []Section, d float64) float64 {
	var start float64
	for _, s := range sections {
		if d < start+s.Length {
			return s.Curvature
		}
		start += s.Length
	}
	if len(sections) == 0 {
		return 0
	}
	return sections[len(sections)-1].Curvature
}

func assemble(dist, curv, psi, x, y []float64, opts TraceOptions) *l1trace.LapTrace {
	n := len(dist)
	t := &l1trace.LapTrace{Distance: dist}

	if opts.WithHeading {
		t.Heading = make([]float64, n)
		for i := range psi {
			compass := 90 - psi[i]*180/math.Pi
			compass = math.Mod(compass, 360)
			if compass < 0 {
				compass += 360
			}
			t.Heading[i] = compass
		}
	}
	if opts.WithGPS {
		t.Lat = make([]float64, n)
		t.Lon = make([]float64, n)
		lat0 := originLat * math.Pi / 180
		for i := range x {
			t.Lat[i] = originLat + (y[i]/l1trace.EarthRadius)*180/math.Pi
			t.Lon[i] = originLon + (x[i]/(l1trace.EarthRadius*math.Cos(lat0)))*180/math.Pi
		}
	}

	speed := driverSpeed(dist, curv, opts)
	t.Speed = speed
	t.LatAccelG = make([]float64, n)
	t.LonAccelG = make([]float64, n)
	t.Time = make([]float64, n)
	for i := 0; i < n; i++ {
		t.LatAccelG[i] = speed[i] * speed[i] * curv[i] / gravity
		if i > 0 {
			ds := dist[i] - dist[i-1]
			t.LonAccelG[i] = (speed[i]*speed[i] - speed[i-1]*speed[i-1]) / (2 * ds * gravity)
			t.Time[i] = t.Time[i-1] + ds/(0.5*(speed[i]+speed[i-1]))
		}
	}
	if n > 1 {
		t.LonAccelG[0] = t.LonAccelG[1]
	}
	return t
}

// driverSpeed is a simple grip-limited speed trace: cornering ceiling,
// then acceleration- and braking-limited passes.
func driverSpeed(dist, curv []float64, opts TraceOptions) []float64 {
	n := len(dist)
	top := opts.TopSpeed
	if top <= 0 {
		top = 50
	}
	lat := opts.LateralG
	if lat <= 0 {
		lat = 1
	}
	acc := opts.AccelG
	if acc <= 0 {
		acc = 0.4
	}
	dec := opts.DecelG
	if dec <= 0 {
		dec = 0.9
	}

	v := make([]float64, n)
	for i := range v {
		v[i] = top
		if k := math.Abs(curv[i]); k > 1e-9 {
			v[i] = math.Min(top, math.Sqrt(lat*gravity/k))
		}
	}
	for i := 1; i < n; i++ {
		ds := dist[i] - dist[i-1]
		v[i] = math.Min(v[i], math.Sqrt(v[i-1]*v[i-1]+2*acc*gravity*ds))
	}
	for i := n - 2; i >= 0; i-- {
		ds := dist[i+1] - dist[i]
		v[i] = math.Min(v[i], math.Sqrt(v[i+1]*v[i+1]+2*dec*gravity*ds))
	}
	return v
}
