package l1trace

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	// ErrMissingChannel is returned when a channel required by an operation
	// is absent from the trace.
	ErrMissingChannel = errors.New("missing trace channel")
	// ErrInvalidTrace is returned when the trace violates its shape
	// invariants (length mismatch, non-increasing or non-uniform distance).
	ErrInvalidTrace = errors.New("invalid lap trace")
)

// Channel names used in error messages and CSV headers.
const (
	ChannelDistance = "distance_m"
	ChannelTime     = "time_s"
	ChannelSpeed    = "speed_mps"
	ChannelHeading  = "heading_deg"
	ChannelLat      = "lat"
	ChannelLon      = "lon"
	ChannelLatAccel = "lat_accel_g"
	ChannelLonAccel = "lon_accel_g"
	ChannelAltitude = "altitude_m"
)

const (
	minTraceSamples  = 3
	stepTolerance    = 0.01 // relative deviation allowed between distance steps
	minStepTolerance = 1e-6 // absolute floor for the step deviation check (m)
)

// LapTrace is one lap of telemetry resampled onto a uniform distance grid.
// Channels are stored column-wise; an absent optional channel is nil.
// A LapTrace is treated as immutable once built.
type LapTrace struct {
	Distance  []float64 // cumulative distance (m), strictly increasing, uniform step
	Time      []float64 // elapsed time (s)
	Speed     []float64 // speed (m/s)
	Heading   []float64 // compass heading (degrees, clockwise from north)
	Lat       []float64 // latitude (degrees), optional
	Lon       []float64 // longitude (degrees), optional
	LatAccelG []float64 // lateral acceleration (G)
	LonAccelG []float64 // longitudinal acceleration (G), negative under braking
	Altitude  []float64 // altitude (m), optional
}

// Len returns the number of samples.
func (t *LapTrace) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Distance)
}

// Step returns the mean distance spacing between samples.
func (t *LapTrace) Step() float64 {
	n := t.Len()
	if n < 2 {
		return 0
	}
	return (t.Distance[n-1] - t.Distance[0]) / float64(n-1)
}

// TotalDistance returns the distance of the last sample.
func (t *LapTrace) TotalDistance() float64 {
	n := t.Len()
	if n == 0 {
		return 0
	}
	return t.Distance[n-1]
}

// HasPosition reports whether both latitude and longitude are present.
func (t *LapTrace) HasPosition() bool {
	return t != nil && len(t.Lat) > 0 && len(t.Lat) == len(t.Distance) && len(t.Lon) == len(t.Distance)
}

// HasHeading reports whether the heading channel is present.
func (t *LapTrace) HasHeading() bool {
	return t != nil && len(t.Heading) > 0 && len(t.Heading) == len(t.Distance)
}

// HasTime reports whether the elapsed-time channel is present.
func (t *LapTrace) HasTime() bool {
	return t != nil && len(t.Time) > 0 && len(t.Time) == len(t.Distance)
}

// Validate checks the shape invariants of the trace: the distance channel is
// present with at least three samples, strictly increasing with a uniform
// step, and every present channel matches its length.
func (t *LapTrace) Validate() error {
	if t == nil || len(t.Distance) == 0 {
		return fmt.Errorf("%w: %s", ErrMissingChannel, ChannelDistance)
	}
	n := len(t.Distance)
	if n < minTraceSamples {
		return fmt.Errorf("%w: need at least %d samples, got %d", ErrInvalidTrace, minTraceSamples, n)
	}

	channels := []struct {
		name string
		vals []float64
	}{
		{ChannelTime, t.Time},
		{ChannelSpeed, t.Speed},
		{ChannelHeading, t.Heading},
		{ChannelLat, t.Lat},
		{ChannelLon, t.Lon},
		{ChannelLatAccel, t.LatAccelG},
		{ChannelLonAccel, t.LonAccelG},
		{ChannelAltitude, t.Altitude},
	}
	for _, ch := range channels {
		if ch.vals != nil && len(ch.vals) != n {
			return fmt.Errorf("%w: channel %s has %d samples, distance has %d", ErrInvalidTrace, ch.name, len(ch.vals), n)
		}
	}
	if (t.Lat == nil) != (t.Lon == nil) {
		return fmt.Errorf("%w: latitude and longitude must be supplied together", ErrInvalidTrace)
	}

	step := t.Step()
	if step <= 0 || math.IsNaN(step) || math.IsInf(step, 0) {
		return fmt.Errorf("%w: distance must be strictly increasing", ErrInvalidTrace)
	}
	tol := math.Max(step*stepTolerance, minStepTolerance)
	for i := 1; i < n; i++ {
		d := t.Distance[i] - t.Distance[i-1]
		if d <= 0 {
			return fmt.Errorf("%w: distance not strictly increasing at sample %d", ErrInvalidTrace, i)
		}
		if math.Abs(d-step) > tol {
			return fmt.Errorf("%w: non-uniform distance step at sample %d (%.4f m vs %.4f m)", ErrInvalidTrace, i, d, step)
		}
	}
	return nil
}

// Require returns ErrMissingChannel naming the first channel in names that
// is absent from the trace.
func (t *LapTrace) Require(names ...string) error {
	for _, name := range names {
		var vals []float64
		switch name {
		case ChannelDistance:
			vals = t.Distance
		case ChannelTime:
			vals = t.Time
		case ChannelSpeed:
			vals = t.Speed
		case ChannelHeading:
			vals = t.Heading
		case ChannelLat:
			vals = t.Lat
		case ChannelLon:
			vals = t.Lon
		case ChannelLatAccel:
			vals = t.LatAccelG
		case ChannelLonAccel:
			vals = t.LonAccelG
		case ChannelAltitude:
			vals = t.Altitude
		default:
			return fmt.Errorf("%w: unknown channel %q", ErrMissingChannel, name)
		}
		if len(vals) == 0 || len(vals) != len(t.Distance) {
			return fmt.Errorf("%w: %s", ErrMissingChannel, name)
		}
	}
	return nil
}

// IndexAtDistance returns the first index whose distance is >= d, clamped
// to the valid index range.
func (t *LapTrace) IndexAtDistance(d float64) int {
	n := t.Len()
	if n == 0 {
		return 0
	}
	i := sort.SearchFloat64s(t.Distance, d)
	if i >= n {
		return n - 1
	}
	return i
}

// LapTime returns the elapsed time between the first and last samples, or
// false when the trace carries no time channel.
func (t *LapTrace) LapTime() (float64, bool) {
	if !t.HasTime() {
		return 0, false
	}
	return t.Time[len(t.Time)-1] - t.Time[0], true
}
