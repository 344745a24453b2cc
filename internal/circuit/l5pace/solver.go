package l5pace

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/banshee-data/circuit.report/internal/circuit/l2geometry"
	"github.com/banshee-data/circuit.report/internal/config"
	"github.com/banshee-data/circuit.report/internal/monitoring"
)

// Gravity is standard gravity in m/s^2.
const Gravity = 9.80665

// ErrInvalidProfile is returned when the curvature profile cannot be
// solved over.
var ErrInvalidProfile = errors.New("invalid curvature profile")

// Config holds solver parameters.
type Config struct {
	MinSpeed            float64 // floor for every output speed (m/s)
	TransitionThreshold float64 // cumulative speed change that flips state (m/s)
	CurvatureEpsilon    float64 // |κ| below this is treated as straight (1/m)
	OpenCircuit         bool    // solve as a one-shot line without wrap
}

// DefaultConfig returns the solver defaults.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning builds a Config from the tuning document.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		MinSpeed:            cfg.GetMinSpeed(),
		TransitionThreshold: cfg.GetTransitionThreshold(),
		CurvatureEpsilon:    1e-6,
		OpenCircuit:         cfg.GetOpenCircuit(),
	}
}

// OptimalProfile is the physics-limited speed trace for one lap.
type OptimalProfile struct {
	Distance    []float64    `json:"distance"`
	Speed       []float64    `json:"speed"`   // m/s
	Ceiling     []float64    `json:"ceiling"` // cornering limit (m/s)
	Transitions []Transition `json:"transitions"`
	LapTime     float64      `json:"lap_time"` // s
}

// BrakePoints returns the distances of brake transitions in track order.
func (o *OptimalProfile) BrakePoints() []float64 {
	return o.pointsOf(TransitionBrake)
}

// ThrottlePoints returns the distances of throttle transitions in track
// order.
func (o *OptimalProfile) ThrottlePoints() []float64 {
	return o.pointsOf(TransitionThrottle)
}

func (o *OptimalProfile) pointsOf(kind TransitionKind) []float64 {
	var out []float64
	for _, t := range o.Transitions {
		if t.Kind == kind {
			out = append(out, t.Distance)
		}
	}
	return out
}

// solver carries the parameters of one Solve call.
type solver struct {
	params VehicleParams
	cfg    Config
}

// Solve computes the optimal speed trace for profile. On a closed circuit
// the passes run over two laps back to back so that the end of the lap
// brakes for whatever follows the start line and the start inherits the
// speed carried over the line.
func Solve(profile *l2geometry.Profile, params VehicleParams, cfg Config) (*OptimalProfile, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if profile == nil || profile.Len() < 2 {
		return nil, fmt.Errorf("%w: need at least 2 samples", ErrInvalidProfile)
	}
	if len(profile.AbsCurvature) != profile.Len() {
		return nil, fmt.Errorf("%w: curvature has %d samples, distance has %d",
			ErrInvalidProfile, len(profile.AbsCurvature), profile.Len())
	}
	step := profile.Step()
	if step <= 0 || math.IsNaN(step) {
		return nil, fmt.Errorf("%w: non-positive distance step", ErrInvalidProfile)
	}
	if cfg.MinSpeed > params.TopSpeed {
		return nil, fmt.Errorf("%w: min speed %.2f exceeds top speed %.2f", ErrInvalidParams, cfg.MinSpeed, params.TopSpeed)
	}

	s := &solver{params: params, cfg: cfg}
	n := profile.Len()
	kappa := profile.AbsCurvature
	ceiling := s.ceiling(kappa)

	var fwd, bwd []float64
	if cfg.OpenCircuit {
		fwd = s.forwardPass(ceiling, kappa, step)
		bwd = s.backwardPass(ceiling, kappa, step)
	} else {
		kappa2 := append(append(make([]float64, 0, 2*n), kappa...), kappa...)
		ceiling2 := append(append(make([]float64, 0, 2*n), ceiling...), ceiling...)
		fwd = s.forwardPass(ceiling2, kappa2, step)[n:]
		bwd = s.backwardPass(ceiling2, kappa2, step)[:n]
	}

	speed := make([]float64, n)
	for i := range speed {
		speed[i] = s.clamp(math.Min(ceiling[i], math.Min(fwd[i], bwd[i])))
	}

	out := &OptimalProfile{
		Distance:    append([]float64(nil), profile.Distance...),
		Speed:       speed,
		Ceiling:     ceiling,
		Transitions: detectTransitions(profile.Distance, speed, cfg.TransitionThreshold),
	}
	if et := elapsedTime(out.Distance, speed); len(et) > 0 {
		out.LapTime = et[len(et)-1]
	}
	monitoring.Diagf("pace: %d samples, lap time %.3f s, %d transitions", n, out.LapTime, len(out.Transitions))
	return out, nil
}

// ceiling returns the pointwise cornering limit. With aero grip the
// lateral limit grows with v^2, which lowers the effective curvature.
func (s *solver) ceiling(kappa []float64) []float64 {
	p := s.params
	out := make([]float64, len(kappa))
	for i, k := range kappa {
		if k < s.cfg.CurvatureEpsilon {
			out[i] = p.TopSpeed
			continue
		}
		denom := k - p.AeroGripCoefficient*Gravity
		if denom <= 0 {
			out[i] = p.TopSpeed
			continue
		}
		out[i] = s.clamp(math.Sqrt(p.Mu * Gravity / denom))
	}
	return out
}

// clamp maps v into [MinSpeed, TopSpeed]; NaN and +Inf map to TopSpeed.
func (s *solver) clamp(v float64) float64 {
	if math.IsNaN(v) || v > s.params.TopSpeed {
		return s.params.TopSpeed
	}
	if v < s.cfg.MinSpeed {
		return s.cfg.MinSpeed
	}
	return v
}

// available returns the longitudinal budget (G) left by the generalised
// friction circle at speed v on curvature k.
func (s *solver) available(limitG, v, k float64) float64 {
	p := s.params
	lat := v * v * k / Gravity
	maxLat := p.MaxLateralG + p.AeroGripCoefficient*v*v
	ratio := lat / maxLat
	if ratio >= 1 {
		return 0
	}
	e := p.FrictionExponent
	return limitG * math.Pow(1-math.Pow(ratio, e), 1/e)
}

func (s *solver) drag(v float64) float64 {
	return s.params.DragCoefficient * v * v / Gravity
}

// forwardPass integrates acceleration from the first sample.
func (s *solver) forwardPass(ceiling, kappa []float64, step float64) []float64 {
	n := len(ceiling)
	v := make([]float64, n)
	v[0] = ceiling[0]
	for i := 1; i < n; i++ {
		prev := v[i-1]
		accel := s.available(s.params.MaxAccelG, prev, kappa[i-1]) - s.drag(prev)
		if accel < 0 {
			accel = 0
		}
		v[i] = math.Min(math.Sqrt(prev*prev+2*accel*Gravity*step), ceiling[i])
	}
	return v
}

// backwardPass integrates braking from the last sample towards the first.
func (s *solver) backwardPass(ceiling, kappa []float64, step float64) []float64 {
	n := len(ceiling)
	v := make([]float64, n)
	v[n-1] = ceiling[n-1]
	for i := n - 2; i >= 0; i-- {
		next := v[i+1]
		decel := s.available(s.params.MaxDecelG, next, kappa[i+1]) + s.drag(next)
		v[i] = math.Min(math.Sqrt(next*next+2*decel*Gravity*step), ceiling[i])
	}
	return v
}

// elapsedTime integrates dt = ds / v with the trapezoidal mean speed and
// returns the running total at every sample.
func elapsedTime(distance, speed []float64) []float64 {
	out := make([]float64, len(speed))
	for i := 1; i < len(speed); i++ {
		out[i] = out[i-1] + (distance[i]-distance[i-1])/(0.5*(speed[i]+speed[i-1]))
	}
	return out
}

// ElapsedTime returns the optimal elapsed time (s) at every sample.
func (o *OptimalProfile) ElapsedTime() []float64 {
	return elapsedTime(o.Distance, o.Speed)
}

// TimeBetween returns the optimal time (s) from distance from to
// distance to, snapped to the nearest samples at or after each.
func (o *OptimalProfile) TimeBetween(from, to float64) float64 {
	et := o.ElapsedTime()
	if len(et) == 0 {
		return 0
	}
	return et[indexAtOrAfter(o.Distance, to)] - et[indexAtOrAfter(o.Distance, from)]
}

// SpeedAt returns the optimal speed at the first sample at or after d.
func (o *OptimalProfile) SpeedAt(d float64) float64 {
	if len(o.Speed) == 0 {
		return 0
	}
	return o.Speed[indexAtOrAfter(o.Distance, d)]
}

func indexAtOrAfter(distance []float64, d float64) int {
	i := sort.SearchFloat64s(distance, d)
	if i >= len(distance) {
		return len(distance) - 1
	}
	return i
}
