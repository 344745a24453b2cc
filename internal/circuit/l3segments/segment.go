package l3segments

import (
	"errors"
	"fmt"

	"github.com/banshee-data/circuit.report/internal/circuit/l2geometry"
	"github.com/banshee-data/circuit.report/internal/monitoring"
)

// ErrInvalidProfile is returned when the curvature profile is too short or
// its arrays disagree in length.
var ErrInvalidProfile = errors.New("invalid curvature profile")

const minProfileSamples = 3

// Run partitions a curvature profile into straights and corners using
// the selected changepoint search. The result always covers the profile
// from its first to its last distance without gaps.
func Run(p *l2geometry.Profile, method Method, cfg Config) (*Result, error) {
	if err := validateProfile(p); err != nil {
		return nil, err
	}

	var (
		bounds []int
		votes  []candidate
	)
	switch method {
	case MethodPELT:
		bounds = peltChangepoints(p.AbsCurvature, p.Step(), cfg)
	case MethodCSS:
		votes = cssCandidates(p, cfg)
		bounds = make([]int, len(votes))
		for i, v := range votes {
			bounds[i] = v.index
		}
	case MethodASC:
		bounds = ascChangepoints(p, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, method)
	}

	segs := classify(p, bounds, cfg)
	if method == MethodCSS {
		assignScales(segs, p, votes)
	}

	interior := normalizeBoundaries(bounds, p.Len())
	changepoints := make([]float64, 0, len(interior))
	for _, b := range interior[1 : len(interior)-1] {
		changepoints = append(changepoints, p.Distance[b])
	}

	res := &Result{Segments: segs, Changepoints: changepoints, Method: method}
	if len(res.Corners()) == 0 {
		monitoring.Diagf("segmentation (%s): no corners above %.4f 1/m over %.0f m", method, cfg.CornerCurvature, p.Distance[p.Len()-1]-p.Distance[0])
	}
	return res, nil
}

func validateProfile(p *l2geometry.Profile) error {
	if p == nil {
		return fmt.Errorf("%w: nil profile", ErrInvalidProfile)
	}
	n := len(p.Distance)
	if n < minProfileSamples {
		return fmt.Errorf("%w: need at least %d samples, got %d", ErrInvalidProfile, minProfileSamples, n)
	}
	if len(p.Curvature) != n || len(p.AbsCurvature) != n {
		return fmt.Errorf("%w: curvature arrays do not match distance (%d samples)", ErrInvalidProfile, n)
	}
	if p.Distance[n-1] <= p.Distance[0] {
		return fmt.Errorf("%w: distance must increase", ErrInvalidProfile)
	}
	return nil
}
