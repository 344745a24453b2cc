package pipeline

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/circuit.report/internal/circuit/l1trace"
	"github.com/banshee-data/circuit.report/internal/circuit/l2geometry"
	"github.com/banshee-data/circuit.report/internal/circuit/l4corners"
)

// CornerDelta is the difference (lap minus reference) of one corner's KPIs.
type CornerDelta struct {
	Number              int      `json:"number"`
	MinSpeedDelta       float64  `json:"min_speed_delta"` // m/s
	ApexDelta           float64  `json:"apex_delta"`      // m
	BrakePointDelta     *float64 `json:"brake_point_delta,omitempty"`
	ThrottleCommitDelta *float64 `json:"throttle_commit_delta,omitempty"`
}

// Comparison is a lap's KPIs re-extracted on a reference lap's corners.
type Comparison struct {
	LapID       string             `json:"lap_id"`
	ReferenceID string             `json:"reference_id"`
	Corners     []l4corners.Corner `json:"corners"`
	Deltas      []CornerDelta      `json:"deltas"`
	// MeanMinSpeedDelta averages MinSpeedDelta over the compared corners.
	MeanMinSpeedDelta float64 `json:"mean_min_speed_delta"`
}

// CompareLap re-extracts corner KPIs for trace using the reference lap's
// corner windows and reports per-corner deltas. Reference corners past the
// end of trace are skipped.
func (a *Analyzer) CompareLap(reference *LapAnalysis, lapID string, trace *l1trace.LapTrace) (*Comparison, error) {
	if reference == nil {
		return nil, errors.New("compare: nil reference analysis")
	}

	var (
		corners []l4corners.Corner
		err     error
	)
	if a.Config.DetectionMethod == l4corners.MethodGeometry {
		var profile *l2geometry.Profile
		profile, err = l2geometry.ExtractCurvature(trace, a.Config.Geometry)
		if err != nil {
			return nil, fmt.Errorf("lap %s: geometry: %w", lapID, err)
		}
		corners, err = l4corners.ExtractLapKPIsWithProfile(trace, profile, reference.Corners, a.Config.Corners)
	} else {
		corners, err = l4corners.ExtractLapKPIs(trace, reference.Corners, a.Config.Corners)
	}
	if err != nil {
		return nil, fmt.Errorf("lap %s: compare with %s: %w", lapID, reference.LapID, err)
	}

	byNumber := make(map[int]l4corners.Corner, len(reference.Corners))
	for _, c := range reference.Corners {
		byNumber[c.Number] = c
	}

	out := &Comparison{
		LapID:       lapID,
		ReferenceID: reference.LapID,
		Corners:     corners,
		Deltas:      make([]CornerDelta, 0, len(corners)),
	}
	speedDeltas := make([]float64, 0, len(corners))
	for _, c := range corners {
		ref := byNumber[c.Number]
		d := CornerDelta{
			Number:              c.Number,
			MinSpeedDelta:       c.MinSpeed - ref.MinSpeed,
			ApexDelta:           c.Apex - ref.Apex,
			BrakePointDelta:     diffOptional(c.BrakePoint, ref.BrakePoint),
			ThrottleCommitDelta: diffOptional(c.ThrottleCommit, ref.ThrottleCommit),
		}
		out.Deltas = append(out.Deltas, d)
		speedDeltas = append(speedDeltas, d.MinSpeedDelta)
	}
	if len(speedDeltas) > 0 {
		out.MeanMinSpeedDelta = stat.Mean(speedDeltas, nil)
	}
	return out, nil
}

func diffOptional(a, b *float64) *float64 {
	if a == nil || b == nil {
		return nil
	}
	d := *a - *b
	return &d
}
