package l3segments

import (
	"sort"

	"github.com/banshee-data/circuit.report/internal/circuit/l2geometry"
)

// zone is an inclusive sample range [lo, hi] of raised curvature.
type zone struct {
	lo, hi int
}

// ascChangepoints finds corner zones by adaptive peak expansion: peaks of
// |κ| above PeakCurvature, at least MinSegmentLength apart, are grown
// outwards while |κ| stays above CornerCurvature. Touching zones merge and
// each merged zone is split where the signed curvature changes sign.
func ascChangepoints(p *l2geometry.Profile, cfg Config) []int {
	abs := p.AbsCurvature
	n := len(abs)

	peaks := selectPeaks(abs, p.Distance, cfg.PeakCurvature, cfg.MinSegmentLength)
	if len(peaks) == 0 {
		return nil
	}

	zones := make([]zone, 0, len(peaks))
	for _, pk := range peaks {
		lo, hi := pk, pk
		for lo > 0 && abs[lo-1] >= cfg.CornerCurvature {
			lo--
		}
		for hi < n-1 && abs[hi+1] >= cfg.CornerCurvature {
			hi++
		}
		zones = append(zones, zone{lo, hi})
	}
	sort.Slice(zones, func(i, j int) bool { return zones[i].lo < zones[j].lo })

	merged := []zone{zones[0]}
	for _, z := range zones[1:] {
		last := &merged[len(merged)-1]
		if z.lo <= last.hi+1 {
			if z.hi > last.hi {
				last.hi = z.hi
			}
			continue
		}
		merged = append(merged, z)
	}

	var bounds []int
	for _, z := range merged {
		bounds = append(bounds, z.lo)
		for i := z.lo + 1; i <= z.hi; i++ {
			if (p.Curvature[i-1] < 0) != (p.Curvature[i] < 0) {
				bounds = append(bounds, i)
			}
		}
		exit := z.hi + 1
		if exit > n-1 {
			exit = n - 1
		}
		bounds = append(bounds, exit)
	}
	return bounds
}

// selectPeaks returns local maxima of x at or above height, keeping the
// tallest first and discarding any peak closer than minDist metres to one
// already kept. The result is in index order.
func selectPeaks(x, distance []float64, height, minDist float64) []int {
	var cands []int
	for i := range x {
		if x[i] < height {
			continue
		}
		if i > 0 && x[i] < x[i-1] {
			continue
		}
		if i < len(x)-1 && x[i] < x[i+1] {
			continue
		}
		cands = append(cands, i)
	}
	sort.SliceStable(cands, func(a, b int) bool { return x[cands[a]] > x[cands[b]] })

	var kept []int
	for _, c := range cands {
		ok := true
		for _, k := range kept {
			d := distance[c] - distance[k]
			if d < 0 {
				d = -d
			}
			if d < minDist {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, c)
		}
	}
	sort.Ints(kept)
	return kept
}
