package l3segments

import (
	"math"
	"sort"

	"github.com/banshee-data/circuit.report/internal/circuit/l2geometry"
)

const (
	// kernelTruncation is the Gaussian half-width in standard deviations.
	kernelTruncation = 4.0
	// minVotes is the number of distinct scales a candidate must reach.
	minVotes = 2
)

// candidate is a boundary that persisted across smoothing scales.
type candidate struct {
	index int
	scale float64 // coarsest scale that voted for it (m)
}

// voteKind separates the evidence types so that a corner-centre peak
// never absorbs a nearby boundary.
type voteKind int

const (
	voteReversal voteKind = iota
	voteEdge
	votePeak
)

type vote struct {
	index int
	scale float64
	kind  voteKind
}

// cssCandidates smooths the curvature at every configured scale and
// collects direction reversals (zero crossings of signed curvature),
// corner-zone edges and peaks of absolute curvature above the corner
// threshold. Only candidates seen at two or more scales are kept.
func cssCandidates(p *l2geometry.Profile, cfg Config) []candidate {
	step := p.Step()
	deadBand := cfg.CornerCurvature / 2

	var votes []vote
	for _, scale := range cfg.Scales {
		if scale <= 0 {
			continue
		}
		signed := gaussianSmooth(p.Curvature, scale/step)
		abs := gaussianSmooth(p.AbsCurvature, scale/step)

		for _, i := range zeroCrossings(signed, deadBand) {
			votes = append(votes, vote{i, scale, voteReversal})
		}
		for _, i := range thresholdCrossings(abs, cfg.CornerCurvature) {
			votes = append(votes, vote{i, scale, voteEdge})
		}
		for _, i := range peaksAbove(abs, cfg.CornerCurvature) {
			votes = append(votes, vote{i, scale, votePeak})
		}
	}
	return coalesceVotes(votes, p.Distance, cfg.VoteTolerance)
}

// coalesceVotes keeps votes confirmed by at least minVotes distinct scales
// within tol metres. Finer scales are visited first so a kept candidate
// sits at its best-localised position; later votes of the same kind
// within tol of a kept candidate are absorbed into it.
func coalesceVotes(votes []vote, distance []float64, tol float64) []candidate {
	sort.SliceStable(votes, func(i, j int) bool {
		if votes[i].scale != votes[j].scale {
			return votes[i].scale < votes[j].scale
		}
		return votes[i].index < votes[j].index
	})

	var (
		out   []candidate
		kinds []voteKind
	)
	for _, v := range votes {
		d := distance[v.index]
		absorbed := false
		for k, c := range out {
			if kinds[k] == v.kind && math.Abs(distance[c.index]-d) <= tol {
				absorbed = true
				break
			}
		}
		if absorbed {
			continue
		}

		scales := make(map[float64]struct{})
		coarsest := v.scale
		for _, o := range votes {
			if o.kind == v.kind && math.Abs(distance[o.index]-d) <= tol {
				scales[o.scale] = struct{}{}
				coarsest = math.Max(coarsest, o.scale)
			}
		}
		if len(scales) >= minVotes {
			out = append(out, candidate{index: v.index, scale: coarsest})
			kinds = append(kinds, v.kind)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out
}

// assignScales sets each segment's Scale to the coarsest persisting
// candidate inside it.
func assignScales(segs []Segment, p *l2geometry.Profile, cands []candidate) {
	for i := range segs {
		var best float64
		for _, c := range cands {
			d := p.Distance[c.index]
			if d >= segs[i].Entry && d <= segs[i].Exit && c.scale > best {
				best = c.scale
			}
		}
		if best > 0 {
			s := best
			segs[i].Scale = &s
		}
	}
}

// gaussianSmooth convolves x with a Gaussian of the given standard
// deviation in samples, truncated at four sigma, with reflected edges.
func gaussianSmooth(x []float64, sigma float64) []float64 {
	n := len(x)
	out := make([]float64, n)
	if sigma <= 0 || n == 0 {
		copy(out, x)
		return out
	}
	radius := int(math.Ceil(kernelTruncation * sigma))
	kernel := make([]float64, 2*radius+1)
	var norm float64
	for k := -radius; k <= radius; k++ {
		w := math.Exp(-0.5 * float64(k*k) / (sigma * sigma))
		kernel[k+radius] = w
		norm += w
	}
	for k := range kernel {
		kernel[k] /= norm
	}
	for i := 0; i < n; i++ {
		var acc float64
		for k := -radius; k <= radius; k++ {
			acc += kernel[k+radius] * x[reflectIndex(i+k, n)]
		}
		out[i] = acc
	}
	return out
}

// reflectIndex maps i into [0, n) by mirroring about the edges
// (d c b a | a b c d | d c b a).
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * n
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - 1 - i
	}
	return i
}

// zeroCrossings returns the indices where the signal changes sign after
// having left the dead band on both sides, so numerical noise around zero
// on a straight is ignored.
func zeroCrossings(x []float64, deadBand float64) []int {
	var out []int
	lastSign := 0
	lastFlip := -1
	for i, v := range x {
		if i > 0 && (x[i-1] < 0) != (v < 0) {
			lastFlip = i
		}
		if math.Abs(v) < deadBand {
			continue
		}
		sign := 1
		if v < 0 {
			sign = -1
		}
		if lastSign != 0 && sign != lastSign && lastFlip > 0 {
			out = append(out, lastFlip)
		}
		lastSign = sign
	}
	return out
}

// thresholdCrossings returns the indices where x rises above or falls
// back below threshold.
func thresholdCrossings(x []float64, threshold float64) []int {
	var out []int
	for i := 1; i < len(x); i++ {
		if (x[i-1] > threshold) != (x[i] > threshold) {
			out = append(out, i)
		}
	}
	return out
}

// peaksAbove returns interior local maxima of x above threshold. On a
// plateau the first sample is reported.
func peaksAbove(x []float64, threshold float64) []int {
	var out []int
	for i := 1; i+1 < len(x); i++ {
		if x[i] > threshold && x[i] > x[i-1] && x[i] >= x[i+1] {
			out = append(out, i)
		}
	}
	return out
}
