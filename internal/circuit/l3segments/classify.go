package l3segments

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/circuit.report/internal/circuit/l2geometry"
)

// span is a segment under construction in sample-index space. Samples
// lo..hi-1 belong to it; hi is the exit sample shared with the next span.
type span struct {
	lo, hi     int
	typ        SegmentType
	dir        Direction
	meanAbs    float64
	peakAbs    float64
	meanSigned float64
}

type classifier struct {
	p   *l2geometry.Profile
	cfg Config
}

// classify turns raw boundary indices into the final ordered, gapless
// segment list: label spans, merge, drop short spans, close gaps, then
// group corner complexes.
func classify(p *l2geometry.Profile, bounds []int, cfg Config) []Segment {
	c := &classifier{p: p, cfg: cfg}
	n := p.Len()
	b := normalizeBoundaries(bounds, n)

	spans := make([]span, 0, len(b)-1)
	for k := 0; k+1 < len(b); k++ {
		s := span{lo: b[k], hi: b[k+1]}
		c.measure(&s)
		c.label(&s)
		spans = append(spans, s)
	}
	spans = c.merge(spans, cfg.MergeGap)

	kept := make([]span, 0, len(spans))
	for _, s := range spans {
		if c.length(s) >= cfg.MinSegmentLength {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		s := span{lo: 0, hi: n - 1}
		c.measure(&s)
		c.label(&s)
		kept = append(kept, s)
	}
	kept = c.merge(kept, cfg.MergeGap)

	// Dropped spans leave gaps; the preceding segment absorbs each one.
	kept[0].lo = 0
	for i := 0; i+1 < len(kept); i++ {
		kept[i].hi = kept[i+1].lo
	}
	kept[len(kept)-1].hi = n - 1
	kept = c.merge(kept, 0)
	for i := range kept {
		c.measure(&kept[i])
	}

	segs := make([]Segment, len(kept))
	for i, s := range kept {
		segs[i] = Segment{
			Type:          s.typ,
			Entry:         p.Distance[s.lo],
			Exit:          p.Distance[s.hi],
			PeakCurvature: s.peakAbs,
			MeanCurvature: s.meanAbs,
			Direction:     s.dir,
		}
	}
	groupComplexes(segs, cfg.ComplexGap)
	return segs
}

func (c *classifier) length(s span) float64 {
	return c.p.Distance[s.hi] - c.p.Distance[s.lo]
}

// measure fills the curvature statistics of s. The final span also owns
// the last sample.
func (c *classifier) measure(s *span) {
	hi := s.hi
	if hi == c.p.Len()-1 {
		hi++
	}
	if hi <= s.lo {
		hi = s.lo + 1
	}
	abs := c.p.AbsCurvature[s.lo:hi]
	s.meanAbs = stat.Mean(abs, nil)
	s.peakAbs = floats.Max(abs)
	s.meanSigned = stat.Mean(c.p.Curvature[s.lo:hi], nil)
}

func (c *classifier) label(s *span) {
	if s.meanAbs <= c.cfg.CornerCurvature {
		s.typ, s.dir = SegmentStraight, DirectionStraight
		return
	}
	s.typ = SegmentCorner
	if s.meanSigned < 0 {
		s.dir = DirectionRight
	} else {
		s.dir = DirectionLeft
	}
}

// merge joins neighbouring spans of the same type and direction whose gap
// is below gap metres. Touching spans always merge.
func (c *classifier) merge(spans []span, gap float64) []span {
	out := make([]span, 0, len(spans))
	for _, s := range spans {
		if len(out) > 0 {
			last := &out[len(out)-1]
			g := c.p.Distance[s.lo] - c.p.Distance[last.hi]
			if last.typ == s.typ && last.dir == s.dir && (g <= 0 || g < gap) {
				last.hi = s.hi
				c.measure(last)
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

// groupComplexes assigns an incrementing complex id to every corner;
// a corner following a same-direction corner across at most maxGap
// metres of straight shares its id.
func groupComplexes(segs []Segment, maxGap float64) {
	next := 0
	prev := -1
	for i := range segs {
		if segs[i].Type != SegmentCorner {
			continue
		}
		var id int
		if prev >= 0 && segs[prev].Direction == segs[i].Direction && segs[i].Entry-segs[prev].Exit <= maxGap {
			id = *segs[prev].ParentComplex
		} else {
			next++
			id = next
		}
		segs[i].ParentComplex = &id
		prev = i
	}
}

// normalizeBoundaries sorts and de-duplicates boundary indices and adds
// the first and last sample.
func normalizeBoundaries(bounds []int, n int) []int {
	inner := make([]int, 0, len(bounds))
	for _, b := range bounds {
		if b > 0 && b < n-1 {
			inner = append(inner, b)
		}
	}
	sort.Ints(inner)
	out := make([]int, 0, len(inner)+2)
	out = append(out, 0)
	for _, b := range inner {
		if b != out[len(out)-1] {
			out = append(out, b)
		}
	}
	return append(out, n-1)
}
