package l3segments

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/circuit.report/internal/circuit/l2geometry"
	"github.com/banshee-data/circuit.report/internal/testutil"
)

// syntheticProfile builds an exact profile at 1 m spacing.
func syntheticProfile(curv []float64) *l2geometry.Profile {
	n := len(curv)
	p := &l2geometry.Profile{
		Distance:     make([]float64, n),
		Curvature:    make([]float64, n),
		AbsCurvature: make([]float64, n),
	}
	for i, k := range curv {
		p.Distance[i] = float64(i)
		p.Curvature[i] = k
		if k < 0 {
			k = -k
		}
		p.AbsCurvature[i] = k
	}
	return p
}

func fill(curv []float64, lo, hi int, k float64) {
	for i := lo; i < hi; i++ {
		curv[i] = k
	}
}

func profileFor(t *testing.T, sections []testutil.Section) *l2geometry.Profile {
	t.Helper()
	tr := testutil.BuildTrace(sections, 1.0, testutil.DefaultTraceOptions())
	p, err := l2geometry.ExtractCurvature(tr, l2geometry.DefaultConfig())
	require.NoError(t, err)
	return p
}

func assertGaplessCover(t *testing.T, p *l2geometry.Profile, res *Result) {
	t.Helper()
	require.NotEmpty(t, res.Segments)
	assert.Equal(t, p.Distance[0], res.Segments[0].Entry)
	assert.Equal(t, p.Distance[p.Len()-1], res.Segments[len(res.Segments)-1].Exit)
	for i, s := range res.Segments {
		assert.Less(t, s.Entry, s.Exit, "segment %d", i)
		if i > 0 {
			assert.Equal(t, res.Segments[i-1].Exit, s.Entry, "gap before segment %d", i)
		}
		if s.Type == SegmentStraight {
			assert.Nil(t, s.ParentComplex, "straight %d has a complex id", i)
			assert.Equal(t, DirectionStraight, s.Direction)
		} else {
			assert.NotNil(t, s.ParentComplex, "corner %d has no complex id", i)
		}
	}
}

func TestParseMethod(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		in   string
		want Method
	}{
		{"pelt", MethodPELT},
		{"CSS", MethodCSS},
		{" asc ", MethodASC},
	} {
		got, err := ParseMethod(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := ParseMethod("kmeans")
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestRun_UnknownMethod(t *testing.T) {
	t.Parallel()

	p := syntheticProfile(make([]float64, 100))
	_, err := Run(p, Method("wavelet"), DefaultConfig())
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestRun_InvalidProfile(t *testing.T) {
	t.Parallel()

	_, err := Run(nil, MethodASC, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidProfile)

	_, err = Run(syntheticProfile([]float64{0, 0}), MethodASC, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidProfile)

	p := syntheticProfile(make([]float64, 10))
	p.AbsCurvature = p.AbsCurvature[:5]
	_, err = Run(p, MethodASC, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidProfile)
}

func TestRun_StraightTrack(t *testing.T) {
	t.Parallel()

	p := profileFor(t, []testutil.Section{{Length: 1000}})
	for _, m := range Methods {
		m := m
		t.Run(string(m), func(t *testing.T) {
			t.Parallel()
			res, err := Run(p, m, DefaultConfig())
			require.NoError(t, err)
			assert.Equal(t, m, res.Method)
			require.Len(t, res.Segments, 1)
			s := res.Segments[0]
			assert.Equal(t, SegmentStraight, s.Type)
			assert.Equal(t, 0.0, s.Entry)
			assert.Equal(t, 1000.0, s.Exit)
			assert.Empty(t, res.Corners())
		})
	}
}

func TestRun_Oval(t *testing.T) {
	t.Parallel()

	p := profileFor(t, testutil.OvalSections(300, 50))
	for _, m := range Methods {
		m := m
		t.Run(string(m), func(t *testing.T) {
			t.Parallel()
			res, err := Run(p, m, DefaultConfig())
			require.NoError(t, err)
			assertGaplessCover(t, p, res)

			corners := res.Corners()
			assert.GreaterOrEqual(t, len(corners), 2)
			for _, c := range corners {
				assert.Equal(t, DirectionLeft, c.Direction)
				assert.Greater(t, c.MeanCurvature, DefaultConfig().CornerCurvature)
				assert.GreaterOrEqual(t, c.PeakCurvature, c.MeanCurvature)
			}
			for i := 1; i < len(res.Changepoints); i++ {
				assert.Less(t, res.Changepoints[i-1], res.Changepoints[i])
			}
		})
	}
}

func TestRun_SBendSplitsByDirection(t *testing.T) {
	t.Parallel()

	p := profileFor(t, testutil.SBendSections(150, 100, 40))
	for _, m := range []Method{MethodCSS, MethodASC} {
		m := m
		t.Run(string(m), func(t *testing.T) {
			t.Parallel()
			res, err := Run(p, m, DefaultConfig())
			require.NoError(t, err)
			assertGaplessCover(t, p, res)

			corners := res.Corners()
			require.Len(t, corners, 2)
			assert.Equal(t, DirectionLeft, corners[0].Direction)
			assert.Equal(t, DirectionRight, corners[1].Direction)
			assert.NotEqual(t, *corners[0].ParentComplex, *corners[1].ParentComplex)
			// The reversal sits at the junction of the two arcs.
			assert.InDelta(t, 250, corners[0].Exit, 10)
		})
	}
}

func TestRun_CornerAtStart(t *testing.T) {
	t.Parallel()

	p := profileFor(t, testutil.CornerAtStartSections(300, 50))
	res, err := Run(p, MethodASC, DefaultConfig())
	require.NoError(t, err)
	assertGaplessCover(t, p, res)
	assert.Equal(t, SegmentCorner, res.Segments[0].Type)
	assert.Equal(t, 0.0, res.Segments[0].Entry)
}

func TestRun_CSSScales(t *testing.T) {
	t.Parallel()

	p := profileFor(t, testutil.OvalSections(300, 50))
	res, err := Run(p, MethodCSS, DefaultConfig())
	require.NoError(t, err)
	var withScale int
	for _, s := range res.Segments {
		if s.Scale != nil {
			withScale++
			assert.Contains(t, DefaultConfig().Scales, *s.Scale)
		}
	}
	assert.Positive(t, withScale)

	other, err := Run(p, MethodASC, DefaultConfig())
	require.NoError(t, err)
	for _, s := range other.Segments {
		assert.Nil(t, s.Scale)
	}
}

func TestRun_Deterministic(t *testing.T) {
	t.Parallel()

	p := profileFor(t, testutil.OvalSections(200, 40))
	for _, m := range Methods {
		a, err := Run(p, m, DefaultConfig())
		require.NoError(t, err)
		b, err := Run(p, m, DefaultConfig())
		require.NoError(t, err)
		if diff := cmp.Diff(a, b); diff != "" {
			t.Errorf("%s: repeated segmentation differs (-first +second):\n%s", m, diff)
		}
	}
}

func TestClassify_ComplexGrouping(t *testing.T) {
	t.Parallel()

	curv := make([]float64, 301)
	fill(curv, 50, 100, 0.02)
	fill(curv, 130, 180, 0.02)
	fill(curv, 230, 260, -0.02)
	p := syntheticProfile(curv)

	segs := classify(p, []int{50, 100, 130, 180, 230, 260}, DefaultConfig())
	require.Len(t, segs, 7)

	types := make([]SegmentType, len(segs))
	for i, s := range segs {
		types[i] = s.Type
	}
	assert.Equal(t, []SegmentType{
		SegmentStraight, SegmentCorner, SegmentStraight, SegmentCorner,
		SegmentStraight, SegmentCorner, SegmentStraight,
	}, types)

	assert.Equal(t, 1, *segs[1].ParentComplex)
	assert.Equal(t, 1, *segs[3].ParentComplex, "30 m straight keeps same-direction corners together")
	assert.Equal(t, 2, *segs[5].ParentComplex)
	assert.Equal(t, DirectionRight, segs[5].Direction)
	assert.InDelta(t, 0.02, segs[1].MeanCurvature, 1e-12)
	assert.InDelta(t, 0.02, segs[1].PeakCurvature, 1e-12)
}

func TestClassify_DropShortAndMerge(t *testing.T) {
	t.Parallel()

	curv := make([]float64, 301)
	fill(curv, 50, 100, 0.02)
	fill(curv, 70, 75, 0)
	p := syntheticProfile(curv)

	segs := classify(p, []int{50, 70, 75, 100}, DefaultConfig())
	require.Len(t, segs, 3)
	assert.Equal(t, SegmentCorner, segs[1].Type)
	assert.Equal(t, 50.0, segs[1].Entry)
	assert.Equal(t, 100.0, segs[1].Exit)
	assert.InDelta(t, 0.018, segs[1].MeanCurvature, 1e-12)
	assert.InDelta(t, 0.02, segs[1].PeakCurvature, 1e-12)
}

func TestClassify_ShortCornerAbsorbed(t *testing.T) {
	t.Parallel()

	curv := make([]float64, 301)
	fill(curv, 100, 110, 0.02)
	p := syntheticProfile(curv)

	segs := classify(p, []int{100, 110}, DefaultConfig())
	require.Len(t, segs, 1)
	assert.Equal(t, SegmentStraight, segs[0].Type)
	assert.Equal(t, 0.0, segs[0].Entry)
	assert.Equal(t, 300.0, segs[0].Exit)
}

func TestClassify_TrackShorterThanMinimum(t *testing.T) {
	t.Parallel()

	p := syntheticProfile(make([]float64, 11))
	segs := classify(p, []int{3, 7}, DefaultConfig())
	require.Len(t, segs, 1)
	assert.Equal(t, 0.0, segs[0].Entry)
	assert.Equal(t, 10.0, segs[0].Exit)
}

func TestPELT_StepSignal(t *testing.T) {
	t.Parallel()

	abs := make([]float64, 500)
	for i := 200; i < 300; i++ {
		abs[i] = 0.02
	}
	cps := peltChangepoints(abs, 1.0, DefaultConfig())
	require.Len(t, cps, 2)
	assert.Equal(t, 200, cps[0])
	assert.Equal(t, 300, cps[1])
}

func TestGaussianSmoothPreservesConstant(t *testing.T) {
	t.Parallel()

	x := make([]float64, 50)
	for i := range x {
		x[i] = 0.01
	}
	for _, v := range gaussianSmooth(x, 12) {
		assert.InDelta(t, 0.01, v, 1e-12)
	}
	assert.Equal(t, 0, reflectIndex(-1, 5))
	assert.Equal(t, 4, reflectIndex(5, 5))
	assert.Equal(t, 3, reflectIndex(6, 5))
}
