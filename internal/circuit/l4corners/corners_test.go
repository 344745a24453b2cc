package l4corners

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/circuit.report/internal/circuit/l1trace"
	"github.com/banshee-data/circuit.report/internal/circuit/l2geometry"
	"github.com/banshee-data/circuit.report/internal/circuit/l3segments"
	"github.com/banshee-data/circuit.report/internal/testutil"
)

// flatTrace returns a 1 m trace of n samples at constant speed and zero
// longitudinal acceleration.
func flatTrace(n int) *l1trace.LapTrace {
	t := &l1trace.LapTrace{
		Distance:  make([]float64, n),
		Speed:     make([]float64, n),
		LonAccelG: make([]float64, n),
		Heading:   make([]float64, n),
	}
	for i := range t.Distance {
		t.Distance[i] = float64(i)
		t.Speed[i] = 40
	}
	return t
}

func setRange(x []float64, lo, hi int, v float64) {
	for i := lo; i < hi; i++ {
		x[i] = v
	}
}

func truncate(t *l1trace.LapTrace, n int) *l1trace.LapTrace {
	cut := func(x []float64) []float64 {
		if x == nil {
			return nil
		}
		return x[:n]
	}
	return &l1trace.LapTrace{
		Distance:  cut(t.Distance),
		Time:      cut(t.Time),
		Speed:     cut(t.Speed),
		Heading:   cut(t.Heading),
		Lat:       cut(t.Lat),
		Lon:       cut(t.Lon),
		LatAccelG: cut(t.LatAccelG),
		LonAccelG: cut(t.LonAccelG),
		Altitude:  cut(t.Altitude),
	}
}

func TestParseDetectionMethod(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		in   string
		want DetectionMethod
	}{
		{"heading_rate", MethodHeadingRate},
		{"Geometry", MethodGeometry},
	} {
		got, err := ParseDetectionMethod(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
	_, err := ParseDetectionMethod("vision")
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestDetect_Errors(t *testing.T) {
	t.Parallel()

	tr := testutil.BuildTrace(testutil.OvalSections(300, 50), 1.0, testutil.DefaultTraceOptions())

	_, err := Detect(tr, nil, nil, DetectionMethod("vision"), DefaultConfig())
	assert.ErrorIs(t, err, ErrUnknownMethod)

	_, err = Detect(tr, nil, nil, MethodGeometry, DefaultConfig())
	assert.ErrorIs(t, err, ErrMissingGeometry)

	opts := testutil.DefaultTraceOptions()
	opts.WithHeading = false
	noHeading := testutil.BuildTrace(testutil.OvalSections(300, 50), 1.0, opts)
	_, err = DetectHeadingRate(noHeading, DefaultConfig())
	assert.ErrorIs(t, err, l1trace.ErrMissingChannel)
	_, err = ExtractLapKPIs(noHeading, nil, DefaultConfig())
	assert.ErrorIs(t, err, l1trace.ErrMissingChannel)
}

func TestHeadingRate_WrapSafe(t *testing.T) {
	t.Parallel()

	// The heading passes through north, where the compass wraps 0/360.
	tr := testutil.CircleTrace(1000, 0.7, 100, testutil.DefaultTraceOptions())
	rate, err := HeadingRate(tr, 20)
	require.NoError(t, err)
	want := -180 / (math.Pi * 100)
	for i, v := range rate {
		assert.InDelta(t, want, v, 1e-6, "sample %d", i)
	}
}

func TestRollingMean(t *testing.T) {
	t.Parallel()

	got := rollingMean([]float64{0, 0, 3, 0, 0}, 3)
	want := []float64{0, 1, 1, 1, 0}
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-12)
	}
	assert.Equal(t, []float64{1, 2}, rollingMean([]float64{1, 2}, 1))
}

func TestDetectHeadingRate_Oval(t *testing.T) {
	t.Parallel()

	tr := testutil.BuildTrace(testutil.OvalSections(300, 50), 1.0, testutil.DefaultTraceOptions())
	corners, err := DetectHeadingRate(tr, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, corners, 2)

	for i, c := range corners {
		assert.Equal(t, i+1, c.Number)
		assert.Equal(t, MethodHeadingRate, c.Method)
		assert.Less(t, c.Entry, c.Exit)
		assert.GreaterOrEqual(t, c.Apex, c.Entry)
		assert.Less(t, c.Apex, c.Exit)
		assert.InDelta(t, math.Sqrt(9.80665*50), c.MinSpeed, 1e-6)
		assert.NotNil(t, c.ApexCoord)
		assert.Nil(t, c.Direction)
		require.NotNil(t, c.BrakePoint, "corner %d", c.Number)
		assert.NotNil(t, c.BrakeCoord)
		assert.Less(t, *c.BrakePoint, c.Entry)
		require.NotNil(t, c.PeakBrakeG)
		assert.InDelta(t, -0.9, *c.PeakBrakeG, 1e-3)
		require.NotNil(t, c.ThrottleCommit)
	}

	first := corners[0]
	assert.InDelta(t, 148, first.Entry, 2)
	assert.InDelta(t, 311, first.Exit, 2)
	assert.Equal(t, 150.0, first.Apex)
	// Braking from 50 m/s to the arc speed at 0.9 G starts about 114 m early.
	assert.InDelta(t, 37, *first.BrakePoint, 2)
	assert.InDelta(t, 308, *first.ThrottleCommit, 2)

	// The second corner's brake search starts after the first exit.
	assert.Greater(t, *corners[1].BrakePoint, first.Exit)
}

func TestDetectHeadingRate_StraightIsEmpty(t *testing.T) {
	t.Parallel()

	tr := testutil.StraightTrace(1000, 1.0, testutil.DefaultTraceOptions())
	corners, err := DetectHeadingRate(tr, DefaultConfig())
	require.NoError(t, err)
	assert.NotNil(t, corners)
	assert.Empty(t, corners)
}

func TestDetectFromSegments(t *testing.T) {
	t.Parallel()

	tr := testutil.BuildTrace(testutil.OvalSections(300, 50), 1.0, testutil.DefaultTraceOptions())
	prof, err := l2geometry.ExtractCurvature(tr, l2geometry.DefaultConfig())
	require.NoError(t, err)
	seg, err := l3segments.Run(prof, l3segments.MethodASC, l3segments.DefaultConfig())
	require.NoError(t, err)

	corners, err := Detect(tr, prof, seg, MethodGeometry, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, corners, len(seg.Corners()))
	require.NotEmpty(t, corners)

	for i, c := range corners {
		s := seg.Corners()[i]
		assert.Equal(t, i+1, c.Number)
		assert.Equal(t, MethodGeometry, c.Method)
		assert.Equal(t, s.Entry, c.Entry)
		assert.Equal(t, s.Exit, c.Exit)
		require.NotNil(t, c.Direction)
		assert.Equal(t, l3segments.DirectionLeft, *c.Direction)
		require.NotNil(t, c.PeakCurvature)
		assert.Equal(t, s.PeakCurvature, *c.PeakCurvature)
		require.NotNil(t, c.MeanCurvature)
		assert.GreaterOrEqual(t, c.GeometricApex, c.Entry)
		assert.Less(t, c.GeometricApex, c.Exit)
	}
}

func TestApexType(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name string
		apex int
		want ApexType
	}{
		{"at geometric apex", 150, ApexMid},
		{"within tolerance", 159, ApexMid},
		{"early", 120, ApexEarly},
		{"late", 180, ApexLate},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tr := flatTrace(301)
			tr.Speed[tc.apex] = 20
			signal := make([]float64, 301)
			signal[150] = 1

			corners := []Corner{{Number: 1, Entry: 100, Exit: 200}}
			x := &extractor{trace: tr, signal: signal, cfg: DefaultConfig()}
			x.fill(corners)

			c := corners[0]
			assert.Equal(t, float64(tc.apex), c.Apex)
			assert.Equal(t, 150.0, c.GeometricApex)
			assert.Equal(t, 20.0, c.MinSpeed)
			assert.Equal(t, tc.want, c.ApexType)
		})
	}
}

func TestBrakePoint_PreviousExitClamp(t *testing.T) {
	t.Parallel()

	tr := flatTrace(301)
	tr.Speed[150] = 20
	setRange(tr.LonAccelG, 20, 30, -0.5)
	tr.LonAccelG[25] = -0.8
	setRange(tr.LonAccelG, 90, 96, -0.5)
	signal := make([]float64, 301)
	x := &extractor{trace: tr, signal: signal, cfg: DefaultConfig()}

	free := Corner{Entry: 120, Exit: 200}
	x.extract(&free, math.Inf(-1))
	require.NotNil(t, free.BrakePoint)
	assert.Equal(t, 20.0, *free.BrakePoint)
	assert.Equal(t, -0.8, *free.PeakBrakeG)

	clamped := Corner{Entry: 120, Exit: 200}
	x.extract(&clamped, 60)
	require.NotNil(t, clamped.BrakePoint)
	assert.Equal(t, 90.0, *clamped.BrakePoint)
	assert.Equal(t, -0.5, *clamped.PeakBrakeG)
}

func TestBrakePoint_NoneFound(t *testing.T) {
	t.Parallel()

	tr := flatTrace(301)
	tr.Speed[150] = 20
	setRange(tr.LonAccelG, 90, 96, -0.15)
	corners := []Corner{{Number: 1, Entry: 120, Exit: 200}}
	x := &extractor{trace: tr, signal: make([]float64, 301), cfg: DefaultConfig()}
	x.fill(corners)

	assert.Nil(t, corners[0].BrakePoint)
	assert.Nil(t, corners[0].PeakBrakeG)
	assert.Nil(t, corners[0].BrakeCoord)
	assert.Nil(t, corners[0].ApexCoord, "no GPS on this trace")
}

func TestThrottleCommit(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name  string
		setup func(a []float64)
		want  *float64
	}{
		{
			name: "short burst ignored",
			setup: func(a []float64) {
				setRange(a, 160, 166, 0.3)
				setRange(a, 190, 211, 0.3)
			},
			want: ptr(190),
		},
		{
			name:  "run starting at exit does not count",
			setup: func(a []float64) { setRange(a, 200, 230, 0.3) },
		},
		{
			name:  "threshold is exclusive",
			setup: func(a []float64) { setRange(a, 160, 200, 0.1) },
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tr := flatTrace(301)
			tr.Speed[150] = 20
			tc.setup(tr.LonAccelG)
			corners := []Corner{{Number: 1, Entry: 100, Exit: 200}}
			x := &extractor{trace: tr, signal: make([]float64, 301), cfg: DefaultConfig()}
			x.fill(corners)
			if diff := cmp.Diff(tc.want, corners[0].ThrottleCommit); diff != "" {
				t.Errorf("throttle commit mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func ptr(v float64) *float64 { return &v }

func TestExtractLapKPIs_RoundTrip(t *testing.T) {
	t.Parallel()

	tr := testutil.BuildTrace(testutil.OvalSections(300, 50), 1.0, testutil.DefaultTraceOptions())

	t.Run("heading rate", func(t *testing.T) {
		t.Parallel()
		corners, err := DetectHeadingRate(tr, DefaultConfig())
		require.NoError(t, err)
		again, err := ExtractLapKPIs(tr, corners, DefaultConfig())
		require.NoError(t, err)
		if diff := cmp.Diff(corners, again); diff != "" {
			t.Errorf("re-extraction differs (-detected +re-extracted):\n%s", diff)
		}
	})

	t.Run("geometry", func(t *testing.T) {
		t.Parallel()
		prof, err := l2geometry.ExtractCurvature(tr, l2geometry.DefaultConfig())
		require.NoError(t, err)
		seg, err := l3segments.Run(prof, l3segments.MethodCSS, l3segments.DefaultConfig())
		require.NoError(t, err)
		corners, err := DetectFromSegments(tr, prof, seg, DefaultConfig())
		require.NoError(t, err)
		again, err := ExtractLapKPIsWithProfile(tr, prof, corners, DefaultConfig())
		require.NoError(t, err)
		if diff := cmp.Diff(corners, again); diff != "" {
			t.Errorf("re-extraction differs (-detected +re-extracted):\n%s", diff)
		}
	})
}

func TestExtractLapKPIs_OtherLap(t *testing.T) {
	t.Parallel()

	sections := testutil.OvalSections(300, 50)
	ref := testutil.BuildTrace(sections, 1.0, testutil.DefaultTraceOptions())
	corners, err := DetectHeadingRate(ref, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, corners, 2)

	slower := testutil.DefaultTraceOptions()
	slower.LateralG = 0.8
	other := testutil.BuildTrace(sections, 1.0, slower)

	got, err := ExtractLapKPIs(other, corners, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, got, 2)
	for i, c := range got {
		assert.Equal(t, corners[i].Number, c.Number)
		assert.Equal(t, corners[i].Entry, c.Entry)
		assert.Equal(t, corners[i].Exit, c.Exit)
		assert.InDelta(t, math.Sqrt(0.8*9.80665*50), c.MinSpeed, 1e-6)
		assert.Less(t, c.MinSpeed, corners[i].MinSpeed)
	}
}

func TestExtractLapKPIs_RecomputesGeometricApex(t *testing.T) {
	t.Parallel()

	tr := testutil.BuildTrace(testutil.OvalSections(300, 50), 1.0, testutil.DefaultTraceOptions())
	corners, err := DetectHeadingRate(tr, DefaultConfig())
	require.NoError(t, err)
	require.NotEmpty(t, corners)

	stale := make([]Corner, len(corners))
	copy(stale, corners)
	for i := range stale {
		stale[i].GeometricApex = stale[i].Entry
		stale[i].ApexType = ApexLate
	}

	got, err := ExtractLapKPIs(tr, stale, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, got, len(corners))
	for i, c := range got {
		assert.Equal(t, corners[i].GeometricApex, c.GeometricApex, "corner %d", c.Number)
		assert.Equal(t, corners[i].ApexType, c.ApexType, "corner %d", c.Number)
	}
}

func TestExtractLapKPIs_SkipsCornersPastLapEnd(t *testing.T) {
	t.Parallel()

	tr := testutil.BuildTrace(testutil.OvalSections(300, 50), 1.0, testutil.DefaultTraceOptions())
	corners, err := DetectHeadingRate(tr, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, corners, 2)

	short := truncate(tr, 500)
	got, err := ExtractLapKPIs(short, corners, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Number)
	assert.Equal(t, corners[0].Apex, got[0].Apex)
}
