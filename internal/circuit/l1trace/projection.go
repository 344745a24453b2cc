package l1trace

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// EarthRadius is the mean Earth radius (m) used by the local projection.
const EarthRadius = 6371008.8

// ProjectLocal projects latitude/longitude onto a local tangent plane using
// an equirectangular approximation around the mean latitude. The first
// sample becomes the origin; X points east and Y points north (m).
func (t *LapTrace) ProjectLocal() (x, y []float64, err error) {
	if !t.HasPosition() {
		return nil, nil, fmt.Errorf("%w: %s/%s", ErrMissingChannel, ChannelLat, ChannelLon)
	}
	n := len(t.Lat)
	var sumLat float64
	for _, lat := range t.Lat {
		sumLat += lat
	}
	meanLat := sumLat / float64(n) * math.Pi / 180
	cosLat := math.Cos(meanLat)

	lat0 := t.Lat[0] * math.Pi / 180
	lon0 := t.Lon[0] * math.Pi / 180
	x = make([]float64, n)
	y = make([]float64, n)
	for i := 0; i < n; i++ {
		lat := t.Lat[i] * math.Pi / 180
		lon := t.Lon[i] * math.Pi / 180
		x[i] = EarthRadius * (lon - lon0) * cosLat
		y[i] = EarthRadius * (lat - lat0)
	}
	return x, y, nil
}

// Coordinate returns the GPS position at index i as an orb point
// (longitude, latitude). ok is false when position is absent or i is out
// of range.
func (t *LapTrace) Coordinate(i int) (orb.Point, bool) {
	if !t.HasPosition() || i < 0 || i >= len(t.Lat) {
		return orb.Point{}, false
	}
	return orb.Point{t.Lon[i], t.Lat[i]}, true
}

// Path returns the GPS positions as a line string, or nil without position.
func (t *LapTrace) Path() orb.LineString {
	if !t.HasPosition() {
		return nil
	}
	ls := make(orb.LineString, len(t.Lat))
	for i := range t.Lat {
		ls[i] = orb.Point{t.Lon[i], t.Lat[i]}
	}
	return ls
}

// Bounds returns the GPS bounding box of the lap.
func (t *LapTrace) Bounds() (orb.Bound, bool) {
	ls := t.Path()
	if len(ls) == 0 {
		return orb.Bound{}, false
	}
	return ls.Bound(), true
}

// GPSPathLength returns the geodesic length of the GPS path (m). It is a
// cross-check for the distance channel.
func (t *LapTrace) GPSPathLength() (float64, bool) {
	ls := t.Path()
	if len(ls) < 2 {
		return 0, false
	}
	return geo.Length(ls), true
}
