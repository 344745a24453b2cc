package l1trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadCSV parses a lap trace from CSV with a header row. Columns are matched
// by name (case-insensitive) against the Channel* constants; unknown columns
// are ignored and only distance_m is mandatory. Empty cells in an optional
// channel are rejected so a channel is either complete or absent.
func ReadCSV(r io.Reader) (*LapTrace, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read trace CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%w: trace CSV has no data rows", ErrInvalidTrace)
	}

	header := records[0]
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols[ChannelDistance]; !ok {
		return nil, fmt.Errorf("%w: %s column", ErrMissingChannel, ChannelDistance)
	}

	rows := records[1:]
	column := func(name string) ([]float64, error) {
		idx, ok := cols[name]
		if !ok {
			return nil, nil
		}
		out := make([]float64, len(rows))
		for i, rec := range rows {
			if idx >= len(rec) {
				return nil, fmt.Errorf("%w: line %d has no %s field", ErrInvalidTrace, i+2, name)
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[idx]), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid %s at line %d: %w", name, i+2, err)
			}
			out[i] = v
		}
		return out, nil
	}

	t := &LapTrace{}
	targets := []struct {
		name string
		dst  *[]float64
	}{
		{ChannelDistance, &t.Distance},
		{ChannelTime, &t.Time},
		{ChannelSpeed, &t.Speed},
		{ChannelHeading, &t.Heading},
		{ChannelLat, &t.Lat},
		{ChannelLon, &t.Lon},
		{ChannelLatAccel, &t.LatAccelG},
		{ChannelLonAccel, &t.LonAccelG},
		{ChannelAltitude, &t.Altitude},
	}
	for _, tg := range targets {
		vals, err := column(tg.name)
		if err != nil {
			return nil, err
		}
		*tg.dst = vals
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// WriteCSV writes the present channels of t with a header row. It is the
// inverse of ReadCSV.
func WriteCSV(w io.Writer, t *LapTrace) error {
	type col struct {
		name string
		vals []float64
	}
	all := []col{
		{ChannelDistance, t.Distance},
		{ChannelTime, t.Time},
		{ChannelSpeed, t.Speed},
		{ChannelHeading, t.Heading},
		{ChannelLat, t.Lat},
		{ChannelLon, t.Lon},
		{ChannelLatAccel, t.LatAccelG},
		{ChannelLonAccel, t.LonAccelG},
		{ChannelAltitude, t.Altitude},
	}
	var present []col
	for _, c := range all {
		if len(c.vals) > 0 {
			present = append(present, c)
		}
	}

	cw := csv.NewWriter(w)
	header := make([]string, len(present))
	for i, c := range present {
		header[i] = c.name
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(present))
	for i := 0; i < t.Len(); i++ {
		for j, c := range present {
			row[j] = strconv.FormatFloat(c.vals[i], 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
