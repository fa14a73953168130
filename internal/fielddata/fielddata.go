// Package fielddata reads the ground-truth measurement table produced by the
// upstream organizing step: one row per field sample with date, latitude and
// longitude columns.
package fielddata

import (
	"encoding/csv"
	"io"
	"os"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rionegro-oan/matchup-cli/internal/model"
	"github.com/rionegro-oan/matchup-cli/internal/resilience"
)

// row mirrors the input table schema. Column order does not matter; the
// header row binds columns to fields.
type row struct {
	Date      string  `csv:"date"`
	Latitude  float64 `csv:"latitude"`
	Longitude float64 `csv:"longitude"`
}

// ReadFile loads and validates field samples from a CSV file.
func ReadFile(path string) ([]model.FieldSample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "fielddata: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	samples, err := Read(f)
	if err != nil {
		return nil, err
	}

	zap.L().Info("field samples loaded",
		zap.String("path", path),
		zap.Int("samples", len(samples)),
	)
	return samples, nil
}

// Read parses field samples from CSV data. The header must contain the
// date, latitude and longitude columns; duplicate sample identities (same
// date and coordinates at 4-decimal precision) are collapsed, preserving
// first-seen order. Schema or value problems are fatal and reported before
// any network activity.
func Read(r io.Reader) ([]model.FieldSample, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	dec, err := csvutil.NewDecoder(cr)
	if err != nil {
		if err == io.EOF {
			return nil, &resilience.InvalidInputError{Reason: "empty input table"}
		}
		return nil, eris.Wrap(err, "fielddata: read header")
	}

	if err := checkHeader(dec.Header()); err != nil {
		return nil, err
	}

	var samples []model.FieldSample
	seen := make(map[string]bool)
	line := 1
	for {
		var rec row
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return nil, &resilience.InvalidInputError{
				Reason: eris.Wrapf(err, "row %d", line).Error(),
			}
		}
		line++

		s, err := toSample(rec)
		if err != nil {
			return nil, &resilience.InvalidInputError{
				Reason: eris.Wrapf(err, "row %d", line).Error(),
			}
		}

		if seen[s.Key()] {
			continue
		}
		seen[s.Key()] = true
		samples = append(samples, s)
	}

	if len(samples) == 0 {
		return nil, &resilience.InvalidInputError{Reason: "no samples in input table"}
	}
	return samples, nil
}

func checkHeader(header []string) error {
	required := map[string]bool{"date": false, "latitude": false, "longitude": false}
	for _, col := range header {
		if _, ok := required[col]; ok {
			required[col] = true
		}
	}
	for col, found := range required {
		if !found {
			return &resilience.InvalidInputError{Reason: "missing required column " + col}
		}
	}
	return nil
}

func toSample(rec row) (model.FieldSample, error) {
	date, err := time.ParseInLocation(model.DateLayout, rec.Date, time.UTC)
	if err != nil {
		return model.FieldSample{}, eris.Wrapf(err, "parse date %q", rec.Date)
	}
	if rec.Latitude < -90 || rec.Latitude > 90 {
		return model.FieldSample{}, eris.Errorf("latitude %v out of range", rec.Latitude)
	}
	if rec.Longitude < -180 || rec.Longitude > 180 {
		return model.FieldSample{}, eris.Errorf("longitude %v out of range", rec.Longitude)
	}
	return model.FieldSample{
		Date:      date,
		Latitude:  rec.Latitude,
		Longitude: rec.Longitude,
	}, nil
}
