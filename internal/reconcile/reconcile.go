// Package reconcile merges the two catalogs' normalized acquisitions for one
// field sample into a single ranked, deduplicated candidate list.
//
// The two sources report the same physical satellite pass under unrelated
// identifier schemes, so pairing is a tolerance-based join on platform and
// acquisition time, never an identifier comparison.
package reconcile

import (
	"sort"
	"time"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"go.uber.org/zap"

	"github.com/rionegro-oan/matchup-cli/internal/model"
)

// DefaultPairTolerance is the same-orbit tolerance: two records from
// different sources within this window and on the same platform describe one
// physical acquisition.
const DefaultPairTolerance = 5 * time.Minute

// Options tunes reconciliation policy.
type Options struct {
	// PairTolerance is the cross-source same-acquisition time tolerance.
	// Zero means DefaultPairTolerance.
	PairTolerance time.Duration

	// OnlyFirst truncates the ranked list to the single best candidate.
	OnlyFirst bool

	// TimeDeltaDays and MaxCloudCover re-apply the query window locally, so
	// the catalog honors them even when a backend ignored a filter.
	TimeDeltaDays int
	MaxCloudCover float64

	// AOI, when set, accepts records whose footprint intersects the box
	// instead of requiring point containment.
	AOI *model.BBox
}

// Input carries one sample's per-source query outcome.
type Input struct {
	// Records holds normalized acquisitions per source.
	Records map[model.Source][]model.AcquisitionRecord

	// Failed marks sources that were unavailable for this sample.
	Failed map[model.Source]error
}

// Reconcile builds the catalog entry for one field sample.
func Reconcile(sample model.FieldSample, in Input, opts Options) model.CatalogEntry {
	if opts.PairTolerance <= 0 {
		opts.PairTolerance = DefaultPairTolerance
	}

	entry := model.CatalogEntry{
		Sample:       sample,
		SourceStates: sourceStates(in),
		Candidates:   []model.AcquisitionRecord{},
	}

	primaries := accept(in.Records[model.SourceEarthSearch], sample, opts)
	secondaries := accept(in.Records[model.SourceCDSE], sample, opts)

	merged, leftover := pair(primaries, secondaries, opts.PairTolerance)
	merged = append(merged, leftover...)

	rank(merged, sample)
	for i := range merged {
		merged[i].DeltaDays = merged[i].DayDelta(sample.Date)
	}

	if opts.OnlyFirst && len(merged) > 1 {
		merged = merged[:1]
	}
	if merged != nil {
		entry.Candidates = merged
	}

	zap.L().Debug("sample reconciled",
		zap.String("sample", sample.Key()),
		zap.Int("candidates", len(merged)),
		zap.Bool("degraded", entry.Degraded()),
	)
	return entry
}

func sourceStates(in Input) map[model.Source]model.SourceState {
	states := make(map[model.Source]model.SourceState, 2)
	for _, src := range []model.Source{model.SourceCDSE, model.SourceEarthSearch} {
		if _, failed := in.Failed[src]; failed {
			states[src] = model.SourceFailed
		} else {
			states[src] = model.SourceOK
		}
	}
	return states
}

// accept filters one source's records to those covering the sample point (or
// intersecting the AOI), inside the temporal window, and under the cloud
// ceiling (unknown cloud cover is retained), dropping within-source
// duplicates by product id.
func accept(records []model.AcquisitionRecord, sample model.FieldSample, opts Options) []model.AcquisitionRecord {
	start, end := sample.Window(opts.TimeDeltaDays)

	var out []model.AcquisitionRecord
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if seen[r.ProductID] {
			continue
		}
		if r.AcquiredAt.Before(start) || r.AcquiredAt.After(end) {
			continue
		}
		if r.CloudKnown() && opts.MaxCloudCover > 0 && *r.CloudCover > opts.MaxCloudCover {
			continue
		}
		if !covers(r.Footprint, sample, opts.AOI) {
			continue
		}
		seen[r.ProductID] = true
		out = append(out, r)
	}
	return out
}

// covers reports whether the footprint contains the sample point. When the
// exact polygon ring is available the point-in-ring test is used; otherwise
// the bbox decides. With an AOI, bbox intersection is sufficient.
func covers(fp model.Footprint, sample model.FieldSample, aoi *model.BBox) bool {
	if aoi != nil {
		return fp.BBox.Intersects(*aoi)
	}
	if len(fp.Ring) >= 3 {
		flat := make([]float64, 0, len(fp.Ring)*2)
		for _, p := range fp.Ring {
			flat = append(flat, p[0], p[1])
		}
		return xy.IsPointInRing(geom.XY, geom.Coord{sample.Longitude, sample.Latitude}, flat)
	}
	return fp.BBox.Contains(sample.Longitude, sample.Latitude)
}

// pair joins corrected-product records against the other source. A primary
// and a secondary describe the same physical pass when their platforms match
// and their acquisition times differ by less than the tolerance. The merged
// candidate keeps the corrected record (richer assets, notably the
// classification mask) and carries the other source's product href plus a
// back-reference. Each secondary pairs at most once, so a pass is never
// double-counted.
func pair(primaries, secondaries []model.AcquisitionRecord, tolerance time.Duration) (merged, leftover []model.AcquisitionRecord) {
	used := make([]bool, len(secondaries))

	for _, p := range primaries {
		matched := -1
		best := tolerance
		for i, s := range secondaries {
			if used[i] || s.Platform != p.Platform {
				continue
			}
			delta := p.AcquiredAt.Sub(s.AcquiredAt)
			if delta < 0 {
				delta = -delta
			}
			if delta < best {
				best = delta
				matched = i
			}
		}

		if matched >= 0 {
			used[matched] = true
			merged = append(merged, merge(p, secondaries[matched]))
		} else {
			merged = append(merged, p)
		}
	}

	for i, s := range secondaries {
		if !used[i] {
			leftover = append(leftover, s)
		}
	}
	return merged, leftover
}

// merge copies the primary and attaches the secondary's product asset and
// identity so both archives can be fetched from one candidate.
func merge(primary, secondary model.AcquisitionRecord) model.AcquisitionRecord {
	out := primary
	out.AssetRefs = make(map[model.AssetKind]string, len(primary.AssetRefs)+1)
	for k, v := range primary.AssetRefs {
		out.AssetRefs[k] = v
	}
	if href := secondary.AssetRefs[model.AssetProduct]; href != "" {
		out.AssetRefs[model.AssetL1CProduct] = href
	}
	out.PairedSource = secondary.Source
	out.PairedProductID = secondary.ProductID
	return out
}

// rank sorts best-first: nearest to the sample date, then clearest sky
// (unknown cloud cover last), then product id for a stable final order.
func rank(records []model.AcquisitionRecord, sample model.FieldSample) {
	sort.SliceStable(records, func(i, j int) bool {
		di, dj := records[i].TimeDelta(sample.Date), records[j].TimeDelta(sample.Date)
		if di != dj {
			return di < dj
		}
		ci, cj := records[i].CloudCover, records[j].CloudCover
		switch {
		case ci != nil && cj != nil && *ci != *cj:
			return *ci < *cj
		case ci != nil && cj == nil:
			return true
		case ci == nil && cj != nil:
			return false
		}
		return records[i].ProductID < records[j].ProductID
	})
}
