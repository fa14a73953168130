package model

import (
	"math"
	"time"
)

// Source identifies which remote catalog reported an acquisition.
type Source string

const (
	// SourceCDSE is the Copernicus Data Space STAC catalog (L1C products).
	SourceCDSE Source = "cdse"
	// SourceEarthSearch is the AWS Earth Search STAC catalog (L2A products
	// with per-pixel scene classification).
	SourceEarthSearch Source = "earth-search"
)

// Level is the processing level of a product.
type Level string

const (
	LevelL1C Level = "L1C"
	LevelL2A Level = "L2A"
)

// AssetKind names a downloadable asset of an acquisition.
type AssetKind string

const (
	// AssetProduct is the full product archive.
	AssetProduct AssetKind = "product"
	// AssetMask is the scene-classification (SCL) raster of a corrected product.
	AssetMask AssetKind = "mask"
	// AssetL1CProduct is the uncorrected product of the paired record from the
	// other catalog, carried on a merged candidate.
	AssetL1CProduct AssetKind = "l1c-product"
)

// BBox is a WGS84 bounding box.
type BBox struct {
	MinLon float64 `json:"min_lon"`
	MinLat float64 `json:"min_lat"`
	MaxLon float64 `json:"max_lon"`
	MaxLat float64 `json:"max_lat"`
}

// Contains reports whether the point lies inside the box (inclusive).
func (b BBox) Contains(lon, lat float64) bool {
	return lon >= b.MinLon && lon <= b.MaxLon && lat >= b.MinLat && lat <= b.MaxLat
}

// Intersects reports whether two boxes overlap.
func (b BBox) Intersects(o BBox) bool {
	return b.MinLon <= o.MaxLon && b.MaxLon >= o.MinLon &&
		b.MinLat <= o.MaxLat && b.MaxLat >= o.MinLat
}

// Footprint is the geographic coverage of one acquisition: always a bbox,
// plus the exact polygon ring when the source provided one. The ring is a
// closed sequence of lon/lat pairs in WGS84.
type Footprint struct {
	BBox BBox        `json:"bbox"`
	Ring [][]float64 `json:"ring,omitempty"`
}

// AcquisitionRecord is the normalized form of one raw source record.
// Never mutated after normalization, except for asset-ref merging during
// cross-source pairing in the reconciler.
type AcquisitionRecord struct {
	Source     Source               `json:"source"`
	ProductID  string               `json:"product_id"`
	Platform   string               `json:"platform"`
	AcquiredAt time.Time            `json:"acquired_at"`
	CloudCover *float64             `json:"cloud_cover,omitempty"` // nil = unknown
	Footprint  Footprint            `json:"footprint"`
	Level      Level                `json:"level"`
	AssetRefs  map[AssetKind]string `json:"asset_refs"`

	// Back-reference to the other source's record when this candidate was
	// merged from a cross-source pair.
	PairedSource    Source `json:"paired_source,omitempty"`
	PairedProductID string `json:"paired_product_id,omitempty"`

	// DeltaDays is the whole-day distance to the field sample date, recorded
	// at reconcile time for the catalog report.
	DeltaDays int `json:"delta_days"`
}

// CloudKnown reports whether the source reported a cloud cover value.
func (r AcquisitionRecord) CloudKnown() bool { return r.CloudCover != nil }

// TimeDelta returns the absolute distance between the acquisition time and
// the given sample date.
func (r AcquisitionRecord) TimeDelta(sampleDate time.Time) time.Duration {
	d := r.AcquiredAt.Sub(sampleDate)
	if d < 0 {
		d = -d
	}
	return d
}

// DayDelta returns TimeDelta rounded down to whole days.
func (r AcquisitionRecord) DayDelta(sampleDate time.Time) int {
	return int(math.Floor(r.TimeDelta(sampleDate).Hours() / 24))
}
