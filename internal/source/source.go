// Package source queries the two remote satellite catalogs (Copernicus Data
// Space and AWS Earth Search) and normalizes their STAC items into common
// acquisition records.
package source

import (
	"context"
	"time"

	"github.com/rionegro-oan/matchup-cli/internal/model"
)

// Query is one spatio-temporal catalog search around a field sample.
type Query struct {
	// Point is the sample location (lon, lat). Used for the search and for
	// footprint containment downstream.
	Lon float64
	Lat float64

	// AOI optionally widens the search to a bounding box around the point.
	AOI *model.BBox

	// Date is the field sample date; the window is [Date-Δ, Date+Δ] inclusive.
	Date          time.Time
	TimeDeltaDays int

	// MaxCloudCover is the cloud ceiling in percent. Records with unknown
	// cloud cover are retained regardless.
	MaxCloudCover float64
}

// Adapter wraps one remote catalog search API. Implementations return
// normalized records already filtered to the temporal window and cloud
// ceiling, and fail with resilience.SourceUnavailableError on transport or
// auth errors.
type Adapter interface {
	// Name identifies the backing source.
	Name() model.Source

	// Search returns acquisition records matching the query.
	Search(ctx context.Context, q Query) ([]model.AcquisitionRecord, error)
}
