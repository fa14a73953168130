package model

import "time"

// CatalogVersion is bumped when the on-disk catalog layout changes.
const CatalogVersion = 1

// SourceState records whether a catalog backend answered for one sample.
type SourceState string

const (
	SourceOK     SourceState = "ok"
	SourceFailed SourceState = "failed"
)

// CatalogEntry maps one field sample to its ranked candidate acquisitions.
// Candidates are ordered best-first: ascending time distance to the sample
// date, then ascending cloud cover. An empty candidate list is a valid
// outcome (no overpass in the window).
type CatalogEntry struct {
	Sample FieldSample `json:"sample"`

	// Per-source health for this entry. Both present and "ok" on a clean
	// query; a "failed" state marks the entry as degraded without hiding
	// which backend was lost.
	SourceStates map[Source]SourceState `json:"source_states"`

	Candidates []AcquisitionRecord `json:"candidates"`
}

// Degraded reports whether at least one source failed for this entry.
func (e CatalogEntry) Degraded() bool {
	for _, st := range e.SourceStates {
		if st == SourceFailed {
			return true
		}
	}
	return false
}

// Unavailable reports whether every source failed for this entry.
func (e CatalogEntry) Unavailable() bool {
	if len(e.SourceStates) == 0 {
		return false
	}
	for _, st := range e.SourceStates {
		if st != SourceFailed {
			return false
		}
	}
	return true
}

// QueryParams pins the parameters a catalog was built with, for
// reproducibility checks on re-runs.
type QueryParams struct {
	TimeDeltaDays int     `json:"time_delta_days"`
	MaxCloudCover float64 `json:"max_cloud_cover"`
}

// Catalog is the persisted matchup result: one entry per field sample, in
// input order.
type Catalog struct {
	Version     int            `json:"version"`
	CreatedAt   time.Time      `json:"created_at"`
	QueryParams QueryParams    `json:"query_params"`
	Entries     []CatalogEntry `json:"entries"`
}

// Entry returns the entry for the given sample key, if present.
func (c *Catalog) Entry(key string) (CatalogEntry, bool) {
	for _, e := range c.Entries {
		if e.Sample.Key() == key {
			return e, true
		}
	}
	return CatalogEntry{}, false
}
