package download

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rionegro-oan/matchup-cli/internal/model"
)

// KindCounts tallies outcomes for one asset kind.
type KindCounts struct {
	Skipped   int `json:"skipped"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Report summarizes one download run: per-kind counts plus the failing
// identifiers with their causes, enough to re-run only the failed subset.
type Report struct {
	RunID       string                         `json:"run_id"`
	StartedAt   time.Time                      `json:"started_at"`
	FinishedAt  time.Time                      `json:"finished_at"`
	QueryParams model.QueryParams              `json:"query_params"`
	Counts      map[model.AssetKind]KindCounts `json:"counts"`
	Records     []model.DownloadRecord         `json:"records"`
}

func newReport(params model.QueryParams) *Report {
	return &Report{
		RunID:       uuid.NewString(),
		StartedAt:   time.Now().UTC(),
		QueryParams: params,
		Counts:      make(map[model.AssetKind]KindCounts),
	}
}

func (r *Report) add(rec model.DownloadRecord) {
	r.Records = append(r.Records, rec)

	c := r.Counts[rec.Kind]
	switch rec.Status {
	case model.DownloadSkipped:
		c.Skipped++
	case model.DownloadSucceeded:
		c.Succeeded++
	case model.DownloadFailed:
		c.Failed++
	}
	r.Counts[rec.Kind] = c
}

func (r *Report) finish() {
	r.FinishedAt = time.Now().UTC()
	sort.Slice(r.Records, func(i, j int) bool {
		if r.Records[i].ProductID != r.Records[j].ProductID {
			return r.Records[i].ProductID < r.Records[j].ProductID
		}
		return r.Records[i].Kind < r.Records[j].Kind
	})
}

// Failures returns the failed records only.
func (r *Report) Failures() []model.DownloadRecord {
	var out []model.DownloadRecord
	for _, rec := range r.Records {
		if rec.Status == model.DownloadFailed {
			out = append(out, rec)
		}
	}
	return out
}

// TotalFailed returns the failure count across asset kinds.
func (r *Report) TotalFailed() int {
	n := 0
	for _, c := range r.Counts {
		n += c.Failed
	}
	return n
}

// Format renders a human-readable run summary.
func (r *Report) Format() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Download Report %s\n", r.RunID)
	fmt.Fprintf(&b, "Duration: %s\n\n", r.FinishedAt.Sub(r.StartedAt).Round(time.Second))

	b.WriteString("## Summary\n")
	kinds := make([]model.AssetKind, 0, len(r.Counts))
	for k := range r.Counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		c := r.Counts[k]
		fmt.Fprintf(&b, "- %s: %d succeeded, %d skipped (already present), %d failed\n",
			k, c.Succeeded, c.Skipped, c.Failed)
	}

	failures := r.Failures()
	if len(failures) > 0 {
		b.WriteString("\n## Failures\n")
		for _, f := range failures {
			fmt.Fprintf(&b, "- %s [%s]: %s\n", f.ProductID, f.Kind, f.Error)
		}
	}

	return b.String()
}
