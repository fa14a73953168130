package pipeline

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rionegro-oan/matchup-cli/internal/catalog"
	"github.com/rionegro-oan/matchup-cli/internal/download"
	"github.com/rionegro-oan/matchup-cli/internal/fielddata"
	"github.com/rionegro-oan/matchup-cli/internal/model"
)

// Mode selects which pipeline stages a run executes.
type Mode string

const (
	// ModeCatalog queries, reconciles and persists the catalog, then stops.
	ModeCatalog Mode = "catalog"
	// ModeDownload loads an existing catalog and fetches its assets.
	ModeDownload Mode = "download"
	// ModeAll runs catalog then download in sequence.
	ModeAll Mode = "all"
)

// Driver wires the stages together. No state persists across invocations
// beyond the catalog file and the downloaded assets, so every mode is safely
// re-runnable.
type Driver struct {
	Builder      *Builder
	Orchestrator *download.Orchestrator

	// InputPath is the field-sample table (required for catalog and all).
	InputPath string

	// CatalogPath is where the catalog document lives.
	CatalogPath string

	// Download holds the download-stage options (for download and all).
	Download download.Options

	// Replace discards previously resolved entries instead of merging the
	// fresh run into the existing catalog.
	Replace bool
}

// Result is what a run produced, for reporting at the CLI boundary.
type Result struct {
	Catalog *model.Catalog
	Report  *download.Report
}

// Run executes the selected mode.
func (d *Driver) Run(ctx context.Context, mode Mode) (*Result, error) {
	switch mode {
	case ModeCatalog:
		cat, err := d.runCatalog(ctx)
		return &Result{Catalog: cat}, err

	case ModeDownload:
		cat, err := catalog.Load(d.CatalogPath)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return nil, eris.Wrapf(err, "pipeline: no catalog at %s, run catalog mode first", d.CatalogPath)
			}
			return nil, err
		}
		report, err := d.Orchestrator.Run(ctx, cat, d.Download)
		return &Result{Catalog: cat, Report: report}, err

	case ModeAll:
		cat, err := d.runCatalog(ctx)
		if err != nil {
			return &Result{Catalog: cat}, err
		}
		report, err := d.Orchestrator.Run(ctx, cat, d.Download)
		return &Result{Catalog: cat, Report: report}, err

	default:
		return nil, eris.Errorf("pipeline: unknown mode %q", mode)
	}
}

// runCatalog executes the catalog stage: read samples, query and reconcile,
// merge with any prior catalog, and persist atomically.
func (d *Driver) runCatalog(ctx context.Context) (*model.Catalog, error) {
	samples, err := fielddata.ReadFile(d.InputPath)
	if err != nil {
		return nil, err
	}

	cat, err := d.Builder.BuildCatalog(ctx, samples)
	if err != nil {
		return cat, err
	}

	if !d.Replace {
		existing, loadErr := catalog.Load(d.CatalogPath)
		switch {
		case loadErr == nil:
			cat = catalog.Merge(existing, cat)
		case errors.Is(loadErr, catalog.ErrNotFound):
			// first run
		default:
			// A corrupt prior catalog must not be silently replaced.
			return nil, loadErr
		}
	}

	if err := catalog.Save(cat, d.CatalogPath); err != nil {
		return cat, err
	}

	zap.L().Info("catalog stage complete",
		zap.String("path", d.CatalogPath),
		zap.Int("entries", len(cat.Entries)),
	)
	return cat, nil
}
