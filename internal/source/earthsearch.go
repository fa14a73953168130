package source

import (
	"context"

	"go.uber.org/zap"

	"github.com/rionegro-oan/matchup-cli/internal/config"
	"github.com/rionegro-oan/matchup-cli/internal/fetcher"
	"github.com/rionegro-oan/matchup-cli/internal/model"
)

// earthSearchPrefs maps Earth Search L2A asset keys. The scene classification
// raster rides along as the "scl" asset.
var earthSearchPrefs = assetPreference{
	model.AssetProduct: {"product", "data", "visual"},
	model.AssetMask:    {"scl"},
}

// EarthSearchAdapter queries the AWS Earth Search STAC catalog for corrected
// (L2A) products with per-pixel scene classification.
type EarthSearchAdapter struct {
	client     *stacClient
	collection string
}

// NewEarthSearchAdapter builds the Earth Search adapter. Earth Search is an
// open endpoint; no authorizer is required.
func NewEarthSearchAdapter(cfg config.EarthSearchConfig, f *fetcher.HTTPFetcher) *EarthSearchAdapter {
	return &EarthSearchAdapter{
		client:     newSTACClient(model.SourceEarthSearch, cfg.BaseURL, f),
		collection: cfg.Collection,
	}
}

// Name identifies the backing source.
func (a *EarthSearchAdapter) Name() model.Source { return model.SourceEarthSearch }

// Search returns normalized L2A acquisition records in the query window.
func (a *EarthSearchAdapter) Search(ctx context.Context, q Query) ([]model.AcquisitionRecord, error) {
	items, err := a.client.search(ctx, buildSearchBody(q, a.collection))
	if err != nil {
		return nil, err
	}

	records := make([]model.AcquisitionRecord, 0, len(items))
	for _, item := range items {
		rec, err := normalizeItem(item, model.SourceEarthSearch, model.LevelL2A, earthSearchPrefs)
		if err != nil {
			zap.L().Warn("skipping unnormalizable earth-search item", zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
