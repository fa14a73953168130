package source

import (
	"context"

	"go.uber.org/zap"

	"github.com/rionegro-oan/matchup-cli/internal/config"
	"github.com/rionegro-oan/matchup-cli/internal/fetcher"
	"github.com/rionegro-oan/matchup-cli/internal/model"
)

// cdsePrefs maps CDSE STAC asset keys. L1C items expose the full SAFE archive
// under the "data" asset; there is no classification raster at this level.
var cdsePrefs = assetPreference{
	model.AssetProduct: {"data", "product"},
}

// CDSEAdapter queries the Copernicus Data Space STAC catalog for
// pre-atmospheric-correction (L1C) products.
type CDSEAdapter struct {
	client     *stacClient
	collection string
}

// NewCDSEAdapter builds the CDSE adapter. The fetcher must already be
// configured with the CDSE bearer-token authorizer; credentials never reach
// this package.
func NewCDSEAdapter(cfg config.CDSEConfig, f *fetcher.HTTPFetcher) *CDSEAdapter {
	return &CDSEAdapter{
		client:     newSTACClient(model.SourceCDSE, cfg.BaseURL, f),
		collection: cfg.Collection,
	}
}

// Name identifies the backing source.
func (a *CDSEAdapter) Name() model.Source { return model.SourceCDSE }

// Search returns normalized L1C acquisition records in the query window.
func (a *CDSEAdapter) Search(ctx context.Context, q Query) ([]model.AcquisitionRecord, error) {
	items, err := a.client.search(ctx, buildSearchBody(q, a.collection))
	if err != nil {
		return nil, err
	}

	records := make([]model.AcquisitionRecord, 0, len(items))
	for _, item := range items {
		rec, err := normalizeItem(item, model.SourceCDSE, model.LevelL1C, cdsePrefs)
		if err != nil {
			zap.L().Warn("skipping unnormalizable cdse item", zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}
