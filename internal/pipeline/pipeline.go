// Package pipeline sequences the matchup stages: query both catalogs per
// field sample, reconcile candidates, persist the catalog, and drive asset
// downloads. Three entry modes are exposed: catalog-only, download-only, and
// end-to-end.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rionegro-oan/matchup-cli/internal/model"
	"github.com/rionegro-oan/matchup-cli/internal/reconcile"
	"github.com/rionegro-oan/matchup-cli/internal/resilience"
	"github.com/rionegro-oan/matchup-cli/internal/source"
)

// Builder turns field samples into a reconciled catalog.
type Builder struct {
	// Adapters are the catalog backends to fan out to, one query task per
	// (sample, adapter).
	Adapters []source.Adapter

	// Concurrency bounds simultaneous catalog queries. Default 4.
	Concurrency int

	// Retry bounds per-query attempts for transient failures.
	Retry resilience.RetryConfig

	// Reconcile is the per-sample ranking and pairing policy.
	Reconcile reconcile.Options

	// AOI optionally widens every query to a bounding box.
	AOI *model.BBox

	// Now is injectable for deterministic catalog timestamps in tests.
	// Defaults to time.Now.
	Now func() time.Time
}

// queryResult is one (sample, source) outcome, indexed back to its sample.
type queryResult struct {
	sampleIdx int
	src       model.Source
	records   []model.AcquisitionRecord
	err       error
}

// BuildCatalog queries every adapter for every sample concurrently and
// reconciles the results into a catalog whose entry order follows the input
// sample order regardless of completion order. Per-source failures degrade
// the affected entries; the build only fails as a whole when no source
// answered for any sample.
func (b *Builder) BuildCatalog(ctx context.Context, samples []model.FieldSample) (*model.Catalog, error) {
	if b.Concurrency <= 0 {
		b.Concurrency = 4
	}
	now := b.Now
	if now == nil {
		now = time.Now
	}

	params := model.QueryParams{
		TimeDeltaDays: b.Reconcile.TimeDeltaDays,
		MaxCloudCover: b.Reconcile.MaxCloudCover,
	}

	zap.L().Info("building catalog",
		zap.Int("samples", len(samples)),
		zap.Int("sources", len(b.Adapters)),
		zap.Int("time_delta_days", params.TimeDeltaDays),
		zap.Float64("max_cloud_cover", params.MaxCloudCover),
	)

	// Results land in per-sample slots, not in completion order.
	results := make([]map[model.Source]queryResult, len(samples))
	for i := range results {
		results[i] = make(map[model.Source]queryResult, len(b.Adapters))
	}
	resultCh := make(chan queryResult)

	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for r := range resultCh {
			results[r.sampleIdx][r.src] = r
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.Concurrency)

	for i, sample := range samples {
		for _, adapter := range b.Adapters {
			g.Go(func() error {
				records, err := b.query(gctx, adapter, sample)
				select {
				case resultCh <- queryResult{sampleIdx: i, src: adapter.Name(), records: records, err: err}:
				case <-gctx.Done():
					return gctx.Err()
				}
				return nil
			})
		}
	}

	err := g.Wait()
	close(resultCh)
	<-collected
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: catalog queries cancelled")
	}

	cat := &model.Catalog{
		Version:     model.CatalogVersion,
		CreatedAt:   now().UTC(),
		QueryParams: params,
		Entries:     make([]model.CatalogEntry, 0, len(samples)),
	}

	anySourceAnswered := false
	for i, sample := range samples {
		in := reconcile.Input{
			Records: make(map[model.Source][]model.AcquisitionRecord, len(b.Adapters)),
			Failed:  make(map[model.Source]error),
		}
		for src, r := range results[i] {
			if r.err != nil {
				in.Failed[src] = r.err
				continue
			}
			anySourceAnswered = true
			in.Records[src] = r.records
		}

		opts := b.Reconcile
		opts.AOI = b.AOI
		entry := reconcile.Reconcile(sample, in, opts)
		cat.Entries = append(cat.Entries, entry)

		zap.L().Info("sample processed",
			zap.String("date", sample.Date.Format(model.DateLayout)),
			zap.Int("candidates", len(entry.Candidates)),
			zap.Bool("degraded", entry.Degraded()),
		)
	}

	if len(samples) > 0 && !anySourceAnswered {
		return cat, eris.New("pipeline: no catalog source answered for any sample")
	}

	return cat, nil
}

// query runs one adapter search with bounded retries. Source-unavailable and
// auth errors come back for degradation rather than being retried forever.
func (b *Builder) query(ctx context.Context, adapter source.Adapter, sample model.FieldSample) ([]model.AcquisitionRecord, error) {
	q := source.Query{
		Lon:           sample.Longitude,
		Lat:           sample.Latitude,
		AOI:           b.AOI,
		Date:          sample.Date,
		TimeDeltaDays: b.Reconcile.TimeDeltaDays,
		MaxCloudCover: b.Reconcile.MaxCloudCover,
	}

	retry := b.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(string(adapter.Name()), "search")
	}

	records, err := resilience.DoVal(ctx, retry, func(ctx context.Context) ([]model.AcquisitionRecord, error) {
		return adapter.Search(ctx, q)
	})
	if err != nil {
		zap.L().Warn("source query failed",
			zap.String("source", string(adapter.Name())),
			zap.String("sample", sample.Key()),
			zap.Error(err),
		)
		return nil, err
	}
	return records, nil
}
