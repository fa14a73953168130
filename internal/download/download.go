// Package download fetches product assets for catalog candidates into a flat
// destination directory. Runs are idempotent: existence of a non-empty file
// at the deterministic destination path is the durable already-downloaded
// signal, so re-runs skip finished assets and resume the rest.
package download

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rionegro-oan/matchup-cli/internal/fetcher"
	"github.com/rionegro-oan/matchup-cli/internal/model"
	"github.com/rionegro-oan/matchup-cli/internal/resilience"
)

// Options controls one download run.
type Options struct {
	// Dir is the destination directory (created if missing).
	Dir string

	// WithMask also fetches the scene-classification asset where present.
	WithMask bool

	// OnlyFirst downloads only each entry's top-ranked candidate.
	OnlyFirst bool

	// Concurrency bounds simultaneous asset fetches. Default 3.
	Concurrency int
}

// Orchestrator drives asset downloads against a catalog.
type Orchestrator struct {
	fetcher fetcher.Fetcher
	retry   resilience.RetryConfig
}

// New builds an orchestrator. The retry config bounds per-asset fetch
// attempts; auth errors are surfaced without retry.
func New(f fetcher.Fetcher, retry resilience.RetryConfig) *Orchestrator {
	return &Orchestrator{fetcher: f, retry: retry}
}

// task is one independent (candidate, asset-kind) fetch.
type task struct {
	productID string
	kind      model.AssetKind
	href      string
	dest      string
}

// Run walks the catalog and fetches every requested asset. Individual asset
// failures are recorded in the report, never propagated: one bad mask must
// not block the product next to it, and one bad candidate must not block the
// rest of the catalog. Only context cancellation or an unusable destination
// directory abort the run.
func (o *Orchestrator) Run(ctx context.Context, cat *model.Catalog, opts Options) (*Report, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "download: create destination %s", opts.Dir)
	}

	tasks := plan(cat, opts)
	report := newReport(cat.QueryParams)

	zap.L().Info("starting download run",
		zap.String("run_id", report.RunID),
		zap.String("dir", opts.Dir),
		zap.Int("assets", len(tasks)),
		zap.Int("concurrency", opts.Concurrency),
	)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	for _, t := range tasks {
		g.Go(func() error {
			rec := o.fetchOne(gctx, t)
			mu.Lock()
			report.add(rec)
			mu.Unlock()

			if gctx.Err() != nil {
				return gctx.Err()
			}
			return nil // per-asset failures stay in the report
		})
	}

	if err := g.Wait(); err != nil {
		return report, eris.Wrap(err, "download: run cancelled")
	}

	report.finish()
	return report, nil
}

// plan expands the catalog into independent fetch tasks, deduplicating
// destination paths so a product shared by two samples is fetched once.
func plan(cat *model.Catalog, opts Options) []task {
	var tasks []task
	planned := make(map[string]bool)

	for _, entry := range cat.Entries {
		candidates := entry.Candidates
		if opts.OnlyFirst && len(candidates) > 1 {
			candidates = candidates[:1]
		}

		for _, cand := range candidates {
			kinds := []model.AssetKind{model.AssetProduct}
			if opts.WithMask {
				kinds = append(kinds, model.AssetMask)
			}

			for _, kind := range kinds {
				href := cand.AssetRefs[kind]
				if href == "" {
					if kind == model.AssetMask {
						zap.L().Debug("candidate has no mask asset",
							zap.String("product_id", cand.ProductID))
					}
					continue
				}
				dest := DestPath(opts.Dir, cand.ProductID, kind, href)
				if planned[dest] {
					continue
				}
				planned[dest] = true
				tasks = append(tasks, task{
					productID: cand.ProductID,
					kind:      kind,
					href:      href,
					dest:      dest,
				})
			}
		}
	}
	return tasks
}

func (o *Orchestrator) fetchOne(ctx context.Context, t task) model.DownloadRecord {
	rec := model.DownloadRecord{
		ProductID: t.productID,
		Kind:      t.kind,
		Dest:      t.dest,
	}

	if info, err := os.Stat(t.dest); err == nil && info.Size() > 0 {
		rec.Status = model.DownloadSkipped
		zap.L().Debug("asset already present, skipping",
			zap.String("product_id", t.productID),
			zap.String("kind", string(t.kind)),
		)
		return rec
	}

	_, err := resilience.DoVal(ctx, o.retry, func(ctx context.Context) (int64, error) {
		return o.fetcher.FetchToFile(ctx, t.href, t.dest)
	})
	if err != nil {
		rec.Status = model.DownloadFailed
		rec.Error = (&resilience.AssetFetchError{
			ProductID: t.productID,
			Kind:      string(t.kind),
			Err:       err,
		}).Error()
		zap.L().Warn("asset fetch failed",
			zap.String("product_id", t.productID),
			zap.String("kind", string(t.kind)),
			zap.Error(err),
		)
		return rec
	}

	rec.Status = model.DownloadSucceeded
	zap.L().Info("asset downloaded",
		zap.String("product_id", t.productID),
		zap.String("kind", string(t.kind)),
		zap.String("dest", t.dest),
	)
	return rec
}

// DestPath computes the deterministic destination for one asset: the full
// product lands at <dir>/<product_id><ext>, the classification mask at
// <dir>/<product_id>_SCL<ext>. The extension follows the asset href, with
// archive/raster defaults when the href has none.
func DestPath(dir, productID string, kind model.AssetKind, href string) string {
	ext := hrefExt(href)
	switch kind {
	case model.AssetMask:
		if ext == "" {
			ext = ".tif"
		}
		return filepath.Join(dir, productID+"_SCL"+ext)
	case model.AssetL1CProduct:
		if ext == "" {
			ext = ".zip"
		}
		return filepath.Join(dir, productID+"_L1C"+ext)
	default:
		if ext == "" {
			ext = ".zip"
		}
		return filepath.Join(dir, productID+ext)
	}
}

func hrefExt(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return path.Ext(u.Path)
}
