package main

import (
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rionegro-oan/matchup-cli/internal/download"
	"github.com/rionegro-oan/matchup-cli/internal/fetcher"
	"github.com/rionegro-oan/matchup-cli/internal/model"
	"github.com/rionegro-oan/matchup-cli/internal/pipeline"
	"github.com/rionegro-oan/matchup-cli/internal/reconcile"
	"github.com/rionegro-oan/matchup-cli/internal/resilience"
	"github.com/rionegro-oan/matchup-cli/internal/source"
)

var runFlags struct {
	input       string
	outDir      string
	catalogPath string
	timeDelta   int
	maxCloud    float64
	onlyFirst   bool
	withMask    bool
	concurrency int
	aoi         string
	replace     bool
}

func addRunFlags(cmd *cobra.Command, needsInput, needsOutput bool) {
	f := cmd.Flags()
	if needsInput {
		f.StringVar(&runFlags.input, "input", "", "field sample table (CSV with date,latitude,longitude)")
		_ = cmd.MarkFlagRequired("input")
		f.IntVar(&runFlags.timeDelta, "time-delta", 0, "search window in days around each sample date")
		f.Float64Var(&runFlags.maxCloud, "max-cloud", 0, "maximum cloud cover percent")
		f.StringVar(&runFlags.aoi, "aoi", "", "area of interest as minLon,minLat,maxLon,maxLat")
		f.BoolVar(&runFlags.replace, "replace", false, "discard previously resolved catalog entries instead of merging")
	}
	if needsOutput {
		f.StringVar(&runFlags.outDir, "out-dir", "downloads", "destination directory for product assets")
		f.BoolVar(&runFlags.withMask, "with-mask", false, "also fetch the scene classification (SCL) asset")
	}
	f.StringVar(&runFlags.catalogPath, "catalog", "", "catalog file path")
	f.BoolVar(&runFlags.onlyFirst, "only-first", false, "keep only the best-ranked candidate per sample")
	f.IntVar(&runFlags.concurrency, "concurrency", 0, "maximum concurrent remote requests")
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Build the matchup catalog from field samples",
	RunE:  func(cmd *cobra.Command, args []string) error { return runMode(cmd, pipeline.ModeCatalog) },
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download product assets for an existing catalog",
	RunE:  func(cmd *cobra.Command, args []string) error { return runMode(cmd, pipeline.ModeDownload) },
}

var allCmd = &cobra.Command{
	Use:   "all",
	Short: "Build the catalog and download its assets in one run",
	RunE:  func(cmd *cobra.Command, args []string) error { return runMode(cmd, pipeline.ModeAll) },
}

func init() {
	addRunFlags(catalogCmd, true, false)
	addRunFlags(downloadCmd, false, true)
	addRunFlags(allCmd, true, true)
	rootCmd.AddCommand(catalogCmd, downloadCmd, allCmd)
}

func runMode(cmd *cobra.Command, mode pipeline.Mode) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	driver, err := buildDriver()
	if err != nil {
		return err
	}

	result, err := driver.Run(ctx, mode)
	if err != nil {
		return err
	}

	if result.Report != nil {
		fmt.Fprintln(cmd.OutOrStdout(), result.Report.Format())
		if failed := result.Report.TotalFailed(); failed > 0 {
			// Partial failures are reported but keep exit zero so the run
			// can be resumed; present assets will be skipped next time.
			zap.L().Warn("run finished with asset failures", zap.Int("failed", failed))
		}
	}

	return nil
}

// buildDriver assembles the pipeline from configuration and flags; flags win
// where both are set.
func buildDriver() (*pipeline.Driver, error) {
	timeDelta := cfg.Query.TimeDeltaDays
	if runFlags.timeDelta > 0 {
		timeDelta = runFlags.timeDelta
	}
	maxCloud := cfg.Query.MaxCloudCover
	if runFlags.maxCloud > 0 {
		maxCloud = runFlags.maxCloud
	}
	catalogPath := cfg.Catalog.Path
	if runFlags.catalogPath != "" {
		catalogPath = runFlags.catalogPath
	}
	queryConcurrency := cfg.Query.Concurrency
	downloadConcurrency := cfg.Download.Concurrency
	if runFlags.concurrency > 0 {
		queryConcurrency = runFlags.concurrency
		downloadConcurrency = runFlags.concurrency
	}

	aoi, err := parseAOI(runFlags.aoi)
	if err != nil {
		return nil, err
	}

	tokens := source.NewTokenProvider(cfg.Sources.CDSE)

	cdseFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:      time.Duration(cfg.Query.TimeoutSecs) * time.Second,
		RateLimiters: fetcher.DefaultRateLimiters(),
		Authorize:    tokens.Authorizer(),
	})
	openFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:      time.Duration(cfg.Query.TimeoutSecs) * time.Second,
		RateLimiters: fetcher.DefaultRateLimiters(),
	})
	assetFetcher := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		Timeout:      time.Duration(cfg.Download.TimeoutSecs) * time.Second,
		MaxRetries:   cfg.Download.MaxRetries,
		RateLimiters: fetcher.DefaultRateLimiters(),
		Authorize:    tokens.Authorizer(),
	})

	builder := &pipeline.Builder{
		Adapters: []source.Adapter{
			source.NewCDSEAdapter(cfg.Sources.CDSE, cdseFetcher),
			source.NewEarthSearchAdapter(cfg.Sources.EarthSearch, openFetcher),
		},
		Concurrency: queryConcurrency,
		Retry:       resilience.DefaultRetryConfig(),
		Reconcile: reconcile.Options{
			PairTolerance: time.Duration(cfg.Reconcile.PairToleranceMinutes) * time.Minute,
			OnlyFirst:     runFlags.onlyFirst,
			TimeDeltaDays: timeDelta,
			MaxCloudCover: maxCloud,
		},
		AOI: aoi,
	}

	orch := download.New(assetFetcher, resilience.RetryConfig{
		MaxAttempts: cfg.Download.MaxRetries,
	})

	return &pipeline.Driver{
		Builder:      builder,
		Orchestrator: orch,
		InputPath:    runFlags.input,
		CatalogPath:  catalogPath,
		Download: download.Options{
			Dir:         runFlags.outDir,
			WithMask:    runFlags.withMask,
			OnlyFirst:   runFlags.onlyFirst,
			Concurrency: downloadConcurrency,
		},
		Replace: runFlags.replace,
	}, nil
}

// parseAOI parses "minLon,minLat,maxLon,maxLat". Empty input means no AOI.
func parseAOI(s string) (*model.BBox, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, &resilience.InvalidInputError{Reason: "aoi must be minLon,minLat,maxLon,maxLat"}
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, &resilience.InvalidInputError{Reason: eris.Wrapf(err, "aoi component %d", i+1).Error()}
		}
		vals[i] = v
	}
	box := &model.BBox{MinLon: vals[0], MinLat: vals[1], MaxLon: vals[2], MaxLat: vals[3]}
	if box.MinLon > box.MaxLon || box.MinLat > box.MaxLat {
		return nil, &resilience.InvalidInputError{Reason: "aoi has inverted bounds"}
	}
	return box, nil
}
