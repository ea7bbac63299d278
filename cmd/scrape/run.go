package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/config"
	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/extract"
	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/fetch"
	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/images"
	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/ledger"
	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/logging"
	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/metrics"
	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/retailer"
	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/scrape"
	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/sink"
)

type overrides struct {
	startPage  int // -1 = use config
	endPage    int
	ledgerPath string
}

// runRetailer executes one retailer's full pipeline: backup, scrape,
// reconcile, catalog sync. The returned error is fatal for this retailer
// only.
func runRetailer(ctx context.Context, cfg config.Config, r retailer.Retailer, store images.ContentStore, catalog sink.Upserter, ov overrides) error {
	log := logging.Component("run").With("retailer", r.Slug())

	rc := cfg.Retailers[r.Slug()]
	if ov.startPage >= 0 {
		rc.StartPage = ov.startPage
	}
	if ov.endPage >= 0 {
		rc.EndPage = ov.endPage
	}
	if rc.BaseURL == "" {
		return fmt.Errorf("%s: base_url not configured", r.Slug())
	}

	var window fetch.Window
	if rc.WindowStart != "" {
		var err error
		window, err = fetch.ParseWindow(rc.WindowStart, rc.WindowEnd)
		if err != nil {
			return fmt.Errorf("%s: %w", r.Slug(), err)
		}
	}

	path := ov.ledgerPath
	if path == "" {
		path = filepath.Join(cfg.LedgerDir, r.Slug()+"_products.csv")
	}

	if cfg.Backup {
		dst, err := ledger.Backup(path, cfg.BackupDir, time.Now())
		if err != nil {
			log.Warn("ledger backup failed", "error", err)
		} else if dst != "" {
			log.Info("ledger backed up", "backup", dst)
		}
	}

	// Prior rows feed the stale-URL policy: a known image URL is reused so
	// re-runs skip resolution entirely for unchanged products.
	prior, err := ledger.Load(path)
	if err != nil {
		return fmt.Errorf("%s: %w", r.Slug(), err)
	}
	priorURLs := make(map[string]string, len(prior))
	for _, rec := range prior {
		if rec.ImageURL != "" {
			priorURLs[rec.Name] = rec.ImageURL
		}
	}
	if len(prior) > 0 {
		log.Info("resuming over existing ledger", "rows", len(prior), "max_index", ledger.MaxIndex(prior))
	}

	fetcher, err := fetch.New(fetch.Options{
		Retailer:    r,
		Build:       extract.Builder(r, rc.BaseURL, rc.PageSize),
		MinInterval: rc.MinInterval(),
	})
	if err != nil {
		return fmt.Errorf("%s: %w", r.Slug(), err)
	}
	extractor, err := extract.ForRetailer(r)
	if err != nil {
		return fmt.Errorf("%s: %w", r.Slug(), err)
	}
	resolver := images.NewResolver(store, nil, rc.PlaceholderURL, log)

	fileLedger, err := scrape.NewFileLedger(path, r.ReconcileFloor(), log)
	if err != nil {
		return fmt.Errorf("%s: %w", r.Slug(), err)
	}
	defer fileLedger.Close()

	coord := scrape.New(scrape.Config{
		Retailer:       r,
		StartPage:      rc.StartPage,
		EndPage:        rc.EndPage,
		PageSize:       rc.PageSize,
		Workers:        rc.Workers,
		MaxAttempts:    rc.MaxAttempts,
		SequenceFloor:  r.NamespaceFloor(),
		Window:         window,
		PriorImageURLs: priorURLs,
	}, scrape.Deps{
		Fetcher:   fetcher,
		Extractor: extractor,
		Resolver:  resolver,
		Ledger:    fileLedger,
	})

	rep, err := coord.Run(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", r.Slug(), err)
	}

	stats := resolver.Stats()
	if m := metrics.Get(); m != nil {
		m.ImagesUploaded.WithLabelValues(r.Slug()).Add(float64(stats.Uploaded))
		m.ImagesReused.WithLabelValues(r.Slug()).Add(float64(stats.Reused))
		m.ImagesPlaceholdered.WithLabelValues(r.Slug()).Add(float64(stats.Failed))
	}
	log.Info("run report",
		"state", rep.State.String(),
		"pages_succeeded", rep.PagesSucceeded,
		"pages_skipped", rep.PagesSkipped,
		"pages_failed", rep.PagesFailed,
		"records", rep.Records,
		"reconciled_rows", rep.ReconciledRows,
		"images_uploaded", stats.Uploaded,
		"images_reused", stats.Reused,
		"images_placeholdered", stats.Failed)

	if rep.State != scrape.StateDone {
		// An aborted run keeps its partial ledger but is not pushed to
		// the catalog; the next in-window run finishes the job.
		return nil
	}
	if catalog == nil {
		return nil
	}

	records, err := ledger.Load(path)
	if err != nil {
		return fmt.Errorf("%s: reload reconciled ledger: %w", r.Slug(), err)
	}
	sink.Push(ctx, catalog, records, r, cfg.Catalog.BatchSize, log)
	return nil
}
