package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/config"
	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/images"
	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/logging"
	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/metrics"
	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/retailer"
	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/sink"
)

// Version information (set via ldflags)
var (
	Version = "v0.1.0"
	GitSHA  = "unknown"
)

func main() {
	var (
		retailerFlag = flag.String("retailer", "all", `retailer to scrape ("checkers", "pnp", "shoprite", "woolies", or "all")`)
		startPage    = flag.Int("start-page", -1, "override the configured first page")
		endPage      = flag.Int("end-page", -1, "override the configured last page")
		ledgerPath   = flag.String("ledger", "", "override the ledger file path (single retailer only)")
		configPath   = flag.String("config", os.Getenv("SCRAPER_CONFIG"), "path to the YAML config file")
		noSink       = flag.Bool("no-sink", false, "skip the catalog upsert step")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logging.Setup(logging.Config{Format: cfg.Logging.Format, Level: cfg.Logging.Level})
	log := logging.Component("main")
	log.Info("retailer scraper starting", "version", Version, "git_sha", GitSHA)

	var targets []retailer.Retailer
	if *retailerFlag == "all" {
		targets = retailer.All()
	} else {
		r, err := retailer.Parse(*retailerFlag)
		if err != nil {
			log.Error("invalid retailer", "error", err)
			os.Exit(1)
		}
		targets = []retailer.Retailer{r}
	}
	if *ledgerPath != "" && len(targets) != 1 {
		log.Error("-ledger requires a single -retailer")
		os.Exit(1)
	}

	if cfg.Metrics.Enabled {
		metrics.Init("retail_scraper")
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Address); err != nil {
				log.Error("metrics server stopped", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		sig := <-ch
		log.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	store, err := images.NewContentStore(images.StoreConfig{
		Backend:    cfg.Storage.Backend,
		LocalDir:   cfg.Storage.LocalDir,
		GCSBucket:  cfg.Storage.GCSBucket,
		S3Bucket:   cfg.Storage.S3Bucket,
		S3Endpoint: cfg.Storage.S3Endpoint,
		S3Region:   cfg.Storage.S3Region,
	})
	if err != nil {
		log.Error("open content store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// The catalog is optional: a run that cannot reach it still produces
	// a reconciled ledger.
	var catalog sink.Upserter
	if cfg.Catalog.PostgresDSN != "" && !*noSink {
		pg, err := sink.NewPostgresSink(sink.Config{
			PostgresDSN: cfg.Catalog.PostgresDSN,
			BatchSize:   cfg.Catalog.BatchSize,
		}, nil)
		if err != nil {
			log.Warn("catalog unavailable, continuing without sink", "error", err)
		} else {
			defer pg.Close()
			catalog = pg
		}
	}

	// Each retailer runs as an independent pipeline; one retailer's fatal
	// error does not stop the others.
	g := new(errgroup.Group)
	for _, r := range targets {
		r := r
		g.Go(func() error {
			return runRetailer(ctx, cfg, r, store, catalog, overrides{
				startPage:  *startPage,
				endPage:    *endPage,
				ledgerPath: *ledgerPath,
			})
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("run failed", "error", err)
		os.Exit(1)
	}
	log.Info("all runs finished")
}
