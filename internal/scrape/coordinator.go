// Package scrape orchestrates one retailer's ingestion run: a bounded
// worker pool fans page tasks out over fetch, extract, and image
// resolution, a single append path lands each page's records in the
// ledger, and a reconciliation pass closes the run.
package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/extract"
	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/fetch"
	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/ledger"
	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/logging"
	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/metrics"
	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/retailer"
)

// State is the coordinator's run phase.
type State int

const (
	StateIdle State = iota
	StateDispatching
	StateDraining
	StateReconciling
	StateDone
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatching:
		return "dispatching"
	case StateDraining:
		return "draining"
	case StateReconciling:
		return "reconciling"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Ledger is the coordinator's view of the persistence layer: one append
// path for completed pages, one reconciliation pass at the end of a run.
type Ledger interface {
	Append(records []ledger.ProductRecord) error
	Reconcile() (rows int, err error)
}

// ImageResolver resolves an external image reference to a durable URL.
// Implemented by images.Resolver.
type ImageResolver interface {
	Resolve(ctx context.Context, ret retailer.Retailer, name, externalRef, priorURL string) string
}

// Config parameterizes one retailer run. Workers is explicit
// configuration and is never derived from host resources.
type Config struct {
	Retailer  retailer.Retailer
	StartPage int
	EndPage   int
	PageSize  int

	Workers      int
	MaxAttempts  int           // fetch attempts per page before the page is failed
	RetryBackoff time.Duration // base for exponential retry backoff

	SequenceFloor int64 // namespace floor for assigned sequence ids
	Window        fetch.Window

	// PriorImageURLs maps product name to the image URL recorded by an
	// earlier run over the same ledger.
	PriorImageURLs map[string]string
}

// Deps are the coordinator's collaborators, one strategy set per retailer.
type Deps struct {
	Fetcher   fetch.PageFetcher
	Extractor extract.Extractor
	Resolver  ImageResolver
	Ledger    Ledger
}

// Report is the user-visible outcome of a run. A run always completes
// with explicit counts; there is no partial silent success.
type Report struct {
	Retailer       retailer.Retailer
	State          State
	PagesSucceeded int
	PagesSkipped   int
	PagesFailed    int
	Records        int
	ReconciledRows int
	Attempts       map[int]int // fetch attempts per page
}

// Coordinator drives the Idle through Done state machine for one
// retailer. A coordinator is used for a single Run call.
type Coordinator struct {
	cfg  Config
	deps Deps
	log  *slog.Logger
	now  func() time.Time

	mu    sync.Mutex
	state State
}

// New creates a coordinator for one retailer run.
func New(cfg Config, deps Deps) *Coordinator {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = time.Second
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = cfg.Retailer.DefaultPageSize()
	}
	return &Coordinator{
		cfg:   cfg,
		deps:  deps,
		log:   logging.Component("coordinator").With("retailer", cfg.Retailer.Slug()),
		now:   time.Now,
		state: StateIdle,
	}
}

// State returns the coordinator's current phase.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

type pageOutcome struct {
	page     int
	records  []ledger.ProductRecord
	attempts int
	skipped  bool // permanent failure, page dropped
	failed   bool // transient retries exhausted
}

// Run executes the full pipeline for the configured page range. The
// returned error is fatal for this retailer only; every other failure is
// accounted for in the report. A window rejection mid-run stops new
// dispatch, lets in-flight tasks finish, persists their results, and
// reports Aborted.
func (c *Coordinator) Run(ctx context.Context) (*Report, error) {
	correlationID := uuid.NewString()
	ctx = logging.WithCorrelationID(ctx, correlationID)
	log := c.log.With("correlation_id", correlationID)

	rep := &Report{
		Retailer: c.cfg.Retailer,
		Attempts: make(map[int]int),
	}

	if !c.cfg.Window.Allowed(c.now()) {
		log.Info("outside operating window, not starting")
		c.setState(StateAborted)
		rep.State = StateAborted
		return rep, nil
	}

	log.Info("run starting",
		"start_page", c.cfg.StartPage,
		"end_page", c.cfg.EndPage,
		"workers", c.cfg.Workers)

	c.setState(StateDispatching)

	tasks := make(chan int)
	results := make(chan pageOutcome)

	aborted := make(chan struct{})
	go func() {
		defer close(tasks)
		for page := c.cfg.StartPage; page <= c.cfg.EndPage; page++ {
			// The only cancellation points: the operating window and
			// caller cancellation, checked before each dispatch.
			if !c.cfg.Window.Allowed(c.now()) {
				log.Info("operating window closed, stopping dispatch", "next_page", page)
				close(aborted)
				return
			}
			select {
			case tasks <- page:
			case <-ctx.Done():
				log.Info("run cancelled, stopping dispatch", "next_page", page)
				close(aborted)
				return
			}
		}
	}()

	g := new(errgroup.Group)
	for i := 0; i < c.cfg.Workers; i++ {
		workerID := i
		g.Go(func() error {
			wlog := log.With("worker_id", workerID)
			for page := range tasks {
				results <- c.runPage(ctx, wlog, page)
			}
			return nil
		})
	}
	go func() {
		g.Wait()
		close(results)
	}()

	var fatal error
	for out := range results {
		rep.Attempts[out.page] = out.attempts
		switch {
		case out.skipped:
			rep.PagesSkipped++
		case out.failed:
			rep.PagesFailed++
		default:
			rep.PagesSucceeded++
			rep.Records += len(out.records)
			if fatal == nil && len(out.records) > 0 {
				if err := c.deps.Ledger.Append(out.records); err != nil {
					// Losing the append path is fatal for this run;
					// drain the remaining outcomes and stop.
					fatal = fmt.Errorf("append page %d: %w", out.page, err)
					log.Error("ledger append failed", "page", out.page, "error", err)
				} else {
					c.observePage(out)
				}
			}
		}
	}
	c.setState(StateDraining)

	if fatal != nil {
		c.setState(StateAborted)
		rep.State = StateAborted
		return rep, fatal
	}

	select {
	case <-aborted:
		log.Info("run aborted cleanly",
			"pages_succeeded", rep.PagesSucceeded,
			"pages_skipped", rep.PagesSkipped,
			"pages_failed", rep.PagesFailed,
			"records", rep.Records)
		c.setState(StateAborted)
		rep.State = StateAborted
		return rep, nil
	default:
	}

	c.setState(StateReconciling)
	start := c.now()
	rows, err := c.deps.Ledger.Reconcile()
	if err != nil {
		c.setState(StateAborted)
		rep.State = StateAborted
		return rep, fmt.Errorf("reconcile: %w", err)
	}
	rep.ReconciledRows = rows
	if m := metrics.Get(); m != nil {
		m.ReconcileDuration.WithLabelValues(c.cfg.Retailer.Slug()).Observe(c.now().Sub(start).Seconds())
	}

	c.setState(StateDone)
	rep.State = StateDone
	log.Info("run complete",
		"pages_succeeded", rep.PagesSucceeded,
		"pages_skipped", rep.PagesSkipped,
		"pages_failed", rep.PagesFailed,
		"records", rep.Records,
		"reconciled_rows", rows)
	return rep, nil
}

// runPage is one task attempt cycle: fetch with bounded transient
// retries, extract once, resolve every record's image. Extractor failures
// are never retried; refetching reproduces the same structure.
func (c *Coordinator) runPage(ctx context.Context, log *slog.Logger, page int) pageOutcome {
	out := pageOutcome{page: page}
	plog := log.With("page", page)

	if m := metrics.Get(); m != nil {
		m.TasksInFlight.Inc()
		defer m.TasksInFlight.Dec()
		start := time.Now()
		defer func() {
			m.PageTaskDuration.WithLabelValues(c.cfg.Retailer.Slug()).Observe(time.Since(start).Seconds())
		}()
	}

	payload, err := c.fetchWithRetry(ctx, plog, page, &out.attempts)
	if err != nil {
		if fetch.IsTransient(err) {
			plog.Warn("page failed after retries", "attempts", out.attempts, "error", err)
			out.failed = true
			c.countPage("failed")
		} else {
			plog.Warn("page permanently failed, skipping", "error", err)
			out.skipped = true
			c.countPage("skipped")
		}
		return out
	}

	raws, err := c.deps.Extractor.Extract(payload)
	if err != nil {
		plog.Warn("extraction failed, skipping page", "error", err)
		if m := metrics.Get(); m != nil {
			m.ExtractErrors.WithLabelValues(c.cfg.Retailer.Slug()).Inc()
		}
		out.skipped = true
		c.countPage("skipped")
		return out
	}

	out.records = make([]ledger.ProductRecord, 0, len(raws))
	for i, raw := range raws {
		url := c.deps.Resolver.Resolve(ctx, c.cfg.Retailer, raw.Name, raw.ImageRef, c.cfg.PriorImageURLs[raw.Name])
		out.records = append(out.records, ledger.ProductRecord{
			Index:          c.sequenceID(page, i),
			Name:           raw.Name,
			Price:          raw.Price,
			PromotionPrice: raw.PromotionPrice,
			Retailer:       c.cfg.Retailer,
			ImageURL:       url,
			PromotionValid: raw.PromotionValid,
		})
	}
	c.countPage("succeeded")
	plog.Debug("page complete", "records", len(out.records), "attempts", out.attempts)
	return out
}

// fetchWithRetry retries transient fetch failures with exponential
// backoff. The fetcher's inter-request throttle is separate from this
// backoff and applies on every attempt.
func (c *Coordinator) fetchWithRetry(ctx context.Context, log *slog.Logger, page int, attempts *int) (*fetch.Payload, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			if m := metrics.Get(); m != nil {
				m.RetryAttempts.WithLabelValues(c.cfg.Retailer.Slug(), "fetch").Inc()
			}
			select {
			case <-ctx.Done():
				return nil, fetch.PermanentErr(ctx.Err())
			case <-time.After(c.cfg.RetryBackoff * (1 << (attempt - 1))):
			}
		}

		*attempts++
		start := time.Now()
		payload, err := c.deps.Fetcher.Fetch(ctx, page)
		if m := metrics.Get(); m != nil {
			m.FetchDuration.WithLabelValues(c.cfg.Retailer.Slug()).Observe(time.Since(start).Seconds())
		}
		if err == nil {
			return payload, nil
		}
		lastErr = err

		if !fetch.IsTransient(err) {
			if m := metrics.Get(); m != nil {
				m.FetchErrors.WithLabelValues(c.cfg.Retailer.Slug(), "permanent").Inc()
			}
			return nil, err
		}
		if m := metrics.Get(); m != nil {
			m.FetchErrors.WithLabelValues(c.cfg.Retailer.Slug(), "transient").Inc()
		}
		log.Debug("transient fetch failure", "page", page, "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

// sequenceID combines the namespace floor, page number, and intra-page
// offset. Concurrent pages assign disjoint ranges under normal operation;
// collisions with prior runs are repaired by reconciliation.
func (c *Coordinator) sequenceID(page, offset int) int64 {
	return c.cfg.SequenceFloor + int64(page)*int64(c.cfg.PageSize) + int64(offset)
}

func (c *Coordinator) observePage(out pageOutcome) {
	m := metrics.Get()
	if m == nil {
		return
	}
	slug := c.cfg.Retailer.Slug()
	m.RecordsWritten.WithLabelValues(slug).Add(float64(len(out.records)))
	if n := len(out.records); n > 0 {
		m.LastSequenceID.WithLabelValues(slug).Set(float64(out.records[n-1].Index))
	}
}

func (c *Coordinator) countPage(outcome string) {
	m := metrics.Get()
	if m == nil {
		return
	}
	slug := c.cfg.Retailer.Slug()
	switch outcome {
	case "succeeded":
		m.PagesSucceeded.WithLabelValues(slug).Inc()
	case "skipped":
		m.PagesSkipped.WithLabelValues(slug).Inc()
	case "failed":
		m.PagesFailed.WithLabelValues(slug).Inc()
	}
}
