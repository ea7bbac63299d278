// Package sink pushes reconciled ledger records into the backing catalog
// store.
package sink

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/ledger"
	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/metrics"
	"github.com/JoshuaVanStraaten/retailer-scrapers/internal/retailer"
)

//go:embed schema.sql
var schemaSQL string

// DefaultBatchSize bounds one upsert round trip.
const DefaultBatchSize = 500

const upsertSQL = `
	INSERT INTO products (sequence_id, name, price, promotion_price, promotion_valid, retailer, image_url)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (name, retailer)
	DO UPDATE SET
		sequence_id     = EXCLUDED.sequence_id,
		price           = EXCLUDED.price,
		promotion_price = EXCLUDED.promotion_price,
		promotion_valid = EXCLUDED.promotion_valid,
		image_url       = EXCLUDED.image_url,
		updated_at      = NOW()
`

// Config holds sink configuration.
type Config struct {
	PostgresDSN string
	BatchSize   int
}

// Upserter is the catalog boundary the pipeline depends on.
type Upserter interface {
	Upsert(ctx context.Context, batch []ledger.ProductRecord) error
}

// PostgresSink bulk-upserts product records keyed on (name, retailer).
type PostgresSink struct {
	pool *pgxpool.Pool
	cfg  Config
	log  *slog.Logger
}

// NewPostgresSink connects to the catalog database and ensures the
// products schema exists.
func NewPostgresSink(cfg Config, logger *slog.Logger) (*PostgresSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultBatchSize
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}
	poolCfg.MaxConns = 5
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	s := &PostgresSink{
		pool: pool,
		cfg:  cfg,
		log:  logger.With("component", "sink"),
	}
	s.log.Info("connected to catalog database")
	return s, nil
}

// Upsert writes one batch in a single round trip.
func (s *PostgresSink) Upsert(ctx context.Context, batch []ledger.ProductRecord) error {
	b := &pgx.Batch{}
	for _, r := range batch {
		b.Queue(upsertSQL,
			r.Index,
			r.Name,
			r.Price,
			r.PromotionPrice,
			r.PromotionValid,
			string(r.Retailer),
			r.ImageURL,
		)
	}

	res := s.pool.SendBatch(ctx, b)
	defer res.Close()
	for range batch {
		if _, err := res.Exec(); err != nil {
			return fmt.Errorf("upsert batch: %w", err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresSink) Close() {
	s.pool.Close()
}

// Push upserts all of ret's records through up in bounded batches. A
// failed batch is logged with its range and the remaining batches still
// run; the returned count is the number of batches that failed.
func Push(ctx context.Context, up Upserter, records []ledger.ProductRecord, ret retailer.Retailer, batchSize int, logger *slog.Logger) int {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	log := logger.With("component", "sink", "retailer", ret.Slug())

	// Only the current retailer's namespace goes to the catalog.
	own := records[:0:0]
	for _, r := range records {
		if r.Retailer == ret {
			own = append(own, r)
		}
	}

	failed := 0
	for start := 0; start < len(own); start += batchSize {
		end := start + batchSize
		if end > len(own) {
			end = len(own)
		}
		if err := up.Upsert(ctx, own[start:end]); err != nil {
			failed++
			log.Error("batch upsert failed", "from", start, "to", end, "error", err)
			if m := metrics.Get(); m != nil {
				m.SinkErrors.WithLabelValues(ret.Slug()).Inc()
			}
			continue
		}
		log.Debug("batch upserted", "from", start, "to", end)
	}
	if len(own) > 0 {
		log.Info("catalog sync finished", "records", len(own), "failed_batches", failed)
	}
	return failed
}
