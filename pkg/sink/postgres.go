package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for sink operations.
var (
	upsertDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvester_sink_upsert_duration_seconds",
		Help:    "Duration of one batch upsert in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5},
	})

	recordsWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "harvester_sink_records_written_total",
		Help: "Total number of repository rows upserted",
	})
)

// upsertSQL writes a whole batch in one statement. Parallel arrays are zipped
// by unnest; metadata is merged, everything else is overwritten.
const upsertSQL = `
INSERT INTO repositories (id, name, owner, full_name, url, stars, metadata, last_crawled)
SELECT u.id, u.name, u.owner, u.full_name, u.url, u.stars, u.metadata::jsonb, now()
FROM unnest($1::text[], $2::text[], $3::text[], $4::text[], $5::text[], $6::bigint[], $7::text[])
    AS u(id, name, owner, full_name, url, stars, metadata)
ON CONFLICT (id) DO UPDATE SET
    name         = EXCLUDED.name,
    owner        = EXCLUDED.owner,
    full_name    = EXCLUDED.full_name,
    url          = EXCLUDED.url,
    stars        = EXCLUDED.stars,
    metadata     = repositories.metadata || EXCLUDED.metadata,
    last_crawled = EXCLUDED.last_crawled`

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	URL      string
	MaxConns int32
	MinConns int32

	// UpsertTimeout bounds a single batch write.
	UpsertTimeout time.Duration
}

// DefaultPostgresConfig returns a small pool suitable for a single crawler.
func DefaultPostgresConfig(url string) PostgresConfig {
	return PostgresConfig{
		URL:           url,
		MaxConns:      4,
		MinConns:      0,
		UpsertTimeout: 30 * time.Second,
	}
}

// Postgres is the PostgreSQL Sink.
type Postgres struct {
	pool   *pgxpool.Pool
	config PostgresConfig
	attrs  Metadata
	logger zerolog.Logger
}

// NewPostgres opens a connection pool and verifies it with a ping.
func NewPostgres(ctx context.Context, cfg PostgresConfig, attrs Metadata, logger zerolog.Logger) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	if cfg.UpsertTimeout <= 0 {
		cfg.UpsertTimeout = 30 * time.Second
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Postgres{
		pool:   pool,
		config: cfg,
		attrs:  attrs,
		logger: logger,
	}, nil
}

// Upsert implements Sink. A connection is acquired for the batch only and
// released whatever the outcome.
func (p *Postgres) Upsert(ctx context.Context, records []Record) error {
	rows := collapse(records)
	if len(rows) == 0 {
		return nil
	}

	ids := make([]string, len(rows))
	names := make([]string, len(rows))
	owners := make([]string, len(rows))
	fullNames := make([]string, len(rows))
	urls := make([]string, len(rows))
	stars := make([]int64, len(rows))
	metadata := make([]string, len(rows))

	for i, r := range rows {
		meta, err := encodeMetadata(metadataFor(r, p.attrs))
		if err != nil {
			return err
		}
		ids[i] = r.ID
		names[i] = r.Name
		owners[i] = r.OwnerLogin
		fullNames[i] = r.FullName
		urls[i] = r.URL
		stars[i] = r.StarCount
		metadata[i] = meta
	}

	start := time.Now()
	defer func() {
		upsertDuration.Observe(time.Since(start).Seconds())
	}()

	ctx, cancel := context.WithTimeout(ctx, p.config.UpsertTimeout)
	defer cancel()

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op after commit

	if _, err := tx.Exec(ctx, upsertSQL, ids, names, owners, fullNames, urls, stars, metadata); err != nil {
		return fmt.Errorf("upsert repositories: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	recordsWritten.Add(float64(len(rows)))
	p.logger.Debug().Int("batch_size", len(rows)).Msg("Batch upserted")

	return nil
}

// Health checks if the database is reachable.
func (p *Postgres) Health(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close closes the pool.
func (p *Postgres) Close() {
	p.pool.Close()
}
