// Command harvester crawls the GitHub GraphQL search API and upserts the
// repositories it finds into PostgreSQL.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/repo-harvester/internal/config"
	"github.com/Sternrassler/repo-harvester/pkg/checkpoint"
	"github.com/Sternrassler/repo-harvester/pkg/client"
	"github.com/Sternrassler/repo-harvester/pkg/crawler"
	"github.com/Sternrassler/repo-harvester/pkg/logging"
	"github.com/Sternrassler/repo-harvester/pkg/metrics"
	"github.com/Sternrassler/repo-harvester/pkg/progress"
	"github.com/Sternrassler/repo-harvester/pkg/ratelimit"
	"github.com/Sternrassler/repo-harvester/pkg/sink"
)

// Exit codes.
const (
	exitOK        = 0
	exitFailure   = 1
	exitConfig    = 2
	exitCancelled = 130
)

// exitError carries the process exit code of a failed run.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit code %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// options are the command line flags.
type options struct {
	target     int
	batchSize  int
	resume     bool
	dryRun     bool
	noProgress bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the root command and maps its outcome to an exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(stdout, stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", ee.err)
		}
		return ee.code
	}

	// Flag parsing and usage errors.
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitConfig
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Harvest GitHub repositories into PostgreSQL",
		Long: `Harvester pages through the GitHub GraphQL search API and upserts every
repository it finds into PostgreSQL. It honours the API rate limit, retries
failed pages on the same cursor and can resume from a Redis checkpoint.

Configuration is read from .env and the environment:
  GITHUB_TOKEN (required), DATABASE_URL, SEARCH_QUERY, GITHUB_GRAPHQL_URL,
  REDIS_URL, CHECKPOINT_TTL, METRICS_ADDR, LOG_LEVEL, LOG_PRETTY`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return &exitError{code: exitConfig, err: err}
			}

			// Flags win over HARVEST_TARGET and HARVEST_BATCH_SIZE.
			if cmd.Flags().Changed("target") {
				cfg.Target = opts.target
			}
			if cmd.Flags().Changed("batch-size") {
				cfg.BatchSize = opts.batchSize
			}

			return run(cmd.Context(), cfg, opts, stdout, stderr)
		},
	}

	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.Flags()
	flags.IntVar(&opts.target, "target", config.DefaultTarget, "number of repositories to harvest")
	flags.IntVar(&opts.batchSize, "batch-size", config.DefaultBatchSize, "page size per request (capped at 100)")
	flags.BoolVar(&opts.resume, "resume", false, "continue from the Redis checkpoint of the query (requires REDIS_URL)")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "keep records in memory instead of writing to PostgreSQL")
	flags.BoolVar(&opts.noProgress, "no-progress", false, "disable the progress bar")

	return cmd
}

// run performs one harvest with a validated configuration.
func run(ctx context.Context, cfg config.Config, opts options, stdout, stderr io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return &exitError{code: exitConfig, err: err}
	}
	if opts.resume && cfg.RedisURL == "" {
		return &exitError{code: exitConfig, err: errors.New("--resume requires REDIS_URL")}
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: stderr,
	})

	runID := config.NewRunID()
	logger := logging.WithRun(logging.NewLogger("harvester"), runID, cfg.Query)

	if cfg.BatchSize > config.MaxBatchSize {
		logger.Warn().Int("batch_size", cfg.BatchSize).Int("max", config.MaxBatchSize).Msg("Batch size capped")
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr, logging.NewLogger("metrics")); err != nil {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	ghClient, err := client.New(client.Config{
		Endpoint:  cfg.GraphQLURL,
		Token:     cfg.GitHubToken,
		UserAgent: "repo-harvester",
		Timeout:   client.DefaultTimeout,
	})
	if err != nil {
		return &exitError{code: exitConfig, err: err}
	}
	ghClient.SetLogger(logging.NewLogger("graphql-client"))

	attrs := sink.Metadata{"run_id": runID, "query": cfg.Query}
	dst, closeSink, err := openSink(ctx, cfg, opts, attrs)
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	defer closeSink()

	crawlCfg := crawler.DefaultConfig()
	crawlCfg.Query = cfg.Query
	crawlCfg.Target = cfg.Target
	crawlCfg.PageSize = cfg.PageSize()
	crawlCfg.RunID = runID

	var store *checkpoint.Store
	if cfg.RedisURL != "" {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return &exitError{code: exitFailure, err: err}
		}
		defer rdb.Close()
		store = checkpoint.NewStore(rdb, cfg.CheckpointTTL)

		if opts.resume {
			applyCheckpoint(ctx, store, &crawlCfg, logger)
		}
	}

	c, err := crawler.New(ghClient, ratelimit.NewAdvisor(logging.NewLogger("ratelimit")), dst, crawlCfg)
	if err != nil {
		return &exitError{code: exitConfig, err: err}
	}
	c.SetLogger(logging.WithRun(logging.NewLogger("crawler"), runID, cfg.Query))
	logger.Info().
		Int("page_size", c.Query().PageSize).
		Int("budget", c.Budget()).
		Bool("dry_run", opts.dryRun).
		Msg("Crawler configured")
	if store != nil {
		c.SetCheckpointer(store)
	}

	var reporter progress.Reporter = progress.Noop{}
	if !opts.noProgress {
		reporter = progress.NewTracker(stderr, "Harvesting", cfg.Target, crawlCfg.StartTotal)
	}
	c.SetProgress(reporter)

	start := time.Now()
	res, runErr := c.Run(ctx)
	reporter.Done()

	if store != nil && (res.Reason == crawler.StopTargetReached || res.Reason == crawler.StopSourceExhausted) {
		// The caller's context may already be done; clearing must still happen.
		clearCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := store.Clear(clearCtx, cfg.Query); err != nil {
			logger.Warn().Err(err).Msg("Failed to clear checkpoint")
		}
		cancel()
	}

	summary := progress.Summary{
		RunID:      runID,
		Query:      cfg.Query,
		Target:     cfg.Target,
		Total:      res.TotalFetched,
		Iterations: res.Iterations,
		Reason:     string(res.Reason),
		Cursor:     res.Cursor,
		Elapsed:    time.Since(start),
		DryRun:     opts.dryRun,
	}
	fmt.Fprintln(stdout, summary.Line())
	if !opts.noProgress {
		summary.Render(stderr)
	}

	switch {
	case runErr != nil:
		return &exitError{code: exitFailure, err: runErr}
	case res.Reason == crawler.StopCancelled:
		return &exitError{code: exitCancelled}
	default:
		return nil
	}
}

// openSink returns the memory sink for dry runs and a migrated PostgreSQL
// sink otherwise.
func openSink(ctx context.Context, cfg config.Config, opts options, attrs sink.Metadata) (sink.Sink, func(), error) {
	if opts.dryRun {
		return sink.NewMemory(attrs), func() {}, nil
	}

	pg, err := sink.NewPostgres(ctx, sink.DefaultPostgresConfig(cfg.DatabaseURL), attrs, logging.NewLogger("sink"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}

	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return rdb, nil
}

// applyCheckpoint resumes from the stored checkpoint of the query, if any.
// A missing or unreadable checkpoint starts a fresh crawl.
func applyCheckpoint(ctx context.Context, store *checkpoint.Store, cfg *crawler.Config, logger zerolog.Logger) {
	cp, err := store.Load(ctx, cfg.Query)
	switch {
	case errors.Is(err, checkpoint.ErrNoCheckpoint):
		logger.Info().Msg("No checkpoint found, starting fresh")
		return
	case err != nil:
		logger.Warn().Err(err).Msg("Ignoring unreadable checkpoint")
		return
	}

	cfg.StartCursor = cp.Cursor
	cfg.StartTotal = cp.TotalFetched
	logger.Info().
		Str("cursor", cp.Cursor).
		Int("total_fetched", cp.TotalFetched).
		Str("previous_run_id", cp.RunID).
		Time("updated_at", cp.UpdatedAt).
		Msg("Resuming from checkpoint")
}
