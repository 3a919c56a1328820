// Package crawler drives the paginated harvest: it requests pages, backs off
// on failures, hands records to the sink and advances the cursor until the
// target is met, the source runs dry or the iteration budget is spent.
//
// The loop is an explicit state machine (see State) whose moves are checked
// against a transition table. All state of one run lives in a CrawlState
// owned by Run.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/repo-harvester/pkg/checkpoint"
	"github.com/Sternrassler/repo-harvester/pkg/client"
	"github.com/Sternrassler/repo-harvester/pkg/pagination"
	"github.com/Sternrassler/repo-harvester/pkg/ratelimit"
	"github.com/Sternrassler/repo-harvester/pkg/sink"
)

// PageFetcher requests one page of search results.
type PageFetcher interface {
	FetchPage(ctx context.Context, query string, first int, after string) (*client.Page, error)
}

// RateAdvisor turns telemetry into pause decisions.
type RateAdvisor interface {
	Advise(t *ratelimit.Telemetry, now time.Time) ratelimit.Action
	AdviseRetry(t *ratelimit.Telemetry, now time.Time) ratelimit.Action
}

// Progress receives the number of records added by each page.
type Progress interface {
	Add(n int)
}

// Checkpointer persists the position reached after every page.
type Checkpointer interface {
	Save(ctx context.Context, cp checkpoint.Checkpoint) error
}

type noopProgress struct{}

func (noopProgress) Add(int) {}

// Config holds the crawl parameters.
type Config struct {
	// Query is the GitHub search expression.
	Query string

	// Target is the number of records after which the crawl stops (REQUIRED).
	Target int

	// PageSize is the preferred page size, clamped to [1, client.MaxPageSize].
	PageSize int

	// PolitenessDelay is the pause after a page when no rate pause is advised.
	PolitenessDelay time.Duration

	// TransportBaseDelay and TransportStepDelay define the transport backoff:
	// base + step × iteration.
	TransportBaseDelay time.Duration
	TransportStepDelay time.Duration

	// BudgetSlack is added to Target/PageSize to form the iteration ceiling.
	BudgetSlack int

	// RunID is written into every checkpoint.
	RunID string

	// StartCursor and StartTotal resume a previous crawl.
	StartCursor string
	StartTotal  int
}

// DefaultConfig returns the standard crawl configuration.
func DefaultConfig() Config {
	return Config{
		Query:              "stars:>0",
		Target:             100000,
		PageSize:           client.MaxPageSize,
		PolitenessDelay:    500 * time.Millisecond,
		TransportBaseDelay: 10 * time.Second,
		TransportStepDelay: 2 * time.Second,
		BudgetSlack:        10,
	}
}

// SearchQuery is the immutable query of a run.
type SearchQuery struct {
	Query    string
	PageSize int
}

// CrawlState is the mutable state of one Run.
type CrawlState struct {
	Cursor       *pagination.Cursor
	TotalFetched int
	Iterations   int

	page   *client.Page
	batch  []sink.Record
	wait   time.Duration
	reason StopReason
	err    error

	countLogged bool
}

// Result summarises a finished crawl.
type Result struct {
	TotalFetched int
	Iterations   int
	Reason       StopReason

	// Cursor is the last cursor the crawl advanced past.
	Cursor string
}

// Crawler runs the harvest loop.
type Crawler struct {
	fetcher      PageFetcher
	advisor      RateAdvisor
	sink         sink.Sink
	sleeper      Sleeper
	progress     Progress
	checkpointer Checkpointer

	query  SearchQuery
	config Config
	budget int

	logger zerolog.Logger
	now    func() time.Time
}

// New creates a crawler. The page size is clamped to the API maximum and
// zero pacing fields are filled from DefaultConfig.
func New(fetcher PageFetcher, advisor RateAdvisor, s sink.Sink, cfg Config) (*Crawler, error) {
	if fetcher == nil || advisor == nil || s == nil {
		return nil, fmt.Errorf("fetcher, advisor and sink are required")
	}
	if cfg.Target <= 0 {
		return nil, fmt.Errorf("target must be positive, got %d", cfg.Target)
	}
	if cfg.StartTotal < 0 {
		return nil, fmt.Errorf("start total must not be negative, got %d", cfg.StartTotal)
	}
	if cfg.BudgetSlack < 0 || cfg.PolitenessDelay < 0 || cfg.TransportBaseDelay < 0 || cfg.TransportStepDelay < 0 {
		return nil, fmt.Errorf("budget slack and delays must not be negative")
	}

	// Zero-valued pacing fields take the defaults.
	defaults := DefaultConfig()
	if cfg.BudgetSlack == 0 {
		cfg.BudgetSlack = defaults.BudgetSlack
	}
	if cfg.PolitenessDelay == 0 {
		cfg.PolitenessDelay = defaults.PolitenessDelay
	}
	if cfg.TransportBaseDelay == 0 {
		cfg.TransportBaseDelay = defaults.TransportBaseDelay
	}
	if cfg.TransportStepDelay == 0 {
		cfg.TransportStepDelay = defaults.TransportStepDelay
	}

	cfg.PageSize = max(1, min(cfg.PageSize, client.MaxPageSize))

	remaining := max(cfg.Target-cfg.StartTotal, 0)

	return &Crawler{
		fetcher:  fetcher,
		advisor:  advisor,
		sink:     s,
		sleeper:  ContextSleeper{},
		progress: noopProgress{},
		query:    SearchQuery{Query: cfg.Query, PageSize: cfg.PageSize},
		config:   cfg,
		budget:   remaining/cfg.PageSize + cfg.BudgetSlack,
		logger:   log.With().Str("component", "crawler").Logger(),
		now:      time.Now,
	}, nil
}

// SetLogger replaces the crawler logger.
func (c *Crawler) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}

// SetSleeper replaces the sleeper used for all pauses.
func (c *Crawler) SetSleeper(s Sleeper) {
	c.sleeper = s
}

// SetProgress attaches a progress display.
func (c *Crawler) SetProgress(p Progress) {
	c.progress = p
}

// SetCheckpointer enables checkpoints after every advanced page.
func (c *Crawler) SetCheckpointer(cp Checkpointer) {
	c.checkpointer = cp
}

// Query returns the search query of the crawler.
func (c *Crawler) Query() SearchQuery {
	return c.query
}

// Budget returns the iteration ceiling.
func (c *Crawler) Budget() int {
	return c.budget
}

// Run executes the crawl until it stops. Budget exhaustion and cancellation
// are reported through Result.Reason, not as errors.
func (c *Crawler) Run(ctx context.Context) (Result, error) {
	st := &CrawlState{
		Cursor:       pagination.NewCursor(c.config.StartCursor),
		TotalFetched: c.config.StartTotal,
	}

	c.logger.Info().
		Str("query", c.query.Query).
		Int("target", c.config.Target).
		Int("page_size", c.query.PageSize).
		Int("budget", c.budget).
		Str("cursor", st.Cursor.After()).
		Int("total_fetched", st.TotalFetched).
		Msg("Starting crawl")

	state := StateRequesting
	for state != StateStopped {
		var next State
		switch state {
		case StateRequesting:
			next = c.request(ctx, st)
		case StateBackoff:
			next = c.backoff(ctx, st)
		case StatePersisting:
			next = c.persist(ctx, st)
		case StateAdvancing:
			next = c.advance(ctx, st)
		}

		if !CanTransition(state, next) {
			return c.result(st), fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, state, next)
		}
		state = next
	}

	crawlStops.WithLabelValues(string(st.reason)).Inc()

	event := c.logger.Info()
	if st.reason == StopBudgetExhausted || st.reason == StopFailed {
		event = c.logger.Warn()
	}
	event.
		Str("reason", string(st.reason)).
		Int("total_fetched", st.TotalFetched).
		Int("iterations", st.Iterations).
		Int("pages", st.Cursor.Advances()).
		Str("cursor", st.Cursor.After()).
		Msg("Crawl stopped")

	return c.result(st), st.err
}

func (c *Crawler) result(st *CrawlState) Result {
	return Result{
		TotalFetched: st.TotalFetched,
		Iterations:   st.Iterations,
		Reason:       st.reason,
		Cursor:       st.Cursor.After(),
	}
}

func (c *Crawler) stop(st *CrawlState, reason StopReason) State {
	st.reason = reason
	return StateStopped
}

func (c *Crawler) request(ctx context.Context, st *CrawlState) State {
	if ctx.Err() != nil {
		return c.stop(st, StopCancelled)
	}
	if st.TotalFetched >= c.config.Target {
		return c.stop(st, StopTargetReached)
	}
	if st.Iterations >= c.budget {
		return c.stop(st, StopBudgetExhausted)
	}

	st.Iterations++
	first := min(c.query.PageSize, c.config.Target-st.TotalFetched)

	page, err := c.fetcher.FetchPage(ctx, c.query.Query, first, st.Cursor.After())
	if err == nil {
		st.page = page
		if !st.countLogged {
			st.countLogged = true
			c.logger.Info().Int("repository_count", page.RepositoryCount).Msg("Search matched repositories")
		}
		return StatePersisting
	}

	if ctx.Err() != nil {
		return c.stop(st, StopCancelled)
	}

	class := client.Classify(err)
	now := c.now()

	switch {
	case class == client.ErrorClassEmpty:
		c.logger.Warn().
			Int("iteration", st.Iterations).
			Str("cursor", st.Cursor.After()).
			Msg("Response carried no search payload")
		return c.stop(st, StopEmptyResult)

	case !class.Retryable():
		c.logger.Error().Err(err).Int("iteration", st.Iterations).Msg("Request cannot be retried")
		st.err = err
		return c.stop(st, StopFailed)

	case class == client.ErrorClassProtocol:
		var telemetry *ratelimit.Telemetry
		var pe *client.ProtocolError
		if errors.As(err, &pe) {
			telemetry = pe.Telemetry
		}
		st.wait = c.advisor.AdviseRetry(telemetry, now).Duration(now)

	default:
		st.wait = c.transportBackoff(st.Iterations)
	}

	backoffSeconds.WithLabelValues(string(class)).Observe(st.wait.Seconds())
	c.logger.Warn().
		Err(err).
		Str("error_class", string(class)).
		Int("iteration", st.Iterations).
		Str("cursor", st.Cursor.After()).
		Dur("wait", st.wait).
		Msg("Request failed, backing off")

	return StateBackoff
}

// transportBackoff grows linearly with the attempt number.
func (c *Crawler) transportBackoff(iteration int) time.Duration {
	return c.config.TransportBaseDelay + time.Duration(iteration)*c.config.TransportStepDelay
}

func (c *Crawler) backoff(ctx context.Context, st *CrawlState) State {
	if err := c.sleeper.Sleep(ctx, st.wait); err != nil {
		return c.stop(st, StopCancelled)
	}
	return StateRequesting
}

func (c *Crawler) persist(ctx context.Context, st *CrawlState) State {
	st.batch = toRecords(st.page.Nodes, c.now())
	recordsFetched.Add(float64(len(st.batch)))

	if dropped := len(st.page.Nodes) - len(st.batch); dropped > 0 {
		c.logger.Debug().Int("dropped", dropped).Msg("Filtered null or malformed nodes")
	}

	if len(st.batch) == 0 {
		return StateAdvancing
	}

	if err := c.sink.Upsert(ctx, st.batch); err != nil {
		sinkFailures.Inc()
		c.logger.Error().
			Err(err).
			Int("batch_size", len(st.batch)).
			Int("iteration", st.Iterations).
			Msg("Sink upsert failed, continuing")
	}

	return StateAdvancing
}

func (c *Crawler) advance(ctx context.Context, st *CrawlState) State {
	st.TotalFetched += len(st.batch)
	c.progress.Add(len(st.batch))

	if err := st.Cursor.Advance(st.page.EndCursor, st.page.HasNextPage); err != nil {
		return c.stop(st, StopSourceExhausted)
	}

	c.logger.Debug().
		Int("iteration", st.Iterations).
		Int("batch_size", len(st.batch)).
		Int("total_fetched", st.TotalFetched).
		Str("cursor", st.Cursor.After()).
		Msg("Page processed")

	// An exhausted cursor still holds the previous token, which must not be
	// paired with the new total.
	if st.Cursor.Exhausted() {
		return c.stop(st, StopSourceExhausted)
	}

	c.saveCheckpoint(ctx, st)

	if st.TotalFetched >= c.config.Target {
		return c.stop(st, StopTargetReached)
	}

	now := c.now()
	wait := c.config.PolitenessDelay
	if action := c.advisor.Advise(st.page.Telemetry, now); action.Kind == ratelimit.SleepUntil {
		wait = action.Duration(now)
	}

	if err := c.sleeper.Sleep(ctx, wait); err != nil {
		return c.stop(st, StopCancelled)
	}
	return StateRequesting
}

func (c *Crawler) saveCheckpoint(ctx context.Context, st *CrawlState) {
	if c.checkpointer == nil {
		return
	}

	cp := checkpoint.Checkpoint{
		Query:        c.query.Query,
		Cursor:       st.Cursor.After(),
		TotalFetched: st.TotalFetched,
		RunID:        c.config.RunID,
	}
	if err := c.checkpointer.Save(ctx, cp); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to save checkpoint")
	}
}
