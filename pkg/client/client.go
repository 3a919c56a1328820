// Package client provides the GitHub GraphQL search client used by the
// harvester. It issues one paginated search request at a time and normalises
// transport and protocol failures into typed errors.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/Sternrassler/repo-harvester/pkg/ratelimit"
)

const (
	// DefaultEndpoint is the public GitHub GraphQL endpoint.
	DefaultEndpoint = "https://api.github.com/graphql"

	// MaxPageSize is the largest `first` the search connection accepts.
	MaxPageSize = 100

	// DefaultTimeout bounds a single request/response cycle.
	DefaultTimeout = 60 * time.Second

	// maxErrorBody limits how much of a failed response body ends up in errors.
	maxErrorBody = 512
)

// Prometheus metrics for GraphQL client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_requests_total",
		Help: "Total GraphQL search requests by outcome",
	}, []string{"outcome"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvester_request_duration_seconds",
		Help:    "GraphQL search request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})
)

// Config holds the client configuration.
type Config struct {
	// Endpoint is the GraphQL URL.
	Endpoint string

	// Token is the GitHub token sent as a bearer credential (REQUIRED).
	Token string

	// UserAgent header sent with every request.
	UserAgent string

	// Timeout is the per-request deadline.
	Timeout time.Duration
}

// DefaultConfig returns a configuration for api.github.com.
func DefaultConfig(token string) Config {
	return Config{
		Endpoint:  DefaultEndpoint,
		Token:     token,
		UserAgent: "repo-harvester",
		Timeout:   DefaultTimeout,
	}
}

// Node is a repository node of the search connection. Nodes for non-repository
// results decode with empty fields.
type Node struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	NameWithOwner  string `json:"nameWithOwner"`
	URL            string `json:"url"`
	StargazerCount int64  `json:"stargazerCount"`
	Owner          *struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// OwnerLogin returns the owner login or "" when the owner is missing.
func (n *Node) OwnerLogin() string {
	if n == nil || n.Owner == nil {
		return ""
	}
	return n.Owner.Login
}

// Page is one successfully fetched page of search results.
type Page struct {
	// Nodes in API order. Null nodes are kept as nil entries.
	Nodes []*Node

	// EndCursor is the continuation token ("" when the API returned null).
	EndCursor string

	// HasNextPage reports whether more pages exist after EndCursor.
	HasNextPage bool

	// RepositoryCount is the total number of matches reported by the API.
	RepositoryCount int

	// Telemetry is the rateLimit block, nil when absent.
	Telemetry *ratelimit.Telemetry
}

type searchResult struct {
	RepositoryCount int `json:"repositoryCount"`
	PageInfo        struct {
		EndCursor   *string `json:"endCursor"`
		HasNextPage bool    `json:"hasNextPage"`
	} `json:"pageInfo"`
	Nodes []*Node `json:"nodes"`
}

type graphQLResponse struct {
	Data *struct {
		Search    *searchResult        `json:"search"`
		RateLimit *ratelimit.Telemetry `json:"rateLimit"`
	} `json:"data"`
	Errors []GraphQLError `json:"errors"`
}

// Client is the GitHub GraphQL search client.
type Client struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// New creates a new client. The token is attached by an oauth2 transport.
func New(cfg Config) (*Client, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("token is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Timeout = cfg.Timeout

	return &Client{
		httpClient: httpClient,
		config:     cfg,
		logger:     log.With().Str("component", "graphql-client").Logger(),
	}, nil
}

// SetLogger replaces the client logger.
func (c *Client) SetLogger(logger zerolog.Logger) {
	c.logger = logger
}

// FetchPage requests one page of search results for query, starting after the
// given cursor ("" for the first page).
func (c *Client) FetchPage(ctx context.Context, query string, first int, after string) (*Page, error) {
	if first < 1 || first > MaxPageSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPageSize, first)
	}

	start := time.Now()
	page, err := c.fetch(ctx, query, first, after)
	requestDuration.Observe(time.Since(start).Seconds())

	outcome := "success"
	if err != nil {
		outcome = string(Classify(err))
	}
	requestsTotal.WithLabelValues(outcome).Inc()

	return page, err
}

func (c *Client) fetch(ctx context.Context, query string, first int, after string) (*Page, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	payload, err := json.Marshal(newSearchRequest(query, first, after))
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	c.logger.Debug().
		Int("first", first).
		Str("cursor", after).
		Msg("Executing search request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{StatusCode: resp.StatusCode, Message: "read body", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{
			StatusCode: resp.StatusCode,
			Message:    truncate(string(body), maxErrorBody),
		}
	}

	var decoded graphQLResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, &TransportError{StatusCode: resp.StatusCode, Message: "decode body", Err: err}
	}

	var telemetry *ratelimit.Telemetry
	if decoded.Data != nil {
		telemetry = decoded.Data.RateLimit
	}

	if len(decoded.Errors) > 0 {
		return nil, &ProtocolError{Errors: decoded.Errors, Telemetry: telemetry}
	}

	if decoded.Data == nil || decoded.Data.Search == nil {
		return nil, ErrEmptyResult
	}

	search := decoded.Data.Search
	page := &Page{
		Nodes:           search.Nodes,
		HasNextPage:     search.PageInfo.HasNextPage,
		RepositoryCount: search.RepositoryCount,
		Telemetry:       telemetry,
	}
	if search.PageInfo.EndCursor != nil {
		page.EndCursor = *search.PageInfo.EndCursor
	}

	return page, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "... (" + strconv.Itoa(len(s)-n) + " more bytes)"
}
