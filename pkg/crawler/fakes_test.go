package crawler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/repo-harvester/pkg/checkpoint"
	"github.com/Sternrassler/repo-harvester/pkg/client"
	"github.com/Sternrassler/repo-harvester/pkg/ratelimit"
	"github.com/Sternrassler/repo-harvester/pkg/sink"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stderr).Level(zerolog.Disabled)
}

type fetchCall struct {
	first int
	after string
}

type step struct {
	page *client.Page
	err  error
}

// fakeFetcher replays scripted steps. Calls beyond the script get next, or an
// exhausted empty page when next is nil.
type fakeFetcher struct {
	steps  []step
	next   func(n int, call fetchCall) (*client.Page, error)
	calls  []fetchCall
	onCall func(n int)
}

func (f *fakeFetcher) FetchPage(ctx context.Context, query string, first int, after string) (*client.Page, error) {
	call := fetchCall{first: first, after: after}
	f.calls = append(f.calls, call)
	n := len(f.calls)

	if f.onCall != nil {
		f.onCall(n)
	}

	if n <= len(f.steps) {
		s := f.steps[n-1]
		return s.page, s.err
	}
	if f.next != nil {
		return f.next(n, call)
	}
	return &client.Page{}, nil
}

func (f *fakeFetcher) afters() []string {
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.after
	}
	return out
}

func (f *fakeFetcher) firsts() []int {
	out := make([]int, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.first
	}
	return out
}

// recordingSleeper records requested waits without sleeping.
type recordingSleeper struct {
	waits []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

type recordingProgress struct {
	adds []int
}

func (p *recordingProgress) Add(n int) {
	p.adds = append(p.adds, n)
}

type recordingCheckpointer struct {
	mu    sync.Mutex
	saved []checkpoint.Checkpoint
	err   error
}

func (r *recordingCheckpointer) Save(ctx context.Context, cp checkpoint.Checkpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, cp)
	return r.err
}

func node(page, i int) *client.Node {
	n := &client.Node{
		ID:             fmt.Sprintf("R_%d_%d", page, i),
		Name:           fmt.Sprintf("repo%d-%d", page, i),
		NameWithOwner:  fmt.Sprintf("owner%d/repo%d-%d", page, page, i),
		URL:            fmt.Sprintf("https://github.com/owner%d/repo%d-%d", page, page, i),
		StargazerCount: int64(page*10 + i),
	}
	n.Owner = &struct {
		Login string `json:"login"`
	}{Login: fmt.Sprintf("owner%d", page)}
	return n
}

// pageOf builds a page of count repository nodes.
func pageOf(page, count int, endCursor string, hasNext bool) *client.Page {
	nodes := make([]*client.Node, count)
	for i := range nodes {
		nodes[i] = node(page, i)
	}
	return &client.Page{
		Nodes:           nodes,
		EndCursor:       endCursor,
		HasNextPage:     hasNext,
		RepositoryCount: 1000,
		Telemetry:       &ratelimit.Telemetry{Limit: 5000, Cost: 1, Remaining: 4000, ResetAt: testNow.Add(time.Hour)},
	}
}

// endlessPages serves full pages of the requested size forever.
func endlessPages(n int, call fetchCall) (*client.Page, error) {
	return pageOf(n, call.first, fmt.Sprintf("c%d", n), true), nil
}

type harness struct {
	crawler  *Crawler
	fetcher  *fakeFetcher
	sink     *sink.Memory
	sleeper  *recordingSleeper
	progress *recordingProgress
}

func newHarness(t *testing.T, cfg Config, fetcher *fakeFetcher) *harness {
	t.Helper()

	mem := sink.NewMemory(sink.Metadata{"run_id": "test"})
	c, err := New(fetcher, ratelimit.NewAdvisor(testLogger()), mem, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	h := &harness{
		crawler:  c,
		fetcher:  fetcher,
		sink:     mem,
		sleeper:  &recordingSleeper{},
		progress: &recordingProgress{},
	}
	c.SetLogger(testLogger())
	c.SetSleeper(h.sleeper)
	c.SetProgress(h.progress)
	c.now = func() time.Time { return testNow }
	return h
}

func testConfig(target, pageSize int) Config {
	cfg := DefaultConfig()
	cfg.Target = target
	cfg.PageSize = pageSize
	return cfg
}
