// Package testutil provides testing utilities for the harvester.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines one scripted reply of the mock GraphQL endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is what the mock saw for a single POST.
type RecordedRequest struct {
	Authorization string
	Query         string
	Variables     map[string]any
}

// After returns the `after` variable, "" when null.
func (r RecordedRequest) After() string {
	if s, ok := r.Variables["after"].(string); ok {
		return s
	}
	return ""
}

// First returns the `first` variable.
func (r RecordedRequest) First() int {
	if f, ok := r.Variables["first"].(float64); ok {
		return int(f)
	}
	return 0
}

// MockGitHub is a scripted GitHub GraphQL server. Responses are served in the
// order they were enqueued; once the queue is empty the final, exhausted page
// is returned.
type MockGitHub struct {
	server *httptest.Server

	mu        sync.Mutex
	responses []MockResponse
	requests  []RecordedRequest
}

// NewMockGitHub creates and starts a new mock server.
func NewMockGitHub() *MockGitHub {
	mock := &MockGitHub{}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		var payload struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		_ = json.Unmarshal(body, &payload)

		mock.mu.Lock()
		mock.requests = append(mock.requests, RecordedRequest{
			Authorization: r.Header.Get("Authorization"),
			Query:         payload.Query,
			Variables:     payload.Variables,
		})
		resp := NewPageResponse(nil, "", false, 5000)
		if len(mock.responses) > 0 {
			resp = mock.responses[0]
			mock.responses = mock.responses[1:]
		}
		mock.mu.Unlock()

		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	}))

	return mock
}

// URL returns the GraphQL endpoint URL.
func (m *MockGitHub) URL() string {
	return m.server.URL + "/graphql"
}

// Close shuts down the mock server.
func (m *MockGitHub) Close() {
	m.server.Close()
}

// Enqueue appends scripted responses.
func (m *MockGitHub) Enqueue(responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, responses...)
}

// Requests returns a copy of all recorded requests.
func (m *MockGitHub) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// RequestCount returns the number of requests made to the server.
func (m *MockGitHub) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// RepoNode builds a repository node for page n, item i.
func RepoNode(n, i int) map[string]any {
	owner := fmt.Sprintf("owner%d", n)
	name := fmt.Sprintf("repo%d-%d", n, i)
	return map[string]any{
		"id":             fmt.Sprintf("R_%d_%d", n, i),
		"name":           name,
		"nameWithOwner":  owner + "/" + name,
		"url":            "https://github.com/" + owner + "/" + name,
		"stargazerCount": 10*n + i,
		"owner":          map[string]any{"login": owner},
	}
}

// RepoNodes builds count repository nodes for page n.
func RepoNodes(n, count int) []any {
	nodes := make([]any, 0, count)
	for i := 0; i < count; i++ {
		nodes = append(nodes, RepoNode(n, i))
	}
	return nodes
}

func rateLimit(remaining int, resetAt time.Time) map[string]any {
	return map[string]any{
		"limit":     5000,
		"cost":      1,
		"remaining": remaining,
		"resetAt":   resetAt.UTC().Format(time.RFC3339),
	}
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// NewPageResponse creates a 200 OK search page. An empty endCursor is sent as null.
func NewPageResponse(nodes []any, endCursor string, hasNext bool, remaining int) MockResponse {
	return NewPageResponseWithReset(nodes, endCursor, hasNext, remaining, time.Now().Add(time.Hour))
}

// NewPageResponseWithReset is NewPageResponse with an explicit reset time.
func NewPageResponseWithReset(nodes []any, endCursor string, hasNext bool, remaining int, resetAt time.Time) MockResponse {
	if nodes == nil {
		nodes = []any{}
	}
	var cursor any
	if endCursor != "" {
		cursor = endCursor
	}

	body := map[string]any{
		"data": map[string]any{
			"search": map[string]any{
				"repositoryCount": 1000,
				"pageInfo": map[string]any{
					"endCursor":   cursor,
					"hasNextPage": hasNext,
				},
				"nodes": nodes,
			},
			"rateLimit": rateLimit(remaining, resetAt),
		},
	}
	return MockResponse{StatusCode: http.StatusOK, Body: mustJSON(body)}
}

// NewGraphQLErrorResponse creates a 200 OK response with an error envelope.
// When withRateLimit is set the rateLimit block is embedded in data.
func NewGraphQLErrorResponse(message string, withRateLimit bool, remaining int, resetAt time.Time) MockResponse {
	body := map[string]any{
		"errors": []any{
			map[string]any{"type": "RATE_LIMITED", "message": message},
		},
	}
	if withRateLimit {
		body["data"] = map[string]any{"rateLimit": rateLimit(remaining, resetAt)}
	} else {
		body["data"] = nil
	}
	return MockResponse{StatusCode: http.StatusOK, Body: mustJSON(body)}
}

// NewEmptySearchResponse creates a 200 OK response whose search payload is null.
func NewEmptySearchResponse() MockResponse {
	body := map[string]any{
		"data": map[string]any{
			"search":    nil,
			"rateLimit": rateLimit(4999, time.Now().Add(time.Hour)),
		},
	}
	return MockResponse{StatusCode: http.StatusOK, Body: mustJSON(body)}
}

// NewServerErrorResponse creates a 502 Bad Gateway response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusBadGateway,
		Body:       `{"message": "Server Error"}`,
	}
}

// NewUnauthorizedResponse creates a 401 response.
func NewUnauthorizedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"message": "Bad credentials"}`,
	}
}
