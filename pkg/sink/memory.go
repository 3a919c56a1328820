package sink

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"
)

// StoredRepository is a row as held by the Memory sink.
type StoredRepository struct {
	Record
	Metadata    Metadata
	LastCrawled time.Time
}

// Memory is an in-process Sink with the same upsert semantics as Postgres.
// Used for dry runs and tests.
type Memory struct {
	mu    sync.RWMutex
	rows  map[string]*StoredRepository
	attrs Metadata
	calls int

	// FailWith, when set, is returned by Upsert without writing anything.
	FailWith error
}

// NewMemory creates an empty memory sink. attrs are merged into the metadata
// of every record written.
func NewMemory(attrs Metadata) *Memory {
	return &Memory{
		rows:  make(map[string]*StoredRepository),
		attrs: attrs,
	}
}

// Upsert implements Sink.
func (m *Memory) Upsert(ctx context.Context, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.FailWith != nil {
		return m.FailWith
	}

	now := time.Now()
	for _, r := range collapse(records) {
		incoming := metadataFor(r, m.attrs)

		row, ok := m.rows[r.ID]
		if !ok {
			m.rows[r.ID] = &StoredRepository{Record: r, Metadata: incoming, LastCrawled: now}
			continue
		}

		row.Record = r
		maps.Copy(row.Metadata, incoming)
		row.LastCrawled = now
	}
	return nil
}

// Calls returns how many times Upsert was invoked.
func (m *Memory) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// Len returns the number of stored repositories.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

// Get returns a copy of the stored repository with the given id.
func (m *Memory) Get(id string) (StoredRepository, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.rows[id]
	if !ok {
		return StoredRepository{}, false
	}
	out := *row
	out.Metadata = maps.Clone(row.Metadata)
	return out, true
}

// IDs returns all stored ids in sorted order.
func (m *Memory) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.rows))
	for id := range m.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
