// Package sink persists crawled repositories. Every implementation is
// idempotent by repository id: re-applying a record overwrites its scalar
// fields and merges its metadata into what is already stored.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

// Record is one repository as seen on a search page.
type Record struct {
	ID         string
	Name       string
	OwnerLogin string
	FullName   string
	URL        string
	StarCount  int64
	FetchedAt  time.Time
}

// Metadata is the free-form JSON attachment stored next to a repository.
type Metadata map[string]any

// Sink is the durable storage boundary of the crawler.
type Sink interface {
	// Upsert writes the whole batch or returns an error. Records with the same
	// ID must never produce duplicates.
	Upsert(ctx context.Context, records []Record) error
}

// metadataFor builds the metadata attached to r: the run attributes plus the
// fetch timestamp.
func metadataFor(r Record, attrs Metadata) Metadata {
	m := make(Metadata, len(attrs)+1)
	maps.Copy(m, attrs)
	m["fetched_at"] = r.FetchedAt.UTC().Format(time.RFC3339Nano)
	return m
}

func encodeMetadata(m Metadata) (string, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}

// collapse removes duplicate ids from a batch. The last occurrence wins but
// keeps the position of the first, so the batch order stays stable.
func collapse(records []Record) []Record {
	index := make(map[string]int, len(records))
	out := make([]Record, 0, len(records))

	for _, r := range records {
		if i, seen := index[r.ID]; seen {
			out[i] = r
			continue
		}
		index[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}
