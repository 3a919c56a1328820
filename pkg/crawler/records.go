package crawler

import (
	"time"

	"github.com/Sternrassler/repo-harvester/pkg/client"
	"github.com/Sternrassler/repo-harvester/pkg/sink"
)

// toRecords maps search nodes to sink records. Null nodes and nodes without
// an id (non-repository results) are dropped.
func toRecords(nodes []*client.Node, fetchedAt time.Time) []sink.Record {
	records := make([]sink.Record, 0, len(nodes))
	for _, n := range nodes {
		if n == nil || n.ID == "" {
			continue
		}
		records = append(records, sink.Record{
			ID:         n.ID,
			Name:       n.Name,
			OwnerLogin: n.OwnerLogin(),
			FullName:   n.NameWithOwner,
			URL:        n.URL,
			StarCount:  n.StargazerCount,
			FetchedAt:  fetchedAt,
		})
	}
	return records
}
