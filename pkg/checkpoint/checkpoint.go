package checkpoint

import (
	"strings"
	"time"
)

// keyPrefix namespaces all checkpoint keys.
const keyPrefix = "harvester:checkpoint:"

// Checkpoint is the resumable part of a crawl.
type Checkpoint struct {
	// Query is the search query the cursor belongs to.
	Query string `json:"query"`

	// Cursor is the last end cursor the crawl advanced past.
	Cursor string `json:"cursor"`

	// TotalFetched is the number of records handed to the sink so far.
	TotalFetched int `json:"total_fetched"`

	// RunID identifies the run that wrote the checkpoint.
	RunID string `json:"run_id"`

	// UpdatedAt is when the checkpoint was written.
	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the Redis key for a query. Whitespace is collapsed so that
// "stars:>0" and " stars:>0 " share a checkpoint.
//
// Example:
//
//	harvester:checkpoint:language:go stars:>10
func Key(query string) string {
	return keyPrefix + strings.Join(strings.Fields(query), " ")
}
