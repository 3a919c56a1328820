// Package checkpoint persists crawl progress in Redis so an interrupted
// harvest can continue where it stopped.
//
// A checkpoint is written after every page the crawler advances past and
// holds the continuation cursor and the running total. Checkpoints are keyed
// by the normalised search query and expire after a TTL, so a stale cursor
// is never reused days later.
//
// # Basic Usage
//
//	store := checkpoint.NewStore(redisClient, checkpoint.DefaultTTL)
//
//	cp, err := store.Load(ctx, "stars:>0")
//	if errors.Is(err, checkpoint.ErrNoCheckpoint) {
//		// fresh crawl
//	}
//
// # Metrics
//
//   - harvester_checkpoint_errors_total{operation} - Redis or decode failures
//   - harvester_checkpoint_saves_total - Checkpoints written
package checkpoint
