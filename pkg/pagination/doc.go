// Package pagination tracks the position of a cursor-paginated GitHub search.
//
// GraphQL connections return a pageInfo block with an opaque endCursor and a
// hasNextPage flag. A Cursor starts empty, moves forward only when a page has
// been fully handled, and becomes exhausted when the API reports no more pages.
//
// Example usage:
//
//	cur := pagination.NewCursor("")
//	for !cur.Exhausted() {
//		page, err := fetch(ctx, cur.After())
//		if err != nil {
//			continue // retry with the same cursor
//		}
//		cur.Advance(page.EndCursor, page.HasNextPage)
//	}
//
// A Cursor is not safe for concurrent use; it belongs to a single crawl loop.
package pagination
