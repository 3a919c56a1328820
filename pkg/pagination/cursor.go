package pagination

import (
	"errors"
)

// ErrCursorExhausted is returned when advancing a cursor that already reached the end.
var ErrCursorExhausted = errors.New("cursor exhausted")

// Cursor is the resume position of a paginated search.
type Cursor struct {
	token     string
	exhausted bool
	advances  int
}

// NewCursor creates a cursor. An empty token means "start from the first page";
// a non-empty token resumes after a previously returned endCursor.
func NewCursor(token string) *Cursor {
	return &Cursor{token: token}
}

// After returns the token to send as the GraphQL `after` variable.
// Empty means the first page.
func (c *Cursor) After() string {
	return c.token
}

// Exhausted reports whether the source has no more pages.
func (c *Cursor) Exhausted() bool {
	return c.exhausted
}

// Advances returns how many pages the cursor has moved past.
func (c *Cursor) Advances() int {
	return c.advances
}

// Advance moves the cursor past a handled page. When hasNext is false or the
// API returned no endCursor the cursor becomes exhausted and keeps its last
// token so that it can still be reported.
func (c *Cursor) Advance(endCursor string, hasNext bool) error {
	if c.exhausted {
		return ErrCursorExhausted
	}

	c.advances++

	if !hasNext || endCursor == "" {
		c.exhausted = true
		return nil
	}

	c.token = endCursor
	return nil
}
