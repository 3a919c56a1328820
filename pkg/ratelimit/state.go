// Package ratelimit interprets the GitHub GraphQL rateLimit block returned with
// every search response and decides whether the crawler may proceed or has to
// pause until the quota window resets.
package ratelimit

import (
	"time"
)

// Thresholds for rate limit decisions.
const (
	// SafetyThreshold pauses the crawl when fewer points than this remain in
	// the current window.
	SafetyThreshold = 100

	// SafetyMargin is added on top of the reported reset time so the next
	// request lands in the fresh window.
	SafetyMargin = 2 * time.Second

	// FallbackDelay is used when a failed response carries no usable telemetry.
	FallbackDelay = 5 * time.Second
)

// Telemetry is the rate limit budget reported alongside a GraphQL response.
// It is consumed immediately and never persisted.
type Telemetry struct {
	// Limit is the maximum number of points per window.
	Limit int `json:"limit"`

	// Cost is the number of points the query consumed.
	Cost int `json:"cost"`

	// Remaining is the number of points left in the current window.
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets (ISO-8601 UTC on the wire).
	// Zero when the API did not report it.
	ResetAt time.Time `json:"resetAt"`
}

// HasReset reports whether a reset timestamp was supplied.
func (t *Telemetry) HasReset() bool {
	return t != nil && !t.ResetAt.IsZero()
}

// BelowThreshold returns true if the remaining budget is under SafetyThreshold.
func (t *Telemetry) BelowThreshold() bool {
	return t != nil && t.Remaining < SafetyThreshold
}

// TimeUntilReset returns the duration until the window resets.
// Returns 0 if the reset time has already passed or is unknown.
func (t *Telemetry) TimeUntilReset(now time.Time) time.Duration {
	if !t.HasReset() {
		return 0
	}
	d := t.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
