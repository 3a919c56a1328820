package crawler

import (
	"errors"
	"slices"
)

// ErrIllegalTransition is returned by Run if a step attempts a move the
// transition table does not allow.
var ErrIllegalTransition = errors.New("illegal state transition")

// State is a phase of the crawl loop.
type State int

const (
	// StateRequesting sends one page request.
	StateRequesting State = iota

	// StateBackoff waits before retrying the same cursor.
	StateBackoff

	// StatePersisting hands the page's records to the sink.
	StatePersisting

	// StateAdvancing moves the cursor and decides whether to continue.
	StateAdvancing

	// StateStopped is terminal.
	StateStopped
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateRequesting:
		return "requesting"
	case StateBackoff:
		return "backoff"
	case StatePersisting:
		return "persisting"
	case StateAdvancing:
		return "advancing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// transitions lists the states reachable from each state.
var transitions = map[State][]State{
	StateRequesting: {StatePersisting, StateBackoff, StateStopped},
	StateBackoff:    {StateRequesting, StateStopped},
	StatePersisting: {StateAdvancing},
	StateAdvancing:  {StateRequesting, StateStopped},
	StateStopped:    nil,
}

// CanTransition reports whether the loop may move from one state to another.
func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// StopReason explains why a crawl ended.
type StopReason string

const (
	// StopTargetReached means the requested number of records was fetched.
	StopTargetReached StopReason = "target_reached"

	// StopSourceExhausted means the API reported no further pages.
	StopSourceExhausted StopReason = "source_exhausted"

	// StopBudgetExhausted means the iteration ceiling was hit before the
	// target. The partial total is still a successful result.
	StopBudgetExhausted StopReason = "budget_exhausted"

	// StopEmptyResult means a response carried no search payload.
	StopEmptyResult StopReason = "empty_result"

	// StopCancelled means the context was cancelled.
	StopCancelled StopReason = "cancelled"

	// StopFailed means a non-retryable request error other than an empty result.
	StopFailed StopReason = "failed"
)
