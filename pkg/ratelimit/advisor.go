package ratelimit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	rateRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "harvester_rate_remaining",
		Help: "Points remaining in the current GitHub GraphQL rate limit window",
	})

	rateSleepsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvester_rate_sleeps_total",
		Help: "Total number of pauses advised by the rate model, by cause",
	}, []string{"cause"})
)

// ActionKind tells the caller what to do before the next request.
type ActionKind int

const (
	// Proceed means the next request may be sent immediately.
	Proceed ActionKind = iota

	// SleepUntil means the caller must wait until Action.Until.
	SleepUntil
)

// String implements fmt.Stringer.
func (k ActionKind) String() string {
	switch k {
	case Proceed:
		return "proceed"
	case SleepUntil:
		return "sleep_until"
	default:
		return "unknown"
	}
}

// Action is the advice returned by the Advisor.
type Action struct {
	Kind  ActionKind
	Until time.Time
}

// ProceedAction returns an Action that does not pause.
func ProceedAction() Action {
	return Action{Kind: Proceed}
}

// sleepUntil builds a SleepUntil action, clamping non-positive waits to Proceed.
func sleepUntil(until, now time.Time) Action {
	if !until.After(now) {
		return ProceedAction()
	}
	return Action{Kind: SleepUntil, Until: until}
}

// Duration returns how long to sleep from now. Always 0 for Proceed.
func (a Action) Duration(now time.Time) time.Duration {
	if a.Kind != SleepUntil {
		return 0
	}
	d := a.Until.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Advisor turns rate limit telemetry into pause decisions.
type Advisor struct {
	logger zerolog.Logger
}

// NewAdvisor creates a new rate advisor.
func NewAdvisor(logger zerolog.Logger) *Advisor {
	return &Advisor{logger: logger}
}

// Advise decides whether the crawler may proceed after a successful response.
// A nil telemetry block never pauses.
func (a *Advisor) Advise(t *Telemetry, now time.Time) Action {
	if t == nil {
		return ProceedAction()
	}

	rateRemaining.Set(float64(t.Remaining))

	if !t.BelowThreshold() || t.TimeUntilReset(now) == 0 {
		return ProceedAction()
	}

	action := sleepUntil(t.ResetAt.Add(SafetyMargin), now)
	if action.Kind == SleepUntil {
		rateSleepsTotal.WithLabelValues("low_remaining").Inc()
		a.logger.Warn().
			Int("remaining", t.Remaining).
			Int("limit", t.Limit).
			Time("reset_at", t.ResetAt).
			Dur("wait", action.Duration(now)).
			Msg("Approaching rate limit, pausing until reset")
	}
	return action
}

// AdviseRetry decides how long to wait after a protocol failure. The embedded
// telemetry is honoured when it calls for a pause; otherwise FallbackDelay applies.
func (a *Advisor) AdviseRetry(t *Telemetry, now time.Time) Action {
	if action := a.Advise(t, now); action.Kind == SleepUntil {
		return action
	}

	rateSleepsTotal.WithLabelValues("fallback").Inc()
	a.logger.Debug().
		Bool("telemetry", t != nil).
		Dur("wait", FallbackDelay).
		Msg("No rate pause advised, using fallback delay")

	return sleepUntil(now.Add(FallbackDelay), now)
}
