// Package progress renders crawl progress against the target and the final
// run summary.
package progress

import (
	"io"
	"sync/atomic"
	"time"

	"github.com/jedib0t/go-pretty/v6/progress"
)

// Reporter receives record counts as pages complete.
type Reporter interface {
	Add(n int)
	Done()
}

// Noop discards progress.
type Noop struct{}

// Add implements Reporter.
func (Noop) Add(int) {}

// Done implements Reporter.
func (Noop) Done() {}

// Tracker is a go-pretty progress bar. Rendering runs in its own goroutine
// until Done is called.
type Tracker struct {
	writer  progress.Writer
	tracker *progress.Tracker
	value   atomic.Int64
	stopped atomic.Bool
}

// NewTracker starts rendering a bar towards target on out. start is the
// count already reached, e.g. when resuming.
func NewTracker(out io.Writer, message string, target, start int) *Tracker {
	pw := progress.NewWriter()
	pw.SetOutputWriter(out)
	pw.SetAutoStop(false)
	pw.SetTrackerLength(40)
	pw.SetUpdateFrequency(250 * time.Millisecond)
	pw.SetStyle(progress.StyleDefault)
	pw.Style().Visibility.ETA = true
	pw.Style().Visibility.Speed = true

	tr := &progress.Tracker{
		Message: message,
		Total:   int64(target),
		Units:   progress.UnitsDefault,
	}
	tr.SetValue(int64(start))
	pw.AppendTracker(tr)

	t := &Tracker{writer: pw, tracker: tr}
	t.value.Store(int64(start))

	go pw.Render()
	return t
}

// Add implements Reporter.
func (t *Tracker) Add(n int) {
	if n <= 0 {
		return
	}
	t.value.Add(int64(n))
	t.tracker.Increment(int64(n))
}

// Value returns the count reached so far.
func (t *Tracker) Value() int64 {
	return t.value.Load()
}

// Done stops rendering and waits for the last frame. Safe to call twice.
func (t *Tracker) Done() {
	if !t.stopped.CompareAndSwap(false, true) {
		return
	}

	t.tracker.MarkAsDone()
	// Let the render loop pick up the final state before stopping it.
	time.Sleep(100 * time.Millisecond)
	t.writer.Stop()

	for t.writer.IsRenderInProgress() {
		time.Sleep(10 * time.Millisecond)
	}
}
