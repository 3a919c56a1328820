package progress

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Summary is the outcome of one harvest run.
type Summary struct {
	RunID      string
	Query      string
	Target     int
	Total      int
	Iterations int
	Reason     string
	Cursor     string
	Elapsed    time.Duration
	DryRun     bool
}

// Line returns the one-line summary printed at the end of every run.
func (s Summary) Line() string {
	return fmt.Sprintf("Done: total=%d reason=%s iterations=%d", s.Total, s.Reason, s.Iterations)
}

// Render writes the summary as a table.
func (s Summary) Render(w io.Writer) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Harvest summary")
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Colors: text.Colors{text.Bold}},
		{Number: 2, WidthMax: 60},
	})

	sink := "postgres"
	if s.DryRun {
		sink = "memory (dry run)"
	}

	t.AppendRows([]table.Row{
		{"Run", s.RunID},
		{"Query", s.Query},
		{"Sink", sink},
		{"Records", fmt.Sprintf("%d / %d", s.Total, s.Target)},
		{"Iterations", s.Iterations},
		{"Stop reason", s.Reason},
		{"Last cursor", s.Cursor},
		{"Elapsed", s.Elapsed.Round(time.Millisecond)},
	})
	t.Render()
}
