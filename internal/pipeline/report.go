package pipeline

import (
	"fmt"
	"io"
)

// Report is the rendered-once summary of a harvest run.
type Report struct {
	Processed int
	Successes []Success
	Failures  []Failure
}

// NewReport snapshots the ledger into a report.
func NewReport(l *Ledger, processed int) *Report {
	successes, failures := l.Snapshot()
	return &Report{
		Processed: processed,
		Successes: successes,
		Failures:  failures,
	}
}

// Render writes the final run summary.
func (r *Report) Render(w io.Writer) {
	fmt.Fprintln(w, "Show statistics")
	fmt.Fprintln(w, "================")
	fmt.Fprintf(w, "Processed %d archives\n", r.Processed)

	fmt.Fprintf(w, "Successfully processed %d archives\n", len(r.Successes))
	for _, s := range r.Successes {
		fmt.Fprintf(w, "  %s (%s)\n", s.Book.Title, s.Book.Path)
		fmt.Fprintf(w, "    lines: %d, blank lines skipped: %d, messages sent: %d\n",
			s.Lines.TotalLines, s.Lines.BlankLines, s.Lines.MessagesSent)
	}

	fmt.Fprintf(w, "Failed to process %d archives\n", len(r.Failures))
	for _, f := range r.Failures {
		fmt.Fprintf(w, "  %s\n", f.Task.URL)
	}
}
