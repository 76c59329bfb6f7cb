package app

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/maltedev/phosphosite-scraper/internal/pipeline"
)

// WriteSummary renders one line per key followed by the run totals.
func WriteSummary(w io.Writer, result *pipeline.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Protein ID", "Name", "Status", "Attempts", "Reason"})

	for _, o := range result.Outcomes {
		t.AppendRow(table.Row{int(o.Key), o.Name(), o.Status.String(), o.Attempts, o.Reason})
	}

	success, notFound, failed := result.Counts()
	t.AppendFooter(table.Row{
		"Total", len(result.Outcomes),
		fmt.Sprintf("%d ok / %d missing / %d failed", success, notFound, failed),
		"", fmt.Sprintf("%d rows", len(result.Rows)),
	})

	t.SetStyle(table.StyleRounded)
	t.Render()
}

// Report writes the summary table plus what the optional components did
// during the run: outbox events written and ids still failing in the
// progress file.
func (a *App) Report(w io.Writer, result *pipeline.Result) {
	WriteSummary(w, result)

	if a.Publisher != nil {
		published, failed := a.Publisher.Stats()
		fmt.Fprintf(w, "Outbox events: %d written, %d failed\n", published, failed)
	}

	if a.Progress != nil {
		if keys := a.Progress.Failed(); len(keys) > 0 {
			ids := make([]string, len(keys))
			for i, k := range keys {
				ids[i] = k.String()
			}
			fmt.Fprintf(w, "Failed IDs to retry with -resume: %s\n", strings.Join(ids, ","))
		}
	}
}
