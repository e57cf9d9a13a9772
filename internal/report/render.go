package report

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const maxValueWidth = 48

// Render writes the summary and top-issue tables to w.
func Render(w io.Writer, r *Report) {
	summary := table.NewWriter()
	summary.SetOutputMirror(w)
	summary.SetStyle(table.StyleLight)
	summary.SetTitle("Audit " + r.AuditID)
	summary.AppendRows([]table.Row{
		{"Status", r.Status},
		{"Policy", r.Policy},
		{"Pages scanned", r.PagesScanned},
		{"Score", fmt.Sprintf("%d -> %d (%+d)", r.BeforeScore, r.AfterScore, r.Improvement())},
		{"Issues", r.TotalIssues},
		{"Fixed", r.FixedCount},
		{"Pending", r.PendingCount},
	})
	summary.AppendSeparator()
	summary.AppendRows([]table.Row{
		{"Critical", r.Severity.Critical},
		{"High", r.Severity.High},
		{"Medium", r.Severity.Medium},
		{"Low", r.Severity.Low},
	})
	summary.Render()

	if len(r.TopIssues) == 0 {
		return
	}

	top := table.NewWriter()
	top.SetOutputMirror(w)
	top.SetStyle(table.StyleLight)
	top.SetTitle("Top pending issues")
	top.AppendHeader(table.Row{"Severity", "Risk", "Confidence", "Type", "Page", "Suggestion"})
	top.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Confidence", Align: text.AlignRight},
		{Name: "Suggestion", WidthMax: maxValueWidth},
	})
	for _, i := range r.TopIssues {
		top.AppendRow(table.Row{
			i.Severity,
			i.Risk,
			fmt.Sprintf("%.2f", i.Confidence),
			i.Type,
			i.PageURL,
			text.Trim(i.SuggestedValue, maxValueWidth),
		})
	}
	top.Render()
}
