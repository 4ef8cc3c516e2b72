package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/monitoring"
)

// printSummary writes the counters of a finished stage run to w.
func printSummary(out io.Writer, stage, runID string, summary any) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if runID != "" {
		_, _ = fmt.Fprintf(w, "Run:\t%s (%s)\n", runID, stage)
	}
	switch s := summary.(type) {
	case model.IngestSummary:
		_, _ = fmt.Fprintf(w, "Fetched:\t%d\n", s.Fetched)
		_, _ = fmt.Fprintf(w, "Normalized:\t%d\n", s.Normalized)
		_, _ = fmt.Fprintf(w, "Passed filter:\t%d\n", s.PassedFilter)
		_, _ = fmt.Fprintf(w, "Saved:\t%d\n", s.Saved)
		_, _ = fmt.Fprintf(w, "Duplicates:\t%d\n", s.SkippedDuplicates)
		_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	case model.QualifySummary:
		_, _ = fmt.Fprintf(w, "Processed:\t%d\n", s.Processed)
		_, _ = fmt.Fprintf(w, "Qualified:\t%d\n", s.Qualified)
		_, _ = fmt.Fprintf(w, "Rejected:\t%d\n", s.Rejected)
		_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	case model.OutreachSummary:
		_, _ = fmt.Fprintf(w, "Attempted:\t%d\n", s.Attempted)
		_, _ = fmt.Fprintf(w, "Sent:\t%d\n", s.Sent)
		_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
		_, _ = fmt.Fprintf(w, "Skipped:\t%d\n", s.Skipped)
	}
	_ = w.Flush()
}

// formatLeadsList writes a tabular list of leads to w.
func formatLeadsList(out io.Writer, leads []model.Lead) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCOMPANY\tJOB\tSTATUS\tSCORE\tCONTACT\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t-------\t---\t------\t-----\t-------\t-------")

	for _, l := range leads {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
			l.ID,
			clip(l.CompanyName, 30),
			clip(l.JobTitle, 30),
			l.Status,
			l.RelevanceScore,
			l.ContactRole,
			l.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatLeadStats writes lead counts per status in lifecycle order.
func formatLeadStats(out io.Writer, s *model.LeadStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total leads:\t%d\n", s.Total)
	for _, status := range model.LeadStatuses {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", status, s.ByStatus[status])
	}
	if s.Total > 0 {
		_, _ = fmt.Fprintf(w, "Avg score:\t%.1f\n", s.AverageScore)
	}
	_ = w.Flush()
}

// formatEmailsList writes a tabular list of outreach emails to w.
func formatEmailsList(out io.Writer, emails []model.OutreachEmail) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tLEAD\tCOMPANY\tTO\tSTATUS\tSUBJECT\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t----\t-------\t--\t------\t-------\t-------")

	for _, e := range emails {
		status := string(e.DeliveryStatus)
		if e.ErrorMessage != "" {
			status += " (" + clip(e.ErrorMessage, 40) + ")"
		}
		_, _ = fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\t%s\t%s\n",
			e.ID,
			e.LeadID,
			clip(e.CompanyName, 24),
			e.ToAddress,
			status,
			clip(e.Subject, 40),
			e.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tKIND\tSTATUS\tSTARTED\tDURATION\tERROR")
	_, _ = fmt.Fprintln(w, "--\t----\t------\t-------\t--------\t-----")

	for _, r := range runs {
		dur := "-"
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Kind,
			r.Status,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			clip(r.Error, 50),
		)
	}
	_ = w.Flush()
}

func formatHealth(out io.Writer, snap *monitoring.MetricsSnapshot, alerts []monitoring.Alert) {
	_, _ = fmt.Fprintf(out, "Window: last %dh (collected %s)\n\n",
		snap.LookbackHours, snap.CollectedAt.Format("2006-01-02 15:04"))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STAGE\tTOTAL\tCOMPLETE\tFAILED\tRUNNING\tFAIL RATE")
	_, _ = fmt.Fprintln(w, "-----\t-----\t--------\t------\t-------\t---------")
	for _, kind := range []model.RunKind{model.RunKindIngest, model.RunKindQualify, model.RunKindOutreach} {
		st, ok := snap.Stages[kind]
		if !ok {
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%.1f%%\n",
			kind, st.Total, st.Complete, st.Failed, st.Running, st.FailRate*100)
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\nEmails: %d sent, %d failed, %d pending (%.1f%% failure)\n",
		snap.EmailsSent, snap.EmailsFailed, snap.EmailsPending, snap.DeliveryFailureRate*100)
	_, _ = fmt.Fprintf(out, "Unprocessed postings: %d\n", snap.UnprocessedPostings)

	if len(alerts) == 0 {
		_, _ = fmt.Fprintln(out, "\nNo alerts.")
		return
	}
	_, _ = fmt.Fprintf(out, "\nAlerts (%d):\n", len(alerts))
	for _, a := range alerts {
		_, _ = fmt.Fprintf(out, "  [%s] %s\n", a.Severity, a.Message)
	}
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
