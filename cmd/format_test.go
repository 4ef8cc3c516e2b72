package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/monitoring"
)

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, "ingest", "abc-123", model.IngestSummary{Fetched: 40, Normalized: 38, PassedFilter: 12, Saved: 9, SkippedDuplicates: 3})

	out := buf.String()
	assert.Contains(t, out, "abc-123 (ingest)")
	assert.Regexp(t, `Fetched:\s+40`, out)
	assert.Regexp(t, `Saved:\s+9`, out)
	assert.Regexp(t, `Duplicates:\s+3`, out)

	buf.Reset()
	printSummary(&buf, "qualify", "", model.QualifySummary{Processed: 5, Qualified: 2, Rejected: 2, Failed: 1})
	out = buf.String()
	assert.NotContains(t, out, "Run:")
	assert.Regexp(t, `Qualified:\s+2`, out)

	buf.Reset()
	printSummary(&buf, "outreach", "r", model.OutreachSummary{Attempted: 3, Sent: 1, Failed: 1, Skipped: 1})
	assert.Regexp(t, `Skipped:\s+1`, buf.String())
}

func TestFormatLeadsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	leads := []model.Lead{
		{ID: 7, Status: model.LeadStatusQualified, RelevanceScore: 88, ContactRole: "CTO", CreatedAt: now,
			CompanyName: "Acme Corp", JobTitle: "Platform Engineer"},
		{ID: 8, Status: model.LeadStatusEmailed, RelevanceScore: 61, CreatedAt: now,
			CompanyName: "A Company With An Exceptionally Long Legal Name", JobTitle: "SRE"},
	}

	var buf bytes.Buffer
	formatLeadsList(&buf, leads)

	out := buf.String()
	assert.Contains(t, out, "COMPANY")
	assert.Contains(t, out, "Acme Corp")
	assert.Contains(t, out, "qualified")
	assert.Contains(t, out, "88")
	assert.Contains(t, out, "A Company With An Exception...")
	assert.Contains(t, out, "2025-06-15 10:30")
}

func TestFormatLeadStats(t *testing.T) {
	var buf bytes.Buffer
	formatLeadStats(&buf, &model.LeadStats{
		Total:        3,
		ByStatus:     map[model.LeadStatus]int{model.LeadStatusQualified: 2, model.LeadStatusEmailed: 1},
		AverageScore: 74.333,
	})

	out := buf.String()
	assert.Regexp(t, `Total leads:\s+3`, out)
	assert.Regexp(t, `qualified:\s+2`, out)
	assert.Regexp(t, `replied:\s+0`, out)
	assert.Contains(t, out, "74.3")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("new:")), bytes.Index(buf.Bytes(), []byte("rejected:")))
}

func TestFormatEmailsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	var buf bytes.Buffer
	formatEmailsList(&buf, []model.OutreachEmail{
		{ID: 1, LeadID: 7, ToAddress: "hello@acme.io", Subject: "Quick idea", DeliveryStatus: model.DeliverySent, CreatedAt: now, CompanyName: "Acme"},
		{ID: 2, LeadID: 8, ToAddress: "hi@globex.io", DeliveryStatus: model.DeliveryFailed, ErrorMessage: "smtp: 550 mailbox unavailable", CreatedAt: now},
	})

	out := buf.String()
	assert.Contains(t, out, "hello@acme.io")
	assert.Contains(t, out, "sent")
	assert.Contains(t, out, "failed (smtp: 550 mailbox unavailable)")
}

func TestFormatRunsList(t *testing.T) {
	start := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	done := start.Add(90 * time.Second)
	var buf bytes.Buffer
	formatRunsList(&buf, []model.Run{
		{ID: "abc12345-6789-0000-0000-000000000000", Kind: model.RunKindIngest, Status: model.RunStatusComplete, StartedAt: start, FinishedAt: &done},
		{ID: "def12345-6789-0000-0000-000000000000", Kind: model.RunKindQualify, Status: model.RunStatusRunning, StartedAt: start},
		{ID: "short", Kind: model.RunKindOutreach, Status: model.RunStatusFailed, StartedAt: start, FinishedAt: &done, Error: "context canceled"},
	})

	out := buf.String()
	assert.Contains(t, out, "abc12345")
	assert.NotContains(t, out, "abc12345-6789")
	assert.Contains(t, out, "1m30s")
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "context canceled")
}

func TestFormatHealth(t *testing.T) {
	snap := &monitoring.MetricsSnapshot{
		Stages: map[model.RunKind]*monitoring.StageStats{
			model.RunKindIngest:  {Total: 4, Complete: 3, Failed: 1, FailRate: 0.25},
			model.RunKindQualify: {Total: 1, Running: 1},
		},
		EmailsSent:          8,
		EmailsFailed:        2,
		DeliveryFailureRate: 0.2,
		UnprocessedPostings: 5,
		LookbackHours:       24,
		CollectedAt:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	var buf bytes.Buffer
	formatHealth(&buf, snap, nil)
	out := buf.String()
	assert.Contains(t, out, "last 24h")
	assert.Regexp(t, `ingest\s+4\s+3\s+1\s+0\s+25\.0%`, out)
	assert.NotContains(t, out, "outreach")
	assert.Contains(t, out, "8 sent, 2 failed, 0 pending (20.0% failure)")
	assert.Contains(t, out, "Unprocessed postings: 5")
	assert.Contains(t, out, "No alerts.")

	buf.Reset()
	formatHealth(&buf, snap, []monitoring.Alert{{Severity: "high", Message: "ingest run failure rate 25.0%"}})
	assert.Contains(t, buf.String(), "Alerts (1):")
	assert.Contains(t, buf.String(), "[high] ingest run failure rate 25.0%")
}

func TestClip(t *testing.T) {
	assert.Equal(t, "short", clip("short", 10))
	assert.Equal(t, "abcdefg...", clip("abcdefghijklmnop", 10))
	assert.Equal(t, "héllo wo...", clip("héllo wörld!", 11))
}
