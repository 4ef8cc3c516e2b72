package model

import (
	"encoding/json"
	"time"
)

// RunKind identifies which pipeline stage a run executed.
type RunKind string

const (
	RunKindIngest   RunKind = "ingest"
	RunKindQualify  RunKind = "qualify"
	RunKindOutreach RunKind = "outreach"
)

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is the audit row for one pipeline stage invocation.
type Run struct {
	ID         string          `json:"id"`
	Kind       RunKind         `json:"kind"`
	Status     RunStatus       `json:"status"`
	Summary    json.RawMessage `json:"summary,omitempty"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}

// RunFilter narrows run listings.
type RunFilter struct {
	Kind   RunKind
	Status RunStatus
	Limit  int
}

// IngestSummary counts ingestion outcomes. Failed covers items whose storage
// writes errored.
type IngestSummary struct {
	Fetched           int `json:"fetched"`
	Normalized        int `json:"normalized"`
	PassedFilter      int `json:"passed_filter"`
	Saved             int `json:"saved"`
	SkippedDuplicates int `json:"skipped_duplicates"`
	Failed            int `json:"failed"`
}

// QualifySummary counts qualification outcomes.
type QualifySummary struct {
	Processed int `json:"processed"`
	Qualified int `json:"qualified"`
	Rejected  int `json:"rejected"`
	Failed    int `json:"failed"`
}

// OutreachSummary counts dispatch outcomes. Attempted equals
// Sent + Failed + Skipped.
type OutreachSummary struct {
	Attempted int `json:"attempted"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}
