// Package store persists companies, postings, leads, outreach emails and
// pipeline runs. Every method is a single-row, single-statement operation
// unless documented otherwise.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/config"
	"github.com/sells-group/leadgen-cli/internal/model"
)

var (
	// ErrNotFound is returned when a row looked up by ID does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrStatusConflict is returned when a compare-and-set status update finds
	// the row in a different state than expected.
	ErrStatusConflict = eris.New("store: status conflict")
)

// Store defines the persistence interface for the lead pipeline.
type Store interface {
	// Companies
	FindOrCreateCompany(ctx context.Context, c model.Company) (int64, error)

	// Postings
	PostingExists(ctx context.Context, fingerprint string) (bool, error)
	// SavePosting inserts a posting. created is false when another posting
	// with the same fingerprint already exists.
	SavePosting(ctx context.Context, p model.JobPosting) (id int64, created bool, err error)
	GetUnprocessedPostings(ctx context.Context, limit int) ([]model.JobPosting, error)
	MarkPostingProcessed(ctx context.Context, id int64) error
	PostingCounts(ctx context.Context) (*PostingCounts, error)

	// Leads
	// CreateLead inserts a qualified lead. created is false when the posting
	// already has a lead.
	CreateLead(ctx context.Context, l model.NewLead) (id int64, created bool, err error)
	GetLead(ctx context.Context, id int64) (*model.Lead, error)
	GetQualifiedLeads(ctx context.Context, limit int) ([]model.Lead, error)
	ListLeads(ctx context.Context, filter model.LeadFilter) ([]model.Lead, error)
	// UpdateLeadStatus moves a lead from one status to another only if it is
	// still in from.
	UpdateLeadStatus(ctx context.Context, id int64, from, to model.LeadStatus) error
	LeadStats(ctx context.Context) (*model.LeadStats, error)

	// Outreach emails
	LogOutreachAttempt(ctx context.Context, e model.OutreachEmail) (int64, error)
	// UpdateDeliveryStatus finalizes a pending email row.
	UpdateDeliveryStatus(ctx context.Context, id int64, status model.DeliveryStatus, sentAt *time.Time, errMsg string) error
	ListEmails(ctx context.Context, limit int) ([]model.OutreachEmail, error)

	// Runs
	CreateRun(ctx context.Context, kind model.RunKind) (*model.Run, error)
	FinishRun(ctx context.Context, id string, status model.RunStatus, summary any, errMsg string) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// PostingCounts reports ingestion backlog for status endpoints.
type PostingCounts struct {
	Total       int `json:"total"`
	Unprocessed int `json:"unprocessed"`
	Companies   int `json:"companies"`
}

// Open returns the Store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case "sqlite":
		dsn := cfg.DatabaseURL
		if dsn == "" {
			dsn = "leadgen.db"
		}
		return NewSQLite(dsn)
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, eris.New("store: database_url is required for postgres (LEADGEN_STORE_DATABASE_URL)")
		}
		return NewPostgres(ctx, cfg.DatabaseURL, &PoolConfig{MaxConns: cfg.MaxConns, MinConns: cfg.MinConns})
	default:
		return nil, eris.Errorf("store: unsupported driver %s", cfg.Driver)
	}
}

func defaultLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}

func marshalPainPoints(points []string) (string, error) {
	if points == nil {
		points = []string{}
	}
	b, err := json.Marshal(points)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal pain points")
	}
	return string(b), nil
}

func unmarshalPainPoints(raw string) []string {
	points := []string{}
	if raw == "" {
		return points
	}
	// Rows are only written by marshalPainPoints; a decode failure means a
	// hand-edited row, which is shown as empty rather than failing the read.
	_ = json.Unmarshal([]byte(raw), &points)
	return points
}

func marshalSummary(summary any) ([]byte, error) {
	if summary == nil {
		return nil, nil
	}
	b, err := json.Marshal(summary)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal run summary")
	}
	return b, nil
}

type statsAccumulator struct {
	byStatus map[model.LeadStatus]int
	total    int
	scoreSum int64
}

func newStatsAccumulator() *statsAccumulator {
	byStatus := make(map[model.LeadStatus]int, len(model.LeadStatuses))
	for _, s := range model.LeadStatuses {
		byStatus[s] = 0
	}
	return &statsAccumulator{byStatus: byStatus}
}

func (a *statsAccumulator) add(status string, count int, scoreSum int64) {
	a.byStatus[model.LeadStatus(status)] += count
	a.total += count
	a.scoreSum += scoreSum
}

func (a *statsAccumulator) stats() *model.LeadStats {
	st := &model.LeadStats{Total: a.total, ByStatus: a.byStatus}
	if a.total > 0 {
		st.AverageScore = float64(a.scoreSum) / float64(a.total)
	}
	return st
}
