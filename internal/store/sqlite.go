package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/leadgen-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One connection keeps per-connection pragmas in effect and matches the
	// single-writer pipeline.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL,
	domain     TEXT NOT NULL DEFAULT '',
	website    TEXT NOT NULL DEFAULT '',
	location   TEXT NOT NULL DEFAULT '',
	lookup_key TEXT NOT NULL UNIQUE,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS job_postings (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id   INTEGER NOT NULL REFERENCES companies(id),
	title        TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	url          TEXT NOT NULL DEFAULT '',
	source       TEXT NOT NULL,
	external_id  TEXT NOT NULL DEFAULT '',
	fingerprint  TEXT NOT NULL UNIQUE,
	posted_at    DATETIME,
	is_processed BOOLEAN NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_job_postings_unprocessed ON job_postings(is_processed, created_at);

CREATE TABLE IF NOT EXISTS leads (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	company_id          INTEGER NOT NULL REFERENCES companies(id),
	job_posting_id      INTEGER NOT NULL UNIQUE REFERENCES job_postings(id),
	status              TEXT NOT NULL DEFAULT 'new',
	relevance_score     INTEGER NOT NULL CHECK (relevance_score BETWEEN 0 AND 100),
	ai_analysis         TEXT NOT NULL DEFAULT '',
	reason              TEXT NOT NULL DEFAULT '',
	contact_role        TEXT NOT NULL DEFAULT '',
	company_pain_points TEXT NOT NULL DEFAULT '[]',
	created_at          DATETIME NOT NULL,
	updated_at          DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status, created_at);

CREATE TABLE IF NOT EXISTS outreach_emails (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	lead_id         INTEGER NOT NULL REFERENCES leads(id),
	run_id          TEXT NOT NULL DEFAULT '',
	to_address      TEXT NOT NULL DEFAULT '',
	subject         TEXT NOT NULL DEFAULT '',
	body            TEXT NOT NULL DEFAULT '',
	delivery_status TEXT NOT NULL DEFAULT 'pending',
	sent_at         DATETIME,
	error_message   TEXT NOT NULL DEFAULT '',
	created_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outreach_emails_lead_id ON outreach_emails(lead_id);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	summary     TEXT,
	error       TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL,
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started ON pipeline_runs(started_at);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FindOrCreateCompany(ctx context.Context, c model.Company) (int64, error) {
	now := time.Now().UTC()
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO companies (name, domain, website, location, lookup_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (lookup_key) DO UPDATE SET
			domain = CASE WHEN companies.domain = '' THEN excluded.domain ELSE companies.domain END,
			website = CASE WHEN companies.website = '' THEN excluded.website ELSE companies.website END,
			location = CASE WHEN companies.location = '' THEN excluded.location ELSE companies.location END,
			updated_at = excluded.updated_at
		RETURNING id`,
		c.Name, c.Domain, c.Website, c.Location, c.LookupKey, now, now,
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: find or create company %s", c.LookupKey)
	}
	return id, nil
}

func (s *SQLiteStore) PostingExists(ctx context.Context, fingerprint string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM job_postings WHERE fingerprint = ?)`, fingerprint,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: posting exists")
	}
	return exists, nil
}

func (s *SQLiteStore) SavePosting(ctx context.Context, p model.JobPosting) (int64, bool, error) {
	var postedAt any
	if p.PostedAt != nil {
		postedAt = p.PostedAt.UTC()
	}

	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO job_postings (company_id, title, description, url, source, external_id, fingerprint, posted_at, is_processed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT (fingerprint) DO NOTHING
		RETURNING id`,
		p.CompanyID, p.Title, p.Description, p.URL, p.Source, p.ExternalID, p.Fingerprint, postedAt, time.Now().UTC(),
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrapf(err, "sqlite: save posting %s", p.Fingerprint)
	}
	return id, true, nil
}

func (s *SQLiteStore) GetUnprocessedPostings(ctx context.Context, limit int) ([]model.JobPosting, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+postingColumns+postingFrom+`
		WHERE p.is_processed = 0
		ORDER BY p.created_at ASC, p.id ASC
		LIMIT ?`,
		defaultLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get unprocessed postings")
	}
	defer rows.Close() //nolint:errcheck

	var postings []model.JobPosting
	for rows.Next() {
		var (
			p        model.JobPosting
			postedAt sql.NullTime
		)
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.Title, &p.Description, &p.URL, &p.Source, &p.ExternalID,
			&p.Fingerprint, &postedAt, &p.IsProcessed, &p.CreatedAt, &p.CompanyName, &p.CompanyDomain, &p.CompanyLocation); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan posting")
		}
		p.PostedAt = nullTimePtr(postedAt)
		postings = append(postings, p)
	}
	return postings, eris.Wrap(rows.Err(), "sqlite: iterate postings")
}

func (s *SQLiteStore) MarkPostingProcessed(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE job_postings SET is_processed = 1 WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: mark posting %d processed", id)
	}
	return checkRowsAffected(res, "posting", id)
}

func (s *SQLiteStore) PostingCounts(ctx context.Context) (*PostingCounts, error) {
	var c PostingCounts
	err := s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM job_postings),
			(SELECT COUNT(*) FROM job_postings WHERE is_processed = 0),
			(SELECT COUNT(*) FROM companies)`,
	).Scan(&c.Total, &c.Unprocessed, &c.Companies)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: posting counts")
	}
	return &c, nil
}

func (s *SQLiteStore) CreateLead(ctx context.Context, l model.NewLead) (int64, bool, error) {
	painPoints, err := marshalPainPoints(l.CompanyPainPoints)
	if err != nil {
		return 0, false, err
	}
	now := time.Now().UTC()

	var id int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO leads (company_id, job_posting_id, status, relevance_score, ai_analysis, reason, contact_role, company_pain_points, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_posting_id) DO NOTHING
		RETURNING id`,
		l.CompanyID, l.JobPostingID, string(model.LeadStatusQualified), l.RelevanceScore,
		l.AIAnalysis, l.Reason, l.ContactRole, painPoints, now, now,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrapf(err, "sqlite: create lead for posting %d", l.JobPostingID)
	}
	return id, true, nil
}

func (s *SQLiteStore) GetLead(ctx context.Context, id int64) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+leadColumns+leadFrom+` WHERE l.id = ?`, id)
	l, err := scanSQLiteLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: lead %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lead %d", id)
	}
	return l, nil
}

func (s *SQLiteStore) GetQualifiedLeads(ctx context.Context, limit int) ([]model.Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+leadColumns+leadFrom+`
		WHERE l.status = ?
		ORDER BY l.created_at ASC, l.id ASC
		LIMIT ?`,
		string(model.LeadStatusQualified), defaultLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get qualified leads")
	}
	return collectSQLiteLeads(rows)
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter model.LeadFilter) ([]model.Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+leadColumns+leadFrom+`
		WHERE (? = '' OR l.status = ?)
		ORDER BY l.created_at DESC, l.id DESC
		LIMIT ?`,
		string(filter.Status), string(filter.Status), defaultLimit(filter.Limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list leads")
	}
	return collectSQLiteLeads(rows)
}

func (s *SQLiteStore) UpdateLeadStatus(ctx context.Context, id int64, from, to model.LeadStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE leads SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), time.Now().UTC(), id, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update lead %d status", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n > 0 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM leads WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "sqlite: lead %d", id)
	}
	if err != nil {
		return eris.Wrapf(err, "sqlite: read lead %d status", id)
	}
	return eris.Wrapf(ErrStatusConflict, "sqlite: lead %d is %s, expected %s", id, current, from)
}

func (s *SQLiteStore) LeadStats(ctx context.Context) (*model.LeadStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*), COALESCE(SUM(relevance_score), 0) FROM leads GROUP BY status`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: lead stats")
	}
	defer rows.Close() //nolint:errcheck

	acc := newStatsAccumulator()
	for rows.Next() {
		var (
			status   string
			count    int
			scoreSum int64
		)
		if err := rows.Scan(&status, &count, &scoreSum); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead stats")
		}
		acc.add(status, count, scoreSum)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate lead stats")
	}
	return acc.stats(), nil
}

func (s *SQLiteStore) LogOutreachAttempt(ctx context.Context, e model.OutreachEmail) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO outreach_emails (lead_id, run_id, to_address, subject, body, delivery_status, sent_at, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.LeadID, e.RunID, e.ToAddress, e.Subject, e.Body, string(e.DeliveryStatus), timePtrArg(e.SentAt), e.ErrorMessage, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: log outreach attempt for lead %d", e.LeadID)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: last insert id")
	}
	return id, nil
}

func (s *SQLiteStore) UpdateDeliveryStatus(ctx context.Context, id int64, status model.DeliveryStatus, sentAt *time.Time, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE outreach_emails SET delivery_status = ?, sent_at = ?, error_message = ?
		WHERE id = ? AND delivery_status = ?`,
		string(status), timePtrArg(sentAt), errMsg, id, string(model.DeliveryPending),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update email %d delivery status", id)
	}
	return checkRowsAffected(res, "pending email", id)
}

func (s *SQLiteStore) ListEmails(ctx context.Context, limit int) ([]model.OutreachEmail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+emailColumns+emailFrom+` ORDER BY e.created_at DESC, e.id DESC LIMIT ?`,
		defaultLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list emails")
	}
	defer rows.Close() //nolint:errcheck

	var emails []model.OutreachEmail
	for rows.Next() {
		var (
			e      model.OutreachEmail
			status string
			sentAt sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.LeadID, &e.RunID, &e.ToAddress, &e.Subject, &e.Body, &status,
			&sentAt, &e.ErrorMessage, &e.CreatedAt, &e.CompanyName); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan email")
		}
		e.DeliveryStatus = model.DeliveryStatus(status)
		e.SentAt = nullTimePtr(sentAt)
		emails = append(emails, e)
	}
	return emails, eris.Wrap(rows.Err(), "sqlite: iterate emails")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, kind model.RunKind) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_runs (id, kind, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, string(run.Kind), string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return run, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, id string, status model.RunStatus, summary any, errMsg string) error {
	summaryJSON, err := marshalSummary(summary)
	if err != nil {
		return err
	}
	var summaryArg any
	if summaryJSON != nil {
		summaryArg = string(summaryJSON)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, summary = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), summaryArg, errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: run %s", id)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM pipeline_runs WHERE id = ?`, id)
	run, err := scanSQLiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", id)
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM pipeline_runs
		WHERE (? = '' OR kind = ?) AND (? = '' OR status = ?)
		ORDER BY started_at DESC LIMIT ?`,
		string(filter.Kind), string(filter.Kind), string(filter.Status), string(filter.Status), defaultLimit(filter.Limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		run, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func checkRowsAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %d", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func collectSQLiteLeads(rows *sql.Rows) ([]model.Lead, error) {
	defer rows.Close() //nolint:errcheck

	var leads []model.Lead
	for rows.Next() {
		l, err := scanSQLiteLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "sqlite: iterate leads")
}

func scanSQLiteLead(row scannable) (*model.Lead, error) {
	var (
		l          model.Lead
		status     string
		painPoints string
	)
	if err := row.Scan(&l.ID, &l.CompanyID, &l.JobPostingID, &status, &l.RelevanceScore, &l.AIAnalysis,
		&l.Reason, &l.ContactRole, &painPoints, &l.CreatedAt, &l.UpdatedAt,
		&l.CompanyName, &l.CompanyDomain, &l.JobTitle); err != nil {
		return nil, err
	}
	l.Status = model.LeadStatus(status)
	l.CompanyPainPoints = unmarshalPainPoints(painPoints)
	return &l, nil
}

func scanSQLiteRun(row scannable) (*model.Run, error) {
	var (
		run        model.Run
		kind       string
		status     string
		summary    sql.NullString
		finishedAt sql.NullTime
	)
	if err := row.Scan(&run.ID, &kind, &status, &summary, &run.Error, &run.StartedAt, &finishedAt); err != nil {
		return nil, err
	}
	run.Kind = model.RunKind(kind)
	run.Status = model.RunStatus(status)
	if summary.Valid && summary.String != "" {
		run.Summary = []byte(summary.String)
	}
	run.FinishedAt = nullTimePtr(finishedAt)
	return &run, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func timePtrArg(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
