package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/db"
	"github.com/sells-group/leadgen-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS companies (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL,
	domain     TEXT NOT NULL DEFAULT '',
	website    TEXT NOT NULL DEFAULT '',
	location   TEXT NOT NULL DEFAULT '',
	lookup_key TEXT NOT NULL UNIQUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS job_postings (
	id           BIGSERIAL PRIMARY KEY,
	company_id   BIGINT NOT NULL REFERENCES companies(id),
	title        TEXT NOT NULL,
	description  TEXT NOT NULL DEFAULT '',
	url          TEXT NOT NULL DEFAULT '',
	source       TEXT NOT NULL,
	external_id  TEXT NOT NULL DEFAULT '',
	fingerprint  TEXT NOT NULL UNIQUE,
	posted_at    TIMESTAMPTZ,
	is_processed BOOLEAN NOT NULL DEFAULT false,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_job_postings_unprocessed ON job_postings(is_processed, created_at);

CREATE TABLE IF NOT EXISTS leads (
	id                  BIGSERIAL PRIMARY KEY,
	company_id          BIGINT NOT NULL REFERENCES companies(id),
	job_posting_id      BIGINT NOT NULL UNIQUE REFERENCES job_postings(id),
	status              TEXT NOT NULL DEFAULT 'new',
	relevance_score     INTEGER NOT NULL CHECK (relevance_score BETWEEN 0 AND 100),
	ai_analysis         TEXT NOT NULL DEFAULT '',
	reason              TEXT NOT NULL DEFAULT '',
	contact_role        TEXT NOT NULL DEFAULT '',
	company_pain_points TEXT NOT NULL DEFAULT '[]',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_leads_status ON leads(status, created_at);

CREATE TABLE IF NOT EXISTS outreach_emails (
	id              BIGSERIAL PRIMARY KEY,
	lead_id         BIGINT NOT NULL REFERENCES leads(id),
	run_id          TEXT NOT NULL DEFAULT '',
	to_address      TEXT NOT NULL DEFAULT '',
	subject         TEXT NOT NULL DEFAULT '',
	body            TEXT NOT NULL DEFAULT '',
	delivery_status TEXT NOT NULL DEFAULT 'pending',
	sent_at         TIMESTAMPTZ,
	error_message   TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_outreach_emails_lead_id ON outreach_emails(lead_id);

CREATE TABLE IF NOT EXISTS pipeline_runs (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	summary     JSONB,
	error       TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	finished_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started ON pipeline_runs(started_at DESC);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// FindOrCreateCompany resolves a company by lookup key in one statement. The
// unique constraint on lookup_key serializes concurrent creators.
func (s *PostgresStore) FindOrCreateCompany(ctx context.Context, c model.Company) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO companies (name, domain, website, location, lookup_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (lookup_key) DO UPDATE SET
			domain = CASE WHEN companies.domain = '' THEN EXCLUDED.domain ELSE companies.domain END,
			website = CASE WHEN companies.website = '' THEN EXCLUDED.website ELSE companies.website END,
			location = CASE WHEN companies.location = '' THEN EXCLUDED.location ELSE companies.location END,
			updated_at = EXCLUDED.updated_at
		RETURNING id`,
		c.Name, c.Domain, c.Website, c.Location, c.LookupKey, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: find or create company %s", c.LookupKey)
	}
	return id, nil
}

func (s *PostgresStore) PostingExists(ctx context.Context, fingerprint string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM job_postings WHERE fingerprint = $1)`, fingerprint,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "postgres: posting exists")
	}
	return exists, nil
}

func (s *PostgresStore) SavePosting(ctx context.Context, p model.JobPosting) (int64, bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO job_postings (company_id, title, description, url, source, external_id, fingerprint, posted_at, is_processed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, $9)
		ON CONFLICT (fingerprint) DO NOTHING
		RETURNING id`,
		p.CompanyID, p.Title, p.Description, p.URL, p.Source, p.ExternalID, p.Fingerprint, p.PostedAt, time.Now().UTC(),
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrapf(err, "postgres: save posting %s", p.Fingerprint)
	}
	return id, true, nil
}

func (s *PostgresStore) GetUnprocessedPostings(ctx context.Context, limit int) ([]model.JobPosting, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+postingColumns+postingFrom+`
		WHERE p.is_processed = false
		ORDER BY p.created_at ASC, p.id ASC
		LIMIT $1`,
		defaultLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get unprocessed postings")
	}
	defer rows.Close()

	var postings []model.JobPosting
	for rows.Next() {
		var p model.JobPosting
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.Title, &p.Description, &p.URL, &p.Source, &p.ExternalID,
			&p.Fingerprint, &p.PostedAt, &p.IsProcessed, &p.CreatedAt, &p.CompanyName, &p.CompanyDomain, &p.CompanyLocation); err != nil {
			return nil, eris.Wrap(err, "postgres: scan posting")
		}
		postings = append(postings, p)
	}
	return postings, eris.Wrap(rows.Err(), "postgres: iterate postings")
}

// MarkPostingProcessed flips is_processed once. Marking an already processed
// posting is a no-op.
func (s *PostgresStore) MarkPostingProcessed(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE job_postings SET is_processed = true WHERE id = $1`, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark posting %d processed", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: posting %d", id)
	}
	return nil
}

func (s *PostgresStore) PostingCounts(ctx context.Context) (*PostingCounts, error) {
	var c PostingCounts
	err := s.pool.QueryRow(ctx,
		`SELECT
			(SELECT COUNT(*) FROM job_postings),
			(SELECT COUNT(*) FROM job_postings WHERE is_processed = false),
			(SELECT COUNT(*) FROM companies)`,
	).Scan(&c.Total, &c.Unprocessed, &c.Companies)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: posting counts")
	}
	return &c, nil
}

func (s *PostgresStore) CreateLead(ctx context.Context, l model.NewLead) (int64, bool, error) {
	painPoints, err := marshalPainPoints(l.CompanyPainPoints)
	if err != nil {
		return 0, false, err
	}
	now := time.Now().UTC()

	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO leads (company_id, job_posting_id, status, relevance_score, ai_analysis, reason, contact_role, company_pain_points, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (job_posting_id) DO NOTHING
		RETURNING id`,
		l.CompanyID, l.JobPostingID, string(model.LeadStatusQualified), l.RelevanceScore,
		l.AIAnalysis, l.Reason, l.ContactRole, painPoints, now,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, eris.Wrapf(err, "postgres: create lead for posting %d", l.JobPostingID)
	}
	return id, true, nil
}

func (s *PostgresStore) GetLead(ctx context.Context, id int64) (*model.Lead, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+leadColumns+leadFrom+` WHERE l.id = $1`, id)
	l, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: lead %d", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lead %d", id)
	}
	return l, nil
}

// GetQualifiedLeads returns qualified leads oldest first.
func (s *PostgresStore) GetQualifiedLeads(ctx context.Context, limit int) ([]model.Lead, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+leadColumns+leadFrom+`
		WHERE l.status = $1
		ORDER BY l.created_at ASC, l.id ASC
		LIMIT $2`,
		string(model.LeadStatusQualified), defaultLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get qualified leads")
	}
	return collectLeads(rows)
}

// ListLeads returns leads newest first, optionally filtered by status.
func (s *PostgresStore) ListLeads(ctx context.Context, filter model.LeadFilter) ([]model.Lead, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if filter.Status != "" {
		rows, err = s.pool.Query(ctx,
			`SELECT `+leadColumns+leadFrom+` WHERE l.status = $1 ORDER BY l.created_at DESC, l.id DESC LIMIT $2`,
			string(filter.Status), defaultLimit(filter.Limit),
		)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+leadColumns+leadFrom+` ORDER BY l.created_at DESC, l.id DESC LIMIT $1`,
			defaultLimit(filter.Limit),
		)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list leads")
	}
	return collectLeads(rows)
}

func (s *PostgresStore) UpdateLeadStatus(ctx context.Context, id int64, from, to model.LeadStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE leads SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(to), time.Now().UTC(), id, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update lead %d status", id)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current string
	err = s.pool.QueryRow(ctx, `SELECT status FROM leads WHERE id = $1`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "postgres: lead %d", id)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: read lead %d status", id)
	}
	return eris.Wrapf(ErrStatusConflict, "postgres: lead %d is %s, expected %s", id, current, from)
}

func (s *PostgresStore) LeadStats(ctx context.Context) (*model.LeadStats, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, COUNT(*), COALESCE(SUM(relevance_score), 0) FROM leads GROUP BY status`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: lead stats")
	}
	defer rows.Close()

	acc := newStatsAccumulator()
	for rows.Next() {
		var (
			status   string
			count    int
			scoreSum int64
		)
		if err := rows.Scan(&status, &count, &scoreSum); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead stats")
		}
		acc.add(status, count, scoreSum)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate lead stats")
	}
	return acc.stats(), nil
}

func (s *PostgresStore) LogOutreachAttempt(ctx context.Context, e model.OutreachEmail) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO outreach_emails (lead_id, run_id, to_address, subject, body, delivery_status, sent_at, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		e.LeadID, e.RunID, e.ToAddress, e.Subject, e.Body, string(e.DeliveryStatus), e.SentAt, e.ErrorMessage, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: log outreach attempt for lead %d", e.LeadID)
	}
	return id, nil
}

func (s *PostgresStore) UpdateDeliveryStatus(ctx context.Context, id int64, status model.DeliveryStatus, sentAt *time.Time, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE outreach_emails SET delivery_status = $1, sent_at = $2, error_message = $3
		WHERE id = $4 AND delivery_status = $5`,
		string(status), sentAt, errMsg, id, string(model.DeliveryPending),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update email %d delivery status", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: pending email %d", id)
	}
	return nil
}

func (s *PostgresStore) ListEmails(ctx context.Context, limit int) ([]model.OutreachEmail, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+emailColumns+emailFrom+` ORDER BY e.created_at DESC, e.id DESC LIMIT $1`,
		defaultLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list emails")
	}
	defer rows.Close()

	var emails []model.OutreachEmail
	for rows.Next() {
		var (
			e      model.OutreachEmail
			status string
		)
		if err := rows.Scan(&e.ID, &e.LeadID, &e.RunID, &e.ToAddress, &e.Subject, &e.Body, &status,
			&e.SentAt, &e.ErrorMessage, &e.CreatedAt, &e.CompanyName); err != nil {
			return nil, eris.Wrap(err, "postgres: scan email")
		}
		e.DeliveryStatus = model.DeliveryStatus(status)
		emails = append(emails, e)
	}
	return emails, eris.Wrap(rows.Err(), "postgres: iterate emails")
}

func (s *PostgresStore) CreateRun(ctx context.Context, kind model.RunKind) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, kind, status, started_at) VALUES ($1, $2, $3, $4)`,
		run.ID, string(run.Kind), string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return run, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, id string, status model.RunStatus, summary any, errMsg string) error {
	summaryJSON, err := marshalSummary(summary)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_runs SET status = $1, summary = $2, error = $3, finished_at = $4 WHERE id = $5`,
		string(status), summaryJSON, errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: run %s", id)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM pipeline_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: run %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", id)
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter model.RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_runs WHERE ($1 = '' OR kind = $1) AND ($2 = '' OR status = $2)
		ORDER BY started_at DESC LIMIT $3`
	rows, err := s.pool.Query(ctx, query, string(filter.Kind), string(filter.Status), defaultLimit(filter.Limit))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func collectLeads(rows pgx.Rows) ([]model.Lead, error) {
	defer rows.Close()

	var leads []model.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan lead")
		}
		leads = append(leads, *l)
	}
	return leads, eris.Wrap(rows.Err(), "postgres: iterate leads")
}

func scanLead(row pgx.Row) (*model.Lead, error) {
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

func scanRun(row pgx.Row) (*model.Run, error) {
	var (
		run     model.Run
		kind    string
		status  string
		summary []byte
	)
	if err := row.Scan(&run.ID, &kind, &status, &summary, &run.Error, &run.StartedAt, &run.FinishedAt); err != nil {
		return nil, err
	}
	run.Kind = model.RunKind(kind)
	run.Status = model.RunStatus(status)
	if len(summary) > 0 {
		run.Summary = summary
	}
	return &run, nil
}
