package store

// Column lists shared by both drivers. Placeholders differ ($n vs ?), so
// only placeholder-free fragments live here.
const (
	postingColumns = `p.id, p.company_id, p.title, p.description, p.url, p.source, p.external_id,
	p.fingerprint, p.posted_at, p.is_processed, p.created_at, c.name, c.domain, c.location`

	postingFrom = ` FROM job_postings p JOIN companies c ON c.id = p.company_id`

	leadColumns = `l.id, l.company_id, l.job_posting_id, l.status, l.relevance_score, l.ai_analysis,
	l.reason, l.contact_role, l.company_pain_points, l.created_at, l.updated_at,
	c.name, c.domain, p.title`

	leadFrom = ` FROM leads l
	JOIN companies c ON c.id = l.company_id
	JOIN job_postings p ON p.id = l.job_posting_id`

	emailColumns = `e.id, e.lead_id, e.run_id, e.to_address, e.subject, e.body, e.delivery_status,
	e.sent_at, e.error_message, e.created_at, c.name`

	emailFrom = ` FROM outreach_emails e
	JOIN leads l ON l.id = e.lead_id
	JOIN companies c ON c.id = l.company_id`

	runColumns = `id, kind, status, summary, error, started_at, finished_at`
)
