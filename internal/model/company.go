package model

import "time"

// Company is an employer discovered through a job posting. Rows are created
// on first sighting and only ever updated to fill missing fields.
type Company struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain,omitempty"`
	Website   string    `json:"website,omitempty"`
	Location  string    `json:"location,omitempty"`
	LookupKey string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobPosting is a single ingested job advertisement.
type JobPosting struct {
	ID          int64      `json:"id"`
	CompanyID   int64      `json:"company_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	URL         string     `json:"url,omitempty"`
	Source      string     `json:"source"`
	ExternalID  string     `json:"external_id,omitempty"`
	Fingerprint string     `json:"fingerprint"`
	PostedAt    *time.Time `json:"posted_at,omitempty"`
	IsProcessed bool       `json:"is_processed"`
	CreatedAt   time.Time  `json:"created_at"`

	// Populated by joins; not a column of job_postings.
	CompanyName     string `json:"company_name,omitempty"`
	CompanyDomain   string `json:"company_domain,omitempty"`
	CompanyLocation string `json:"company_location,omitempty"`
}
