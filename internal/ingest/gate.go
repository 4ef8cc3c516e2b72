package ingest

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/store"
)

// AdmissionKind is the outcome of admitting a job through the Gate.
type AdmissionKind int

const (
	// AdmissionNew means a posting row was created.
	AdmissionNew AdmissionKind = iota + 1
	// AdmissionDuplicate means the fingerprint was already stored.
	AdmissionDuplicate
)

func (k AdmissionKind) String() string {
	switch k {
	case AdmissionNew:
		return "new"
	case AdmissionDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// Admission reports what the Gate did with a job. IDs are set only for
// AdmissionNew.
type Admission struct {
	Kind        AdmissionKind
	Fingerprint string
	PostingID   int64
	CompanyID   int64
}

// Gate admits each distinct posting exactly once.
type Gate struct {
	store store.Store
}

// NewGate creates a Gate backed by st.
func NewGate(st store.Store) *Gate {
	return &Gate{store: st}
}

// Admit persists job unless its fingerprint is already known. Duplicates
// detected up front cause no writes. A duplicate that races in between the
// check and the insert is still reported as AdmissionDuplicate; the company
// row it touched is shared and harmless.
func (g *Gate) Admit(ctx context.Context, job NormalizedJob) (Admission, error) {
	fp := Fingerprint(job)

	exists, err := g.store.PostingExists(ctx, fp)
	if err != nil {
		return Admission{}, eris.Wrap(err, "ingest: check fingerprint")
	}
	if exists {
		return Admission{Kind: AdmissionDuplicate, Fingerprint: fp}, nil
	}

	companyID, err := g.store.FindOrCreateCompany(ctx, model.Company{
		Name:      job.Company,
		Domain:    job.Domain,
		Website:   websiteFor(job.Domain),
		Location:  job.Location,
		LookupKey: LookupKey(job.Company, job.Domain),
	})
	if err != nil {
		return Admission{}, eris.Wrapf(err, "ingest: resolve company %s", job.Company)
	}

	postingID, created, err := g.store.SavePosting(ctx, model.JobPosting{
		CompanyID:   companyID,
		Title:       job.Title,
		Description: job.Description,
		URL:         job.URL,
		Source:      job.Source,
		ExternalID:  job.ExternalID,
		Fingerprint: fp,
		PostedAt:    job.PostedAt,
	})
	if err != nil {
		return Admission{}, eris.Wrapf(err, "ingest: save posting %s", job.ExternalID)
	}
	if !created {
		return Admission{Kind: AdmissionDuplicate, Fingerprint: fp}, nil
	}

	return Admission{Kind: AdmissionNew, Fingerprint: fp, PostingID: postingID, CompanyID: companyID}, nil
}

func websiteFor(domain string) string {
	if domain == "" {
		return ""
	}
	return "https://" + domain
}
