package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// LeadStatus is the position of a lead in the outreach lifecycle.
type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusQualified LeadStatus = "qualified"
	LeadStatusEmailed   LeadStatus = "emailed"
	LeadStatusReplied   LeadStatus = "replied"
	LeadStatusRejected  LeadStatus = "rejected"
)

// LeadStatuses lists every status in lifecycle order.
var LeadStatuses = []LeadStatus{
	LeadStatusNew,
	LeadStatusQualified,
	LeadStatusEmailed,
	LeadStatusReplied,
	LeadStatusRejected,
}

// ErrInvalidTransition is the sentinel wrapped by every TransitionError.
var ErrInvalidTransition = eris.New("invalid lead status transition")

// TransitionError reports a status change the state machine does not allow.
type TransitionError struct {
	From LeadStatus
	To   LeadStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid lead status transition: %s -> %s", e.From, e.To)
}

// Is lets errors.Is match ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// Valid reports whether s is a known status.
func (s LeadStatus) Valid() bool {
	for _, known := range LeadStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// ParseLeadStatus converts user input into a LeadStatus.
func ParseLeadStatus(raw string) (LeadStatus, error) {
	s := LeadStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", eris.Errorf("model: unknown lead status %q", raw)
	}
	return s, nil
}

// allowedTransitions maps a status to the statuses reachable from it,
// excluding rejected which is reachable from everywhere.
var allowedTransitions = map[LeadStatus][]LeadStatus{
	LeadStatusNew:       {LeadStatusQualified},
	LeadStatusQualified: {LeadStatusQualified, LeadStatusEmailed},
	LeadStatusEmailed:   {LeadStatusReplied},
}

// ValidateTransition returns nil when from -> to is allowed and a
// *TransitionError otherwise.
func ValidateTransition(from, to LeadStatus) error {
	if !from.Valid() || !to.Valid() {
		return &TransitionError{From: from, To: to}
	}
	if to == LeadStatusRejected {
		return nil
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return nil
		}
	}
	return &TransitionError{From: from, To: to}
}

// Lead is a company judged to be a plausible customer for the product.
type Lead struct {
	ID                int64      `json:"id"`
	CompanyID         int64      `json:"company_id"`
	JobPostingID      int64      `json:"job_posting_id"`
	Status            LeadStatus `json:"status"`
	RelevanceScore    int        `json:"relevance_score"`
	AIAnalysis        string     `json:"ai_analysis,omitempty"`
	Reason            string     `json:"reason,omitempty"`
	ContactRole       string     `json:"contact_role,omitempty"`
	CompanyPainPoints []string   `json:"company_pain_points"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`

	// Joined from companies and job_postings for drafting and display.
	CompanyName   string `json:"company_name,omitempty"`
	CompanyDomain string `json:"company_domain,omitempty"`
	JobTitle      string `json:"job_title,omitempty"`
}

// NewLead is the data needed to create a lead from a passing qualification.
type NewLead struct {
	CompanyID         int64
	JobPostingID      int64
	RelevanceScore    int
	AIAnalysis        string
	Reason            string
	ContactRole       string
	CompanyPainPoints []string
}

// LeadFilter narrows lead listings.
type LeadFilter struct {
	Status LeadStatus
	Limit  int
}

// LeadStats summarizes the lead table.
type LeadStats struct {
	Total        int                `json:"total"`
	ByStatus     map[LeadStatus]int `json:"by_status"`
	AverageScore float64            `json:"average_score"`
}
