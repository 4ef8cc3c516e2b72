package model

import "time"

// DeliveryStatus is the outcome of a single outreach attempt.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "pending"
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Terminal reports whether the status is final.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliverySent || s == DeliveryFailed
}

// OutreachEmail records one delivery attempt. Only DeliveryStatus, SentAt and
// ErrorMessage change after creation.
type OutreachEmail struct {
	ID             int64          `json:"id"`
	LeadID         int64          `json:"lead_id"`
	RunID          string         `json:"run_id,omitempty"`
	ToAddress      string         `json:"to_address"`
	Subject        string         `json:"subject"`
	Body           string         `json:"body"`
	DeliveryStatus DeliveryStatus `json:"delivery_status"`
	SentAt         *time.Time     `json:"sent_at,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`

	CompanyName string `json:"company_name,omitempty"`
}
