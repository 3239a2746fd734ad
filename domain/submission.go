package domain

import (
	"errors"
	"time"
)

var (
	// ErrSubmissionNotFound is returned when no pending entry exists for a trace ID.
	ErrSubmissionNotFound = errors.New("submission not found")
)

// FormType is the tag of the public form a submission originated from.
type FormType string

const (
	FormNewsletterSignup FormType = "newsletter-signup"
	FormContactSales     FormType = "contact-sales"
	FormDemoRequest      FormType = "demo-request"
	FormROICalculator    FormType = "roi-calculator"
	FormJobApplication   FormType = "job-application"
)

// FormTypes lists every form the relay accepts.
var FormTypes = []FormType{
	FormNewsletterSignup,
	FormContactSales,
	FormDemoRequest,
	FormROICalculator,
	FormJobApplication,
}

// Valid reports whether the form type is one the relay knows about.
func (f FormType) Valid() bool {
	for _, known := range FormTypes {
		if f == known {
			return true
		}
	}
	return false
}

// Status is the delivery state of a Submission.
type Status string

const (
	StatusPending   Status = "pending"   // accepted, not yet confirmed by the admin API
	StatusDelivered Status = "delivered" // the admin API answered 2xx
	StatusFailed    Status = "failed"    // retries exhausted, waiting for an operator or the sweeper
)

// Terminal reports whether the status is final for the current forwarding round.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusFailed
}

// Payload holds the form fields. Its shape is owned by the form, not the relay.
type Payload map[string]any

// Submission is the unit of work relayed to the admin API.
type Submission struct {
	TraceID      string    `json:"trace_id"`             // Client supplied or generated identifier
	FormType     FormType  `json:"form_type"`            // Form the submission came from
	Payload      Payload   `json:"payload"`              // Form fields, forwarded untouched
	ReceivedAt   time.Time `json:"received_at"`          // Set once at ingress
	Status       Status    `json:"status"`               // Current delivery state
	AttemptCount int       `json:"attempt_count"`        // Forwarding attempts made so far
	LastError    string    `json:"last_error,omitempty"` // Error of the most recent failed attempt, empty otherwise
	UpdatedAt    time.Time `json:"updated_at"`           // Last time the entry was written
}

// PendingRepository is the durable store of submissions that were not yet confirmed delivered.
type PendingRepository interface {
	// Persist durably writes the submission. It returns only once the write is committed,
	// an existing entry with the same trace ID is replaced.
	Persist(sub *Submission) error

	// Remove deletes the entry once delivery is confirmed.
	// It returns ErrSubmissionNotFound if there is no entry for the trace ID.
	Remove(traceID string) error

	// ListPending returns every entry in pending or failed state, oldest first.
	ListPending() ([]*Submission, error)

	// GetPending returns the entry for a single trace ID.
	// It returns ErrSubmissionNotFound if there is no entry for the trace ID.
	GetPending(traceID string) (*Submission, error)

	// UpdateStatus records the outcome of a forwarding round on an existing entry.
	UpdateStatus(traceID string, status Status, attemptCount int, lastError string) error
}
