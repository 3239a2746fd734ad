package domain

import (
	"time"

	"github.com/google/uuid"
)

// AttemptRepository keeps an audit trail of forwarding attempts.
type AttemptRepository interface {
	// InsertAttempt saves a single forwarding attempt.
	InsertAttempt(attempt *Attempt) error
	// GetAttempts returns the attempts made for a trace ID, in attempt order.
	GetAttempts(traceID string) ([]*Attempt, error)
}

// Attempt is one call to the admin API for a submission.
type Attempt struct {
	ID          uuid.UUID     `json:"id"`              // Unique identifier for the attempt
	TraceID     string        `json:"trace_id"`        // Submission the attempt belongs to
	Number      int           `json:"number"`          // 1-based attempt number within the forwarding round
	StatusCode  int           `json:"status_code"`     // HTTP status returned by the admin API, 0 on transport errors
	Error       string        `json:"error,omitempty"` // Failure reason, empty on success
	Latency     time.Duration `json:"latency"`         // Time spent waiting for the admin API
	AttemptedAt time.Time     `json:"attempted_at"`    // When the attempt started
}

// Succeeded reports whether the admin API accepted the submission on this attempt.
func (a *Attempt) Succeeded() bool {
	return a.Error == "" && a.StatusCode >= 200 && a.StatusCode < 300
}
