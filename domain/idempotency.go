package domain

import "time"

// Outcome is the response snapshot replayed to every duplicate of a submission.
type Outcome struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Record maps a trace ID to the result of its first processing attempt.
// A trace ID has at most one live record at a time.
type Record struct {
	TraceID   string
	Status    Status
	Outcome   Outcome
	ExpiresAt time.Time
}

// Expired reports whether the record is past its retention window at the given time.
func (r Record) Expired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && !now.Before(r.ExpiresAt)
}
