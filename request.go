package formrelay

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/tfkr-ae/formrelay/domain"
)

const maxTraceIDLength = 128

var (
	// ErrValidation is wrapped by every error caused by a malformed submission.
	ErrValidation = errors.New("invalid submission")
	// ErrPersist is returned when a submission could not be durably recorded.
	// Nothing was forwarded and the client may retry with the same trace ID.
	ErrPersist = errors.New("persisting submission")
)

// requiredFields lists the identity fields each form must carry.
var requiredFields = map[domain.FormType][]string{
	domain.FormNewsletterSignup: {"email"},
	domain.FormContactSales:     {"email", "name"},
	domain.FormDemoRequest:      {"email", "name"},
	domain.FormROICalculator:    {"email"},
	domain.FormJobApplication:   {"email", "name"},
}

// ValidationError describes why a submission was rejected at ingress.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Unwrap lets callers match every ValidationError with errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Request is a submission as received from a public form.
type Request struct {
	TraceID  string          // Optional, generated when empty
	FormType domain.FormType // Form the submission came from
	Payload  domain.Payload  // Remaining form fields
}

// Validate checks the identity fields the relay relies on. The rest of the payload is
// left to the admin API.
//
// form_type is required even though a request body may omit it: a submission without
// a form type is rejected with a ValidationError instead of being forwarded untyped.
func (req Request) Validate() error {
	if req.TraceID != "" {
		if len(req.TraceID) > maxTraceIDLength {
			return &ValidationError{Field: "trace_id", Reason: fmt.Sprintf("must be at most %d characters", maxTraceIDLength)}
		}
		for _, r := range req.TraceID {
			if !unicode.IsPrint(r) || unicode.IsSpace(r) {
				return &ValidationError{Field: "trace_id", Reason: "must only contain printable characters"}
			}
		}
	}

	if req.FormType == "" {
		return &ValidationError{Field: "form_type", Reason: "is required"}
	}
	if !req.FormType.Valid() {
		return &ValidationError{Field: "form_type", Reason: fmt.Sprintf("%q is not a known form", req.FormType)}
	}

	for _, field := range requiredFields[req.FormType] {
		value, ok := req.Payload[field].(string)
		if !ok || strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Reason: "is required"}
		}
		if field == "email" {
			if _, err := mail.ParseAddress(value); err != nil {
				return &ValidationError{Field: field, Reason: "is not a valid address"}
			}
		}
	}
	return nil
}

// Response is the answer returned to the public form.
type Response struct {
	OK      bool          `json:"ok"`
	TraceID string        `json:"trace_id"`
	Status  domain.Status `json:"status,omitempty"` // only set while the submission is still in progress
	Error   string        `json:"error,omitempty"`
}

// responseFor converts the idempotency record into the response every duplicate receives.
func responseFor(rec domain.Record) Response {
	if rec.Status == domain.StatusPending {
		return Response{OK: true, TraceID: rec.TraceID, Status: domain.StatusPending}
	}
	return Response{OK: rec.Outcome.OK, TraceID: rec.TraceID, Error: rec.Outcome.Error}
}

// newTraceID returns a random (version 4) UUID.
func newTraceID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generating trace id: %w", err)
	}
	return id.String(), nil
}

// failureMessage is the error reported to clients once delivery gave up.
// Downstream details stay in the pending store and the logs.
func failureMessage(attempts int) string {
	return fmt.Sprintf("delivery to admin api failed after %d attempts", attempts)
}
