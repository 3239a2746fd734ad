package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tfkr-ae/formrelay/domain"
)

var _ domain.PendingRepository = (*Repository)(nil)

// dbSubmission represents a pending entry as stored in the database.
type dbSubmission struct {
	TraceID      string            `db:"trace_id"`      // Client supplied or generated identifier.
	FormType     string            `db:"form_type"`     // Form the submission came from.
	Payload      CompressedPayload `db:"payload"`       // Brotli compressed JSON form fields.
	ReceivedAt   time.Time         `db:"received_at"`   // Ingress timestamp.
	Status       string            `db:"status"`        // pending, delivered or failed.
	AttemptCount int               `db:"attempt_count"` // Forwarding attempts made so far.
	LastError    sql.NullString    `db:"last_error"`    // Error of the last failed attempt.
	UpdatedAt    time.Time         `db:"updated_at"`    // Last write.
}

// toDomainSubmission converts a dbSubmission to a domain.Submission.
func toDomainSubmission(row *dbSubmission) *domain.Submission {
	sub := &domain.Submission{
		TraceID:      row.TraceID,
		FormType:     domain.FormType(row.FormType),
		Payload:      domain.Payload(row.Payload),
		ReceivedAt:   row.ReceivedAt,
		Status:       domain.Status(row.Status),
		AttemptCount: row.AttemptCount,
		UpdatedAt:    row.UpdatedAt,
	}
	if row.LastError.Valid {
		sub.LastError = row.LastError.String
	}
	return sub
}

// fromDomainSubmission converts a domain.Submission to a dbSubmission.
func fromDomainSubmission(sub *domain.Submission) *dbSubmission {
	row := &dbSubmission{
		TraceID:      sub.TraceID,
		FormType:     string(sub.FormType),
		Payload:      CompressedPayload(sub.Payload),
		ReceivedAt:   sub.ReceivedAt.UTC(),
		Status:       string(sub.Status),
		AttemptCount: sub.AttemptCount,
		UpdatedAt:    sub.UpdatedAt.UTC(),
	}
	if row.Status == "" {
		row.Status = string(domain.StatusPending)
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = time.Now().UTC()
	}
	if sub.LastError != "" {
		row.LastError = sql.NullString{String: sub.LastError, Valid: true}
	}
	return row
}

// Persist writes the submission and returns once SQLite has committed it.
// An existing entry with the same trace ID is replaced.
func (repo *Repository) Persist(sub *domain.Submission) error {
	query := `INSERT INTO pending_submissions (trace_id, form_type, payload, received_at, status, attempt_count, last_error, updated_at)
	          VALUES (:trace_id, :form_type, :payload, :received_at, :status, :attempt_count, :last_error, :updated_at)
	          ON CONFLICT(trace_id) DO UPDATE SET
	              form_type = excluded.form_type,
	              payload = excluded.payload,
	              received_at = excluded.received_at,
	              status = excluded.status,
	              attempt_count = excluded.attempt_count,
	              last_error = excluded.last_error,
	              updated_at = excluded.updated_at`

	_, err := repo.dbConn.NamedExec(query, fromDomainSubmission(sub))
	if err != nil {
		return fmt.Errorf("persisting submission %s: %w", sub.TraceID, err)
	}
	return nil
}

// Remove deletes the entry of a delivered submission.
func (repo *Repository) Remove(traceID string) error {
	query := `DELETE FROM pending_submissions WHERE trace_id = ?`

	result, err := repo.dbConn.Exec(query, traceID)
	if err != nil {
		return fmt.Errorf("removing submission %s: %w", traceID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking deletion rows affected for %s: %w", traceID, err)
	}

	if rowsAffected == 0 {
		return domain.ErrSubmissionNotFound
	}
	return nil
}

// ListPending returns the entries that are still pending or failed, oldest first.
// Entries marked delivered are skipped even if their removal did not go through.
func (repo *Repository) ListPending() ([]*domain.Submission, error) {
	var rows []*dbSubmission
	query := `SELECT trace_id, form_type, payload, received_at, status, attempt_count, last_error, updated_at
	          FROM pending_submissions
	          WHERE status IN ('pending', 'failed')
	          ORDER BY received_at ASC, trace_id ASC`

	err := repo.dbConn.Select(&rows, query)
	if err != nil {
		return nil, fmt.Errorf("listing pending submissions: %w", err)
	}

	subs := make([]*domain.Submission, len(rows))
	for i, row := range rows {
		subs[i] = toDomainSubmission(row)
	}
	return subs, nil
}

// GetPending returns the entry for the trace ID.
func (repo *Repository) GetPending(traceID string) (*domain.Submission, error) {
	var row dbSubmission
	query := `SELECT trace_id, form_type, payload, received_at, status, attempt_count, last_error, updated_at
	          FROM pending_submissions
	          WHERE trace_id = ?`

	err := repo.dbConn.Get(&row, query, traceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("getting submission %s: %w", traceID, err)
	}
	return toDomainSubmission(&row), nil
}

// UpdateStatus records the outcome of a forwarding round.
func (repo *Repository) UpdateStatus(traceID string, status domain.Status, attemptCount int, lastError string) error {
	query := `UPDATE pending_submissions
	          SET status = ?, attempt_count = ?, last_error = ?, updated_at = ?
	          WHERE trace_id = ?`

	lastErr := sql.NullString{String: lastError, Valid: lastError != ""}
	result, err := repo.dbConn.Exec(query, string(status), attemptCount, lastErr, time.Now().UTC(), traceID)
	if err != nil {
		return fmt.Errorf("updating status of %s to %s: %w", traceID, status, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update rows affected for %s: %w", traceID, err)
	}
	if rowsAffected == 0 {
		return domain.ErrSubmissionNotFound
	}
	return nil
}
