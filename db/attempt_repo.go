package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tfkr-ae/formrelay/domain"
)

var _ domain.AttemptRepository = (*Repository)(nil)

// dbAttempt represents a forwarding attempt as stored in the database.
type dbAttempt struct {
	ID          uuid.UUID      `db:"id"`           // Unique identifier for the attempt.
	TraceID     string         `db:"trace_id"`     // Submission the attempt belongs to.
	Number      int            `db:"number"`       // 1-based attempt number.
	StatusCode  int            `db:"status_code"`  // HTTP status from the admin API, 0 on transport errors.
	Error       sql.NullString `db:"error"`        // Failure reason.
	LatencyMs   int64          `db:"latency_ms"`   // Round trip in milliseconds.
	AttemptedAt time.Time      `db:"attempted_at"` // When the attempt started.
}

// toDomainAttempt converts a dbAttempt to a domain.Attempt.
func toDomainAttempt(row *dbAttempt) *domain.Attempt {
	attempt := &domain.Attempt{
		ID:          row.ID,
		TraceID:     row.TraceID,
		Number:      row.Number,
		StatusCode:  row.StatusCode,
		Latency:     time.Duration(row.LatencyMs) * time.Millisecond,
		AttemptedAt: row.AttemptedAt,
	}
	if row.Error.Valid {
		attempt.Error = row.Error.String
	}
	return attempt
}

// fromDomainAttempt converts a domain.Attempt to a dbAttempt.
func fromDomainAttempt(attempt *domain.Attempt) *dbAttempt {
	row := &dbAttempt{
		ID:          attempt.ID,
		TraceID:     attempt.TraceID,
		Number:      attempt.Number,
		StatusCode:  attempt.StatusCode,
		LatencyMs:   attempt.Latency.Milliseconds(),
		AttemptedAt: attempt.AttemptedAt.UTC(),
	}
	if attempt.Error != "" {
		row.Error = sql.NullString{String: attempt.Error, Valid: true}
	}
	return row
}

// InsertAttempt saves a forwarding attempt.
func (repo *Repository) InsertAttempt(attempt *domain.Attempt) error {
	if attempt.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generating attempt id: %w", err)
		}
		attempt.ID = id
	}

	query := `INSERT INTO attempts (id, trace_id, number, status_code, error, latency_ms, attempted_at)
	          VALUES (:id, :trace_id, :number, :status_code, :error, :latency_ms, :attempted_at)`

	_, err := repo.dbConn.NamedExec(query, fromDomainAttempt(attempt))
	if err != nil {
		return fmt.Errorf("inserting attempt %d for %s: %w", attempt.Number, attempt.TraceID, err)
	}
	return nil
}

// GetAttempts returns the attempts recorded for the trace ID, in order.
func (repo *Repository) GetAttempts(traceID string) ([]*domain.Attempt, error) {
	var rows []*dbAttempt
	query := `SELECT id, trace_id, number, status_code, error, latency_ms, attempted_at
	          FROM attempts
	          WHERE trace_id = ?
	          ORDER BY attempted_at ASC, number ASC`

	err := repo.dbConn.Select(&rows, query, traceID)
	if err != nil {
		return nil, fmt.Errorf("fetching attempts for %s: %w", traceID, err)
	}

	attempts := make([]*domain.Attempt, len(rows))
	for i, row := range rows {
		attempts[i] = toDomainAttempt(row)
	}
	return attempts, nil
}
