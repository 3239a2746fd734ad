package db

import (
	"fmt"

	"github.com/tfkr-ae/formrelay/domain"
)

var _ domain.StatsRepository = (*Repository)(nil)

// CountByStatus returns the number of stored entries per status.
// Every known status is present in the result, with zero when no entry has it.
func (repo *Repository) CountByStatus() (map[domain.Status]int, error) {
	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	query := `SELECT status, COUNT(*) AS count FROM pending_submissions GROUP BY status`

	err := repo.dbConn.Select(&rows, query)
	if err != nil {
		return nil, fmt.Errorf("counting submissions by status: %w", err)
	}

	counts := map[domain.Status]int{
		domain.StatusPending:   0,
		domain.StatusDelivered: 0,
		domain.StatusFailed:    0,
	}
	for _, row := range rows {
		counts[domain.Status(row.Status)] = row.Count
	}
	return counts, nil
}

// CountAttempts returns the total number of recorded forwarding attempts.
func (repo *Repository) CountAttempts() (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM attempts`

	err := repo.dbConn.Get(&count, query)
	if err != nil {
		return 0, fmt.Errorf("getting attempt count: %w", err)
	}
	return count, nil
}
