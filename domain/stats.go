package domain

// StatsRepository reports counts over the pending store.
type StatsRepository interface {
	// CountByStatus returns the number of stored entries per status.
	CountByStatus() (map[Status]int, error)
	// CountAttempts returns the total number of recorded forwarding attempts.
	CountAttempts() (int, error)
}
