package db

import (
	"testing"
	"time"

	"github.com/tfkr-ae/formrelay/domain"
)

func TestStatsRepo_CountByStatus(t *testing.T) {
	t.Run("should return zero for every status on an empty store", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		got, err := repo.CountByStatus()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		for _, status := range []domain.Status{domain.StatusPending, domain.StatusDelivered, domain.StatusFailed} {
			if got[status] != 0 {
				t.Fatalf("\nwanted:\n0 %s\ngot:\n%d", status, got[status])
			}
		}
	})

	t.Run("should count entries per status", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		testSubmission(t, repo, "t1", time.Now())
		testSubmission(t, repo, "t2", time.Now())
		testSubmission(t, repo, "t3", time.Now())
		if err := repo.UpdateStatus("t3", domain.StatusFailed, 3, "timeout"); err != nil {
			t.Fatalf("updating status: %v", err)
		}

		got, err := repo.CountByStatus()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if got[domain.StatusPending] != 2 || got[domain.StatusFailed] != 1 {
			t.Fatalf("\nwanted:\npending=2 failed=1\ngot:\n%v", got)
		}
	})
}

func TestStatsRepo_CountAttempts(t *testing.T) {
	t.Run("should count every recorded attempt", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		for i := 1; i <= 3; i++ {
			if err := repo.InsertAttempt(&domain.Attempt{TraceID: "t1", Number: i, AttemptedAt: time.Now()}); err != nil {
				t.Fatalf("inserting attempt: %v", err)
			}
		}

		got, err := repo.CountAttempts()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if got != 3 {
			t.Fatalf("\nwanted:\n3\ngot:\n%d", got)
		}
	})
}
