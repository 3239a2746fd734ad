package db

import (
	"os"
	"testing"
	"time"

	"github.com/tfkr-ae/formrelay/domain"
)

func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tempFile, err := os.CreateTemp(t.TempDir(), "test_*.db")
	if err != nil {
		t.Fatalf("os.CreateTemp() failed: %v", err)
	}
	tempFile.Close()

	dbConn, err := New(tempFile.Name())
	if err != nil {
		t.Fatalf("db.New() failed: %v", err)
	}

	repo := NewRelayRepo(dbConn)

	teardown := func() {
		repo.Close()
		os.Remove(tempFile.Name())
	}

	return repo, teardown
}

func testSubmission(t *testing.T, repo *Repository, traceID string, receivedAt time.Time) *domain.Submission {
	t.Helper()

	sub := &domain.Submission{
		TraceID:    traceID,
		FormType:   domain.FormNewsletterSignup,
		Payload:    domain.Payload{"email": "a@b.com"},
		ReceivedAt: receivedAt,
		Status:     domain.StatusPending,
		UpdatedAt:  receivedAt,
	}

	if err := repo.Persist(sub); err != nil {
		t.Fatalf("persisting submission: %v", err)
	}
	return sub
}

func TestNew(t *testing.T) {
	t.Run("should reopen an existing database without reapplying migrations", func(t *testing.T) {
		path := t.TempDir() + "/relay.db"

		first, err := New(path)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		repo := NewRelayRepo(first)
		testSubmission(t, repo, "t1", time.Now())
		if err := repo.Close(); err != nil {
			t.Fatalf("closing repo: %v", err)
		}

		second, err := New(path)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		repo = NewRelayRepo(second)
		defer repo.Close()

		got, err := repo.ListPending()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if len(got) != 1 {
			t.Fatalf("\nwanted:\n1\ngot:\n%d", len(got))
		}
	})
}
