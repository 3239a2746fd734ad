package db

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tfkr-ae/formrelay/domain"
)

func TestAttemptRepo_InsertAttempt(t *testing.T) {
	t.Run("should generate an ID when none is set", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		attempt := &domain.Attempt{
			TraceID:     "t1",
			Number:      1,
			StatusCode:  503,
			Error:       "admin api returned 503",
			Latency:     120 * time.Millisecond,
			AttemptedAt: time.Now(),
		}

		if err := repo.InsertAttempt(attempt); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if attempt.ID == uuid.Nil {
			t.Fatalf("\nwanted:\nnon-nil id\ngot:\n%v", attempt.ID)
		}
	})

	t.Run("should keep attempts after the pending entry is removed", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		testSubmission(t, repo, "t1", time.Now())
		err := repo.InsertAttempt(&domain.Attempt{TraceID: "t1", Number: 1, StatusCode: 200, AttemptedAt: time.Now()})
		if err != nil {
			t.Fatalf("inserting attempt: %v", err)
		}
		if err := repo.Remove("t1"); err != nil {
			t.Fatalf("removing submission: %v", err)
		}

		got, err := repo.GetAttempts("t1")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if len(got) != 1 {
			t.Fatalf("\nwanted:\n1\ngot:\n%d", len(got))
		}
	})
}

func TestAttemptRepo_GetAttempts(t *testing.T) {
	t.Run("should return attempts in order with their details", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		base := time.Date(2025, 10, 20, 12, 0, 0, 0, time.UTC)
		attempts := []*domain.Attempt{
			{TraceID: "t1", Number: 1, StatusCode: 0, Error: "connection refused", Latency: 5 * time.Millisecond, AttemptedAt: base},
			{TraceID: "t1", Number: 2, StatusCode: 502, Error: "admin api returned 502", Latency: 40 * time.Millisecond, AttemptedAt: base.Add(500 * time.Millisecond)},
			{TraceID: "t1", Number: 3, StatusCode: 201, Latency: 35 * time.Millisecond, AttemptedAt: base.Add(1500 * time.Millisecond)},
			{TraceID: "other", Number: 1, StatusCode: 200, AttemptedAt: base},
		}
		for _, attempt := range attempts {
			if err := repo.InsertAttempt(attempt); err != nil {
				t.Fatalf("inserting attempt: %v", err)
			}
		}

		got, err := repo.GetAttempts("t1")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if len(got) != 3 {
			t.Fatalf("\nwanted:\n3\ngot:\n%d", len(got))
		}
		for i, attempt := range got {
			want := attempts[i]
			if attempt.ID != want.ID || attempt.Number != want.Number || attempt.StatusCode != want.StatusCode || attempt.Error != want.Error {
				t.Fatalf("\nwanted:\n%+v\ngot:\n%+v", want, attempt)
			}
			if attempt.Latency != want.Latency {
				t.Fatalf("\nwanted:\n%v\ngot:\n%v", want.Latency, attempt.Latency)
			}
			if !attempt.AttemptedAt.Equal(want.AttemptedAt) {
				t.Fatalf("\nwanted:\n%v\ngot:\n%v", want.AttemptedAt, attempt.AttemptedAt)
			}
		}
		if !got[2].Succeeded() {
			t.Fatalf("\nwanted:\nlast attempt succeeded\ngot:\n%+v", got[2])
		}
	})

	t.Run("should return an empty slice for an unknown trace ID", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		got, err := repo.GetAttempts("missing")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if len(got) != 0 {
			t.Fatalf("\nwanted:\n0\ngot:\n%d", len(got))
		}
	})
}
