package db

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/tfkr-ae/formrelay/domain"
)

func TestPendingRepo_Persist(t *testing.T) {
	t.Run("should persist a submission and read it back", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		receivedAt := time.Date(2025, 10, 20, 12, 0, 0, 0, time.UTC)
		want := &domain.Submission{
			TraceID:  "t1",
			FormType: domain.FormContactSales,
			Payload: domain.Payload{
				"email":   "a@b.com",
				"company": "Acme",
				"seats":   float64(25),
			},
			ReceivedAt: receivedAt,
			Status:     domain.StatusPending,
			UpdatedAt:  receivedAt,
		}

		if err := repo.Persist(want); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got, err := repo.GetPending("t1")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		if got.TraceID != want.TraceID || got.FormType != want.FormType || got.Status != want.Status {
			t.Fatalf("\nwanted:\n%+v\ngot:\n%+v", want, got)
		}
		if !got.ReceivedAt.Equal(receivedAt) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", receivedAt, got.ReceivedAt)
		}
		if !reflect.DeepEqual(want.Payload, got.Payload) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", want.Payload, got.Payload)
		}
	})

	t.Run("should store the payload compressed", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		testSubmission(t, repo, "t1", time.Now())

		var raw []byte
		if err := repo.dbConn.Get(&raw, `SELECT payload FROM pending_submissions WHERE trace_id = ?`, "t1"); err != nil {
			t.Fatalf("reading raw payload: %v", err)
		}
		if len(raw) == 0 {
			t.Fatalf("\nwanted:\nnon-empty payload\ngot:\nempty")
		}
		if string(raw) == `{"email":"a@b.com"}` {
			t.Fatalf("\nwanted:\ncompressed payload\ngot:\n%s", raw)
		}
	})

	t.Run("should persist a nil payload as an empty map", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		sub := &domain.Submission{
			TraceID:    "t1",
			FormType:   domain.FormDemoRequest,
			ReceivedAt: time.Now(),
		}
		if err := repo.Persist(sub); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got, err := repo.GetPending("t1")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if got.Payload == nil || len(got.Payload) != 0 {
			t.Fatalf("\nwanted:\nempty map\ngot:\n%v", got.Payload)
		}
		if got.Status != domain.StatusPending {
			t.Fatalf("\nwanted:\n%s\ngot:\n%s", domain.StatusPending, got.Status)
		}
	})

	t.Run("should replace an existing entry with the same trace ID", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		sub := testSubmission(t, repo, "t1", time.Now())
		sub.Status = domain.StatusFailed
		sub.AttemptCount = 3
		sub.LastError = "admin api returned 503"

		if err := repo.Persist(sub); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got, err := repo.ListPending()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if len(got) != 1 {
			t.Fatalf("\nwanted:\n1\ngot:\n%d", len(got))
		}
		if got[0].AttemptCount != 3 || got[0].LastError != "admin api returned 503" {
			t.Fatalf("\nwanted:\n%+v\ngot:\n%+v", sub, got[0])
		}
	})
}

func TestPendingRepo_Remove(t *testing.T) {
	t.Run("should remove an existing entry", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		testSubmission(t, repo, "t1", time.Now())

		if err := repo.Remove("t1"); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		_, err := repo.GetPending("t1")
		if !errors.Is(err, domain.ErrSubmissionNotFound) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", domain.ErrSubmissionNotFound, err)
		}
	})

	t.Run("should return ErrSubmissionNotFound for an unknown trace ID", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		err := repo.Remove("missing")
		if !errors.Is(err, domain.ErrSubmissionNotFound) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", domain.ErrSubmissionNotFound, err)
		}
	})
}

func TestPendingRepo_ListPending(t *testing.T) {
	t.Run("should return 0 entries if there are none", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		got, err := repo.ListPending()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if len(got) != 0 {
			t.Fatalf("\nwanted:\n0\ngot:\n%d", len(got))
		}
	})

	t.Run("should return pending and failed entries oldest first", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		base := time.Date(2025, 10, 20, 12, 0, 0, 0, time.UTC)
		testSubmission(t, repo, "newest", base.Add(2*time.Minute))
		testSubmission(t, repo, "oldest", base)
		testSubmission(t, repo, "middle", base.Add(time.Minute))

		if err := repo.UpdateStatus("middle", domain.StatusFailed, 3, "timeout"); err != nil {
			t.Fatalf("updating status: %v", err)
		}

		got, err := repo.ListPending()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		want := []string{"oldest", "middle", "newest"}
		if len(got) != len(want) {
			t.Fatalf("\nwanted:\n%d\ngot:\n%d", len(want), len(got))
		}
		for i, sub := range got {
			if sub.TraceID != want[i] {
				t.Fatalf("\nwanted:\n%s\ngot:\n%s", want[i], sub.TraceID)
			}
		}
		if got[1].Status != domain.StatusFailed {
			t.Fatalf("\nwanted:\n%s\ngot:\n%s", domain.StatusFailed, got[1].Status)
		}
	})

	t.Run("should skip entries marked delivered", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		testSubmission(t, repo, "t1", time.Now())
		testSubmission(t, repo, "t2", time.Now())

		if err := repo.UpdateStatus("t1", domain.StatusDelivered, 1, ""); err != nil {
			t.Fatalf("updating status: %v", err)
		}

		got, err := repo.ListPending()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if len(got) != 1 || got[0].TraceID != "t2" {
			t.Fatalf("\nwanted:\n[t2]\ngot:\n%v", got)
		}
	})
}

func TestPendingRepo_UpdateStatus(t *testing.T) {
	t.Run("should update status, attempt count and last error", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		testSubmission(t, repo, "t1", time.Now())

		if err := repo.UpdateStatus("t1", domain.StatusFailed, 3, "connection refused"); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got, err := repo.GetPending("t1")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if got.Status != domain.StatusFailed || got.AttemptCount != 3 || got.LastError != "connection refused" {
			t.Fatalf("\nwanted:\nfailed/3/connection refused\ngot:\n%s/%d/%s", got.Status, got.AttemptCount, got.LastError)
		}
	})

	t.Run("should clear the last error when given an empty one", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		testSubmission(t, repo, "t1", time.Now())
		if err := repo.UpdateStatus("t1", domain.StatusFailed, 1, "boom"); err != nil {
			t.Fatalf("updating status: %v", err)
		}
		if err := repo.UpdateStatus("t1", domain.StatusPending, 1, ""); err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}

		got, err := repo.GetPending("t1")
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if got.LastError != "" {
			t.Fatalf("\nwanted:\n\"\"\ngot:\n%q", got.LastError)
		}
	})

	t.Run("should return ErrSubmissionNotFound for an unknown trace ID", func(t *testing.T) {
		repo, teardown := setupTestDB(t)
		defer teardown()

		err := repo.UpdateStatus("missing", domain.StatusFailed, 1, "boom")
		if !errors.Is(err, domain.ErrSubmissionNotFound) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", domain.ErrSubmissionNotFound, err)
		}
	})
}
