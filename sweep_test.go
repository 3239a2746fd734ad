package formrelay

import (
	"context"
	"net/http"
	"testing"
	"time"
)

func TestSweep(t *testing.T) {
	ctx := context.Background()

	t.Run("should deliver failed entries once the admin api recovers", func(t *testing.T) {
		admin := newTestAdmin(t, http.StatusInternalServerError, 0)
		relay, _ := setupTestRelay(t, admin.URL)

		for _, id := range []string{"a", "b"} {
			if res, _ := relay.Collect(ctx, newsletter(id)); res.OK {
				t.Fatalf("\nwanted:\nfailed delivery\ngot:\n%+v", res)
			}
		}

		report, err := relay.Sweep(ctx)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if report != (SweepReport{Scanned: 2, Failed: 2}) {
			t.Fatalf("\nwanted:\n2 failed\ngot:\n%+v", report)
		}

		admin.status.Store(http.StatusOK)
		report, err = relay.Sweep(ctx)
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		if report != (SweepReport{Scanned: 2, Delivered: 2}) {
			t.Fatalf("\nwanted:\n2 delivered\ngot:\n%+v", report)
		}

		pending, _ := relay.Repo.ListPending()
		if len(pending) != 0 {
			t.Fatalf("\nwanted:\nno pending entries\ngot:\n%d", len(pending))
		}
	})

	t.Run("should stop the sweeper when the context ends", func(t *testing.T) {
		admin := newTestAdmin(t, http.StatusOK, 0)
		relay, _ := setupTestRelay(t, admin.URL)

		sctx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			relay.RunSweeper(sctx, 10*time.Millisecond)
			close(done)
		}()

		time.Sleep(30 * time.Millisecond)
		cancel()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("\nwanted:\nsweeper stopped\ngot:\nstill running")
		}
	})
}
