package formrelay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tfkr-ae/formrelay/domain"
)

// SweepReport counts the outcome of one pass over the unresolved submissions.
type SweepReport struct {
	Scanned   int `json:"scanned"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// Sweep forwards every unresolved submission again, oldest first.
// Entries resolved since the listing was taken are skipped.
func (relay *Relay) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	subs, err := relay.Repo.ListPending()
	if err != nil {
		return report, fmt.Errorf("listing pending submissions: %w", err)
	}

	for _, sub := range subs {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Scanned++

		res, err := relay.Retry(ctx, sub.TraceID)
		switch {
		case errors.Is(err, domain.ErrSubmissionNotFound):
			report.Skipped++
		case err != nil:
			relay.Logger.Error("sweeping submission", "trace_id", sub.TraceID, "err", err)
			report.Failed++
		case !res.OK:
			report.Failed++
		case res.Status == domain.StatusPending:
			report.Skipped++
		default:
			report.Delivered++
		}
	}
	return report, nil
}

// RunSweeper calls Sweep every interval until ctx is cancelled.
func (relay *Relay) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			relay.Logger.Info("sweeper stopping")
			return
		case <-t.C:
			report, err := relay.Sweep(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				relay.Logger.Error("sweeping unresolved submissions", "err", err)
				continue
			}
			if report.Scanned == 0 {
				continue
			}
			relay.Logger.Info("swept unresolved submissions",
				"scanned", report.Scanned,
				"delivered", report.Delivered,
				"failed", report.Failed,
				"skipped", report.Skipped,
			)
		}
	}
}
