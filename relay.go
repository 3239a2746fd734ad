// Package formrelay relays submissions of the public marketing forms to the internal admin API.
//
// The relay sits between the forms (sales contact, demo request, ROI calculator, newsletter,
// job applications) and the admin API and provides:
//   - Deduplication of retried submissions by trace ID, through an idempotency cache
//   - Durable recording of every accepted submission before it is forwarded
//   - Forwarding with a bounded number of attempts and exponential backoff
//   - Recovery of unresolved submissions after a restart, and operator or periodic retries
//
// Delivery to the admin API is at-least-once. The relay runs as a single process and is the
// only writer of its SQLite pending store.
package formrelay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tfkr-ae/formrelay/cache"
	"github.com/tfkr-ae/formrelay/domain"
)

// Repository defines the methods consumed by the relay to interact with the SQLite backend.
type Repository interface {
	domain.PendingRepository
	domain.AttemptRepository
	domain.StatsRepository
	Close() error
}

// Forwarder delivers a submission to the admin API. Implementations update the
// AttemptCount, Status and LastError of the submission they are handed.
type Forwarder interface {
	Forward(ctx context.Context, sub *domain.Submission) error
}

// Relay orchestrates the idempotency cache, the pending store and the forwarder.
type Relay struct {
	Config     *Config          // Process configuration, immutable once loaded
	Logger     *slog.Logger     // Structured logger
	Repo       Repository       // Durable pending store
	Cache      *cache.Cache     // Idempotency cache
	Forwarder  Forwarder        // Delivery to the admin API
	now        func() time.Time // Clock used for received_at
	newTraceID func() (string, error)
}

// New creates a Relay and applies the provided options.
// When a Config is given, the cache and the forwarder default to the ones it describes.
//
// Parameters:
//   - options: Variadic list of option functions to configure the relay
//
// Returns:
//   - *Relay: Configured relay instance
//   - error: Configuration error if any option fails or a component is missing
func New(options ...func(*Relay) error) (*Relay, error) {
	relay := &Relay{
		Logger:     slog.New(slog.DiscardHandler),
		now:        time.Now,
		newTraceID: newTraceID,
	}
	if err := relay.WithOptions(options...); err != nil {
		return nil, err
	}

	if relay.Config != nil {
		if relay.Cache == nil {
			relay.Cache = cache.New(relay.Config.IdempotencyTTL)
		}
		if relay.Forwarder == nil {
			if err := relay.WithOptions(WithAdminAPI(relay.Config)); err != nil {
				return nil, err
			}
		}
	}

	switch {
	case relay.Repo == nil:
		return nil, errors.New("relay has no repository")
	case relay.Cache == nil:
		return nil, errors.New("relay has no idempotency cache")
	case relay.Forwarder == nil:
		return nil, errors.New("relay has no forwarder")
	}
	return relay, nil
}

// Collect accepts a submission from a public form.
//
// A trace ID seen within the retention window returns the recorded outcome without
// forwarding again. Otherwise the submission is persisted, recorded as pending in the
// cache and forwarded. Concurrent submissions with the same trace ID share a single run.
//
// The returned error is non-nil for validation failures (ErrValidation) and persistence
// failures (ErrPersist). A delivery failure is not an error: it is reported with OK=false.
func (relay *Relay) Collect(ctx context.Context, req Request) (Response, error) {
	if req.TraceID == "" {
		// Set by the ingress handler from the X-Trace-Id header
		req.TraceID, _ = TraceIDFromContext(ctx)
	}
	if err := req.Validate(); err != nil {
		return Response{OK: false, TraceID: req.TraceID, Error: err.Error()}, err
	}

	traceID := req.TraceID
	if traceID == "" {
		var err error
		traceID, err = relay.newTraceID()
		if err != nil {
			return Response{OK: false, Error: "could not assign a trace id"}, err
		}
	}

	// The forwarding round outlives a client that hangs up, waiters share its result
	fctx := context.WithoutCancel(ctx)

	rec, shared, err := relay.Cache.Do(traceID, func() (domain.Record, error) {
		if rec, ok := relay.Cache.Lookup(traceID); ok {
			relay.Logger.Info("duplicate submission", "trace_id", traceID, "status", rec.Status)
			return rec, nil
		}
		return relay.accept(fctx, traceID, req)
	})
	if err != nil {
		return Response{OK: false, TraceID: traceID, Error: "could not record submission"}, err
	}
	if shared {
		relay.Logger.Debug("concurrent duplicate joined", "trace_id", traceID)
	}
	return responseFor(rec), nil
}

// accept persists a new submission and forwards it. It runs inside the trace ID's critical section.
func (relay *Relay) accept(ctx context.Context, traceID string, req Request) (domain.Record, error) {
	now := relay.now()
	receivedAt, ok := ReceivedAtFromContext(ctx)
	if !ok {
		receivedAt = now
	}
	payload := req.Payload
	if payload == nil {
		payload = make(domain.Payload)
	}
	sub := &domain.Submission{
		TraceID:    traceID,
		FormType:   req.FormType,
		Payload:    payload,
		ReceivedAt: receivedAt,
		Status:     domain.StatusPending,
		UpdatedAt:  now,
	}

	if err := relay.Repo.Persist(sub); err != nil {
		relay.Logger.Error("persisting submission", "trace_id", traceID, "form_type", sub.FormType, "err", err)
		return domain.Record{}, fmt.Errorf("%w %s: %w", ErrPersist, traceID, err)
	}
	relay.remember(traceID, domain.StatusPending, domain.Outcome{OK: true})
	relay.Logger.Info("submission accepted", "trace_id", traceID, "form_type", sub.FormType)

	return relay.deliver(ctx, sub), nil
}

// deliver runs a forwarding round and stores its outcome in both the pending store and the cache.
func (relay *Relay) deliver(ctx context.Context, sub *domain.Submission) domain.Record {
	err := relay.Forwarder.Forward(ctx, sub)
	switch {
	case err == nil:
		relay.markDelivered(sub)
		return relay.remember(sub.TraceID, domain.StatusDelivered, domain.Outcome{OK: true})

	case !sub.Status.Terminal():
		// Interrupted: the outcome is unknown, the entry stays pending for recovery
		relay.Logger.Warn("forwarding interrupted", "trace_id", sub.TraceID, "attempts", sub.AttemptCount, "err", err)
		if err := relay.Repo.UpdateStatus(sub.TraceID, domain.StatusPending, sub.AttemptCount, sub.LastError); err != nil {
			relay.Logger.Error("recording interrupted delivery", "trace_id", sub.TraceID, "err", err)
		}
		return relay.remember(sub.TraceID, domain.StatusPending, domain.Outcome{OK: true})

	default:
		if err := relay.Repo.UpdateStatus(sub.TraceID, domain.StatusFailed, sub.AttemptCount, sub.LastError); err != nil {
			relay.Logger.Error("recording failed delivery", "trace_id", sub.TraceID, "err", err)
		}
		return relay.remember(sub.TraceID, domain.StatusFailed, domain.Outcome{OK: false, Error: failureMessage(sub.AttemptCount)})
	}
}

// markDelivered removes the pending entry. If the removal fails the entry is flagged
// delivered instead, so it is never listed as unresolved.
func (relay *Relay) markDelivered(sub *domain.Submission) {
	err := relay.Repo.Remove(sub.TraceID)
	if err == nil || errors.Is(err, domain.ErrSubmissionNotFound) {
		return
	}
	relay.Logger.Error("removing delivered submission", "trace_id", sub.TraceID, "err", err)
	if err := relay.Repo.UpdateStatus(sub.TraceID, domain.StatusDelivered, sub.AttemptCount, ""); err != nil {
		relay.Logger.Error("flagging delivered submission", "trace_id", sub.TraceID, "err", err)
	}
}

// remember writes the status and outcome of a trace ID to the cache, re-creating the
// record if it expired while the forwarding round was running.
func (relay *Relay) remember(traceID string, status domain.Status, outcome domain.Outcome) domain.Record {
	rec, err := relay.Cache.Update(traceID, status, outcome)
	if errors.Is(err, cache.ErrRecordNotFound) {
		relay.Cache.Insert(traceID, status)
		rec, err = relay.Cache.Update(traceID, status, outcome)
	}
	if err != nil {
		relay.Logger.Error("updating idempotency record", "trace_id", traceID, "err", err)
		return domain.Record{TraceID: traceID, Status: status, Outcome: outcome}
	}
	return rec
}

// recordAttempt stores a forwarding attempt in the audit trail.
func (relay *Relay) recordAttempt(attempt *domain.Attempt) {
	if relay.Repo == nil {
		return
	}
	if err := relay.Repo.InsertAttempt(attempt); err != nil {
		relay.Logger.Warn("recording forward attempt", "trace_id", attempt.TraceID, "attempt", attempt.Number, "err", err)
	}
}

// RecoveryReport summarizes the unresolved submissions found at startup.
type RecoveryReport struct {
	Pending  int `json:"pending"`
	Failed   int `json:"failed"`
	Restored int `json:"restored"`
}

// Recover rebuilds the idempotency records of every unresolved submission from the pending store.
// Pending entries are reported as in progress to duplicates, failed ones replay their failure.
// Nothing is forwarded: see Retry and Sweep.
func (relay *Relay) Recover(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport

	subs, err := relay.Repo.ListPending()
	if err != nil {
		return report, fmt.Errorf("listing pending submissions: %w", err)
	}

	records := make([]domain.Record, 0, len(subs))
	for _, sub := range subs {
		rec := domain.Record{TraceID: sub.TraceID, Status: sub.Status, Outcome: domain.Outcome{OK: true}}
		switch sub.Status {
		case domain.StatusFailed:
			report.Failed++
			rec.Outcome = domain.Outcome{OK: false, Error: failureMessage(sub.AttemptCount)}
		default:
			report.Pending++
		}
		records = append(records, rec)
	}
	report.Restored = relay.Cache.Restore(records)

	relay.Logger.InfoContext(ctx, "recovered unresolved submissions",
		"pending", report.Pending,
		"failed", report.Failed,
		"restored", report.Restored,
	)
	return report, nil
}

// Retry forwards an unresolved submission again, on operator request.
// It returns domain.ErrSubmissionNotFound when the trace ID has no pending entry.
func (relay *Relay) Retry(ctx context.Context, traceID string) (Response, error) {
	// Not shared with Collect: a submission arriving meanwhile waits and then sees the outcome
	rec, err := relay.Cache.Exclusive(traceID, func() (domain.Record, error) {
		return relay.redeliver(ctx, traceID)
	})
	if err != nil {
		return Response{OK: false, TraceID: traceID, Error: err.Error()}, err
	}
	return responseFor(rec), nil
}

// redeliver loads the stored entry and runs a new forwarding round for it.
func (relay *Relay) redeliver(ctx context.Context, traceID string) (domain.Record, error) {
	sub, err := relay.Repo.GetPending(traceID)
	if err != nil {
		return domain.Record{}, err
	}
	if sub.Status == domain.StatusDelivered {
		relay.markDelivered(sub)
		return relay.remember(traceID, domain.StatusDelivered, domain.Outcome{OK: true}), nil
	}

	sub.Status = domain.StatusPending
	if err := relay.Repo.UpdateStatus(traceID, domain.StatusPending, sub.AttemptCount, sub.LastError); err != nil {
		return domain.Record{}, fmt.Errorf("%w %s: %w", ErrPersist, traceID, err)
	}
	relay.remember(traceID, domain.StatusPending, domain.Outcome{OK: true})
	relay.Logger.Info("retrying submission", "trace_id", traceID, "form_type", sub.FormType, "previous_attempts", sub.AttemptCount)
	return relay.deliver(ctx, sub), nil
}

// Stats is a snapshot of the relay state for operators.
type Stats struct {
	Pending       int `json:"pending"`
	Failed        int `json:"failed"`
	Attempts      int `json:"attempts"`
	CachedRecords int `json:"cached_records"`
}

// Stats returns counts over the pending store and the cache.
func (relay *Relay) Stats() (Stats, error) {
	counts, err := relay.Repo.CountByStatus()
	if err != nil {
		return Stats{}, err
	}
	attempts, err := relay.Repo.CountAttempts()
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Pending:       counts[domain.StatusPending],
		Failed:        counts[domain.StatusFailed],
		Attempts:      attempts,
		CachedRecords: relay.Cache.Len(),
	}, nil
}

// Close releases the pending store.
func (relay *Relay) Close() error {
	return relay.Repo.Close()
}
