package cache

import (
	"errors"
	"sync"
	"time"

	"github.com/tfkr-ae/formrelay/domain"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrRecordExists is returned by Insert when a live record already holds the trace ID.
	ErrRecordExists = errors.New("trace id already has a live record")
	// ErrRecordNotFound is returned by Update when there is no live record for the trace ID.
	ErrRecordNotFound = errors.New("trace id has no live record")
)

// Cache is an in-memory idempotency cache keyed by trace ID.
type Cache struct {
	mu      sync.RWMutex
	records map[string]domain.Record
	ttl     time.Duration
	now     func() time.Time
	group   singleflight.Group

	locksMu sync.Mutex
	locks   map[string]*keyLock
}

// keyLock serializes the critical sections of one trace ID.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

// New returns a cache whose records are retained for ttl.
func New(ttl time.Duration, options ...func(*Cache)) *Cache {
	c := &Cache{
		records: make(map[string]domain.Record),
		locks:   make(map[string]*keyLock),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, option := range options {
		option(c)
	}
	return c
}

// WithClock replaces the time source, tests use it to move past the retention window.
func WithClock(now func() time.Time) func(*Cache) {
	return func(c *Cache) {
		c.now = now
	}
}

// TTL returns the retention window.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Lookup returns the live record for the trace ID.
// An expired record is reported as a miss even before the cleaner removed it.
func (c *Cache) Lookup(traceID string) (domain.Record, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.records[traceID]
	if !ok || rec.Expired(c.now()) {
		return domain.Record{}, false
	}
	return rec, true
}

// Insert creates the record for a trace ID in the given status.
// An expired record under the same trace ID is replaced.
func (c *Cache) Insert(traceID string, status domain.Status) (domain.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if rec, ok := c.records[traceID]; ok && !rec.Expired(now) {
		return rec, ErrRecordExists
	}

	rec := domain.Record{
		TraceID:   traceID,
		Status:    status,
		ExpiresAt: now.Add(c.ttl),
	}
	c.records[traceID] = rec
	return rec, nil
}

// Update stores the status and outcome of a live record.
// The retention window restarts, so duplicates see the outcome for a full window after it is known.
func (c *Cache) Update(traceID string, status domain.Status, outcome domain.Outcome) (domain.Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	rec, ok := c.records[traceID]
	if !ok || rec.Expired(now) {
		return domain.Record{}, ErrRecordNotFound
	}

	rec.Status = status
	rec.Outcome = outcome
	rec.ExpiresAt = now.Add(c.ttl)
	c.records[traceID] = rec
	return rec, nil
}

// Restore loads records rebuilt from the pending store at startup.
// Existing live records are left untouched.
func (c *Cache) Restore(records []domain.Record) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	restored := 0
	for _, rec := range records {
		if existing, ok := c.records[rec.TraceID]; ok && !existing.Expired(now) {
			continue
		}
		if rec.ExpiresAt.IsZero() {
			rec.ExpiresAt = now.Add(c.ttl)
		}
		c.records[rec.TraceID] = rec
		restored++
	}
	return restored
}

// Len returns the number of records held, expired ones included until evicted.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Do executes fn as the shared critical section for traceID.
// Callers of Do arriving while fn is running for the same trace ID wait for it and receive its result,
// shared reports whether the result was handed to more than one caller.
// fn never overlaps with an Exclusive section of the same trace ID.
func (c *Cache) Do(traceID string, fn func() (domain.Record, error)) (rec domain.Record, shared bool, err error) {
	v, err, shared := c.group.Do(traceID, func() (interface{}, error) {
		unlock := c.lock(traceID)
		defer unlock()
		return fn()
	})
	if v != nil {
		rec = v.(domain.Record)
	}
	return rec, shared, err
}

// Exclusive executes fn as the critical section for traceID without sharing its result.
// It waits for any running Do or Exclusive section of the same trace ID.
func (c *Cache) Exclusive(traceID string, fn func() (domain.Record, error)) (domain.Record, error) {
	unlock := c.lock(traceID)
	defer unlock()
	return fn()
}

func (c *Cache) lock(traceID string) func() {
	c.locksMu.Lock()
	l, ok := c.locks[traceID]
	if !ok {
		l = &keyLock{}
		c.locks[traceID] = l
	}
	l.refs++
	c.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		c.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, traceID)
		}
		c.locksMu.Unlock()
	}
}
