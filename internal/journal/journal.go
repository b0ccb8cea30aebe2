// Package journal records in-flight screenshot acquisitions durably so they
// can be resumed after the process is killed.
package journal

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hpungsan/autoledger/internal/errors"
)

// PendingKey is the store key holding the pending acquisition.
const PendingKey = "pending_screenshot"

// DefaultFreshness is how long a pending record stays valid.
const DefaultFreshness = 5 * time.Second

// Store is a durable string key-value store. Set must not return before the
// value is persisted.
type Store interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, bool, error)
	Remove(ctx context.Context, key string) error
}

// Taker is implemented by stores that can read and delete a key atomically.
type Taker interface {
	Take(ctx context.Context, key string) (string, bool, error)
}

// Pending is the persisted record of an in-flight acquisition.
type Pending struct {
	Reason      string `json:"reason"`
	RequestedAt int64  `json:"requested_at"` // unix millis
}

// Journal guards the single pending acquisition.
type Journal struct {
	store     Store
	freshness time.Duration
	now       func() time.Time

	// serializes Get+Remove for stores without Take
	mu sync.Mutex
}

// Option configures a Journal.
type Option func(*Journal)

// WithFreshness overrides DefaultFreshness.
func WithFreshness(d time.Duration) Option {
	return func(j *Journal) {
		if d > 0 {
			j.freshness = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(j *Journal) { j.now = now }
}

// New returns a Journal over store.
func New(store Store, opts ...Option) *Journal {
	j := &Journal{store: store, freshness: DefaultFreshness, now: time.Now}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// SetPending durably records reason with the current time, replacing any
// earlier record.
func (j *Journal) SetPending(ctx context.Context, reason string) error {
	data, err := json.Marshal(Pending{Reason: reason, RequestedAt: j.now().UnixMilli()})
	if err != nil {
		return errors.NewInternal(err)
	}
	return j.store.Set(ctx, PendingKey, string(data))
}

// ConsumePending returns the pending reason if one is recorded and fresh.
// The record is always cleared, fresh or not; a stale record yields
// ok == false. Use ConsumePendingDetail to tell stale from absent.
func (j *Journal) ConsumePending(ctx context.Context) (string, bool, error) {
	p, err := j.ConsumePendingDetail(ctx)
	if err != nil {
		if errors.Is(err, errors.ErrJournalStale) {
			return "", false, nil
		}
		return "", false, err
	}
	if p == nil {
		return "", false, nil
	}
	return p.Reason, true, nil
}

// ConsumePendingDetail is ConsumePending returning the full record. A stale
// record is reported as a JOURNAL_STALE error; no record is (nil, nil).
func (j *Journal) ConsumePendingDetail(ctx context.Context) (*Pending, error) {
	raw, ok, err := j.take(ctx)
	if err != nil || !ok {
		return nil, err
	}

	var p Pending
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		// unreadable record counts as absent; it has already been cleared
		return nil, nil
	}
	age := j.now().UnixMilli() - p.RequestedAt
	if age < 0 || age >= j.freshness.Milliseconds() {
		return nil, errors.NewJournalStale(age)
	}
	return &p, nil
}

// Clear removes any pending record.
func (j *Journal) Clear(ctx context.Context) error {
	return j.store.Remove(ctx, PendingKey)
}

func (j *Journal) take(ctx context.Context) (string, bool, error) {
	if t, ok := j.store.(Taker); ok {
		return t.Take(ctx, PendingKey)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	raw, ok, err := j.store.Get(ctx, PendingKey)
	if err != nil {
		return "", false, err
	}
	if err := j.store.Remove(ctx, PendingKey); err != nil {
		return "", false, err
	}
	return raw, ok, nil
}

// MemoryStore is an in-process Store for tests and ephemeral runs.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryStore) Take(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	delete(m.data, key)
	return v, ok, nil
}
