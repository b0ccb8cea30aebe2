package journal

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/autoledger/internal/db"
	"github.com/hpungsan/autoledger/internal/errors"
	"github.com/hpungsan/autoledger/internal/testutil"
)

// getOnlyStore hides Take so the Get+Remove path is exercised.
type getOnlyStore struct{ inner *MemoryStore }

func (s getOnlyStore) Set(ctx context.Context, k, v string) error { return s.inner.Set(ctx, k, v) }
func (s getOnlyStore) Get(ctx context.Context, k string) (string, bool, error) {
	return s.inner.Get(ctx, k)
}
func (s getOnlyStore) Remove(ctx context.Context, k string) error { return s.inner.Remove(ctx, k) }

func TestJournal_ConsumeOnce(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewFakeClock(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))

	for name, store := range map[string]Store{
		"taker":    NewMemoryStore(),
		"get-only": getOnlyStore{inner: NewMemoryStore()},
	} {
		t.Run(name, func(t *testing.T) {
			j := New(store, WithClock(clock.Now))

			require.NoError(t, j.SetPending(ctx, "longpress"))

			reason, ok, err := j.ConsumePending(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, "longpress", reason)

			_, ok, err = j.ConsumePending(ctx)
			require.NoError(t, err)
			require.False(t, ok, "second consume must observe nothing")
		})
	}
}

func TestJournal_StaleIsClearedAndAbsent(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewFakeClock(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	store := NewMemoryStore()
	j := New(store, WithClock(clock.Now))

	require.NoError(t, j.SetPending(ctx, "quick_toggle"))
	clock.Advance(5 * time.Second)

	_, err := j.ConsumePendingDetail(ctx)
	require.True(t, errors.Is(err, errors.ErrJournalStale), "err = %v", err)

	_, ok, _ := store.Get(ctx, PendingKey)
	require.False(t, ok, "stale record must still be cleared")

	require.NoError(t, j.SetPending(ctx, "quick_toggle"))
	clock.Advance(6 * time.Second)
	reason, ok, err := j.ConsumePending(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, reason)
}

func TestJournal_FreshJustUnderWindow(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewFakeClock(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	j := New(NewMemoryStore(), WithClock(clock.Now))

	require.NoError(t, j.SetPending(ctx, "hotkey"))
	clock.Advance(4999 * time.Millisecond)

	p, err := j.ConsumePendingDetail(ctx)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, "hotkey", p.Reason)
}

func TestJournal_Clear(t *testing.T) {
	ctx := context.Background()
	j := New(NewMemoryStore())

	require.NoError(t, j.SetPending(ctx, "hotkey"))
	require.NoError(t, j.Clear(ctx))
	require.NoError(t, j.Clear(ctx))

	_, ok, err := j.ConsumePending(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestJournal_CorruptRecordReadsAbsent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Set(ctx, PendingKey, "{not json"))

	_, ok, err := New(store).ConsumePending(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	_, present, _ := store.Get(ctx, PendingKey)
	require.False(t, present)
}

// Restart simulation: the pending record is written through one database
// handle and consumed through a fresh one opened on the same directory.
func TestJournal_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	clock := testutil.NewFakeClock(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))

	first, err := db.Init(dir)
	require.NoError(t, err)
	require.NoError(t, New(db.NewKV(first), WithClock(clock.Now)).SetPending(ctx, "longpress"))
	require.NoError(t, first.Close())

	clock.Advance(2 * time.Second)

	second, err := db.Init(dir)
	require.NoError(t, err)
	defer second.Close()

	j := New(db.NewKV(second), WithClock(clock.Now))
	reason, ok, err := j.ConsumePending(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "longpress", reason)

	_, ok, err = j.ConsumePending(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestWithFreshness(t *testing.T) {
	ctx := context.Background()
	clock := testutil.NewFakeClock(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	j := New(NewMemoryStore(), WithClock(clock.Now), WithFreshness(time.Second))

	require.NoError(t, j.SetPending(ctx, "hotkey"))
	clock.Advance(1500 * time.Millisecond)

	_, ok, err := j.ConsumePending(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}
