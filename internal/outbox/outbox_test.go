package outbox

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgconn"
	pgx "github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlibekovAA/user-directory/backend/internal/common/clock"
	"github.com/AlibekovAA/user-directory/backend/internal/common/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("", "test", "error")
	require.NoError(t, err)
	return log
}

func TestMemoryStore_ClaimsOldestFirstAndOnlyOnce(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	_, _ = store.Insert(ctx, Entry{CorrelationID: "late", FailedAt: base.Add(time.Minute)})
	_, _ = store.Insert(ctx, Entry{CorrelationID: "early", FailedAt: base})

	first, ok, err := store.ClaimNext(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "early", first.CorrelationID)
	assert.True(t, first.Processed)

	second, ok, _ := store.ClaimNext(ctx)
	require.True(t, ok)
	assert.Equal(t, "late", second.CorrelationID)

	_, ok, _ = store.ClaimNext(ctx)
	assert.False(t, ok)
}

func TestMemoryStore_ConcurrentClaimsNeverOverlap(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		_, _ = store.Insert(ctx, Entry{CorrelationID: "c", FailedAt: time.Now()})
	}

	var (
		mu      sync.Mutex
		claimed = make(map[int64]int)
		wg      sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				e, ok, _ := store.ClaimNext(ctx)
				if !ok {
					return
				}
				mu.Lock()
				claimed[e.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, 50)
	for id, n := range claimed {
		assert.Equalf(t, 1, n, "entry %d claimed %d times", id, n)
	}
}

func TestMemoryStore_ListAndFind(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	a, _ := store.Insert(ctx, Entry{CorrelationID: "a"})
	_, _ = store.Insert(ctx, Entry{CorrelationID: "b"})

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].CorrelationID)

	found, ok, err := store.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "a", found.CorrelationID)

	_, ok, _ = store.FindByID(ctx, 999)
	assert.False(t, ok)
}

func TestService_RecordStoresEntry(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	svc := NewService(store, true, clock.NewMockClock(now), testLogger(t))

	svc.Record(context.Background(), "corr-1", []byte(`{"username":"john"}`), "nack")

	entries, _ := svc.ListAll(context.Background())
	require.Len(t, entries, 1)
	assert.Equal(t, "corr-1", entries[0].CorrelationID)
	assert.Equal(t, `{"username":"john"}`, string(entries[0].Payload))
	require.NotNil(t, entries[0].Reason)
	assert.Equal(t, "nack", *entries[0].Reason)
	assert.Equal(t, now, entries[0].FailedAt)
	assert.False(t, entries[0].Processed)
}

func TestService_RecordDisabled(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, false, nil, testLogger(t))

	svc.Record(context.Background(), "corr-1", []byte("{}"), "nack")

	entries, _ := store.ListAll(context.Background())
	assert.Empty(t, entries)
}

type failingStore struct {
	MemoryStore
}

func (s *failingStore) Insert(ctx context.Context, entry Entry) (Entry, error) {
	return Entry{}, errors.New("db down")
}

func TestService_RecordSwallowsStoreErrors(t *testing.T) {
	svc := NewService(&failingStore{}, true, nil, testLogger(t))

	assert.NotPanics(t, func() {
		svc.Record(context.Background(), "corr-1", []byte("{}"), "nack")
	})
}

type flakyStore struct {
	*MemoryStore
	failures int
}

func (s *flakyStore) Insert(ctx context.Context, entry Entry) (Entry, error) {
	if s.failures > 0 {
		s.failures--
		return Entry{}, &pgconn.PgError{Code: "08006"}
	}
	return s.MemoryStore.Insert(ctx, entry)
}

func TestService_RecordRetriesConnectionErrors(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(), failures: 1}
	svc := NewService(store, true, nil, testLogger(t))

	svc.Record(context.Background(), "corr-1", []byte("{}"), "nack")

	entries, err := svc.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "corr-1", entries[0].CorrelationID)
	assert.Equal(t, 0, store.failures)
}

type fakeRow struct {
	err error
}

func (r fakeRow) Scan(dest ...interface{}) error { return r.err }

type fakeQuerier struct {
	lastSQL string
	rowErr  error
}

func (q *fakeQuerier) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return nil, nil
}

func (q *fakeQuerier) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (q *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	q.lastSQL = sql
	return fakeRow{err: q.rowErr}
}

func TestPgStore_ClaimNextUsesSkipLocked(t *testing.T) {
	q := &fakeQuerier{rowErr: pgx.ErrNoRows}
	store := NewPgStore(q)

	_, ok, err := store.ClaimNext(context.Background())

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Contains(t, q.lastSQL, "FOR UPDATE SKIP LOCKED")
	assert.True(t, strings.HasPrefix(strings.TrimSpace(q.lastSQL), "UPDATE outbox_entries"))
}

func TestPgStore_FindByIDPropagatesErrors(t *testing.T) {
	store := NewPgStore(&fakeQuerier{rowErr: errors.New("connection reset")})

	_, ok, err := store.FindByID(context.Background(), 1)

	assert.Error(t, err)
	assert.False(t, ok)
}

func TestPgStore_ListAllPropagatesErrors(t *testing.T) {
	store := NewPgStore(&fakeQuerier{})

	_, err := store.ListAll(context.Background())
	assert.Error(t, err)
}
