package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgconn"
	pgx "github.com/jackc/pgx/v4"

	commondb "github.com/AlibekovAA/user-directory/backend/internal/common/db"
)

type Store interface {
	Insert(ctx context.Context, entry Entry) (Entry, error)
	// ClaimNext marks the oldest unprocessed entry as processed and returns
	// it in one step. Concurrent callers never receive the same entry.
	ClaimNext(ctx context.Context) (Entry, bool, error)
	ListAll(ctx context.Context) ([]Entry, error)
	FindByID(ctx context.Context, id int64) (Entry, bool, error)
}

type Querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type PgStore struct {
	pool Querier
}

func NewPgStore(pool Querier) *PgStore {
	return &PgStore{pool: pool}
}

const entryColumns = `id, correlation_id, payload, reason, failed_at, processed`

func (s *PgStore) Insert(ctx context.Context, entry Entry) (Entry, error) {
	start := time.Now()
	row := s.pool.QueryRow(
		ctx,
		`INSERT INTO outbox_entries (correlation_id, payload, reason, failed_at, processed)
		 VALUES ($1, $2, $3, $4, FALSE)
		 RETURNING `+entryColumns,
		entry.CorrelationID,
		entry.Payload,
		entry.Reason,
		entry.FailedAt,
	)

	inserted, err := scanEntry(row)
	if err := commondb.HandleQueryError(err, ErrEntryNotFound, "insert outbox entry", start); err != nil {
		return Entry{}, err
	}
	return inserted, nil
}

func (s *PgStore) ClaimNext(ctx context.Context) (Entry, bool, error) {
	start := time.Now()
	row := s.pool.QueryRow(
		ctx,
		`UPDATE outbox_entries
		 SET processed = TRUE
		 WHERE id = (
		     SELECT id FROM outbox_entries
		     WHERE processed = FALSE
		     ORDER BY failed_at ASC, id ASC
		     FOR UPDATE SKIP LOCKED
		     LIMIT 1
		 )
		 RETURNING `+entryColumns,
	)

	entry, err := scanEntry(row)
	err = commondb.HandleQueryError(err, ErrEntryNotFound, "claim next outbox entry", start)
	if err == ErrEntryNotFound {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

func (s *PgStore) ListAll(ctx context.Context) ([]Entry, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx, `SELECT `+entryColumns+` FROM outbox_entries ORDER BY id ASC`)
	if err != nil {
		return nil, commondb.HandleExecError(err, "list outbox entries", start)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, commondb.HandleExecError(err, "scan outbox entry", start)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, commondb.HandleExecError(err, "iterate outbox entries", start)
	}

	commondb.MeasureQueryDuration("list outbox entries", start)
	return entries, nil
}

func (s *PgStore) FindByID(ctx context.Context, id int64) (Entry, bool, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM outbox_entries WHERE id = $1`, id)

	entry, err := scanEntry(row)
	err = commondb.HandleQueryError(err, ErrEntryNotFound, "find outbox entry", start)
	if err == ErrEntryNotFound {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.CorrelationID, &e.Payload, &e.Reason, &e.FailedAt, &e.Processed)
	if err != nil {
		return Entry{}, err
	}
	e.FailedAt = e.FailedAt.UTC()
	return e, nil
}
