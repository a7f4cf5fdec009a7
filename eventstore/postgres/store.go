// Package postgres is the reference EventStore backend, grounded on the
// teacher's pkg/dcb/postgres/store.go and pkg/dcb/append.go: a pgxpool.Pool,
// batched inserts inside a transaction, and the teacher's per-operation
// error wrapping idiom (eventstore.StoreError + concrete variants).
//
// Schema (created by the teacher's migrations in spirit, not reproduced
// here since schema management is out of core scope per spec §1):
//
//	CREATE TABLE events (
//	    stream_id  TEXT   NOT NULL,
//	    version    BIGINT NOT NULL,
//	    event_type TEXT   NOT NULL,
//	    data       BYTEA  NOT NULL,
//	    metadata   JSONB  NOT NULL,
//	    recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
//	    PRIMARY KEY (stream_id, version)
//	);
//	CREATE TABLE snapshots (
//	    stream_id TEXT PRIMARY KEY,
//	    version   BIGINT NOT NULL,
//	    state     BYTEA  NOT NULL,
//	    saved_at  TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arkflow-dev/reactor/eventstore"
	"github.com/arkflow-dev/reactor/ids"
)

// Store implements eventstore.EventStore against a PostgreSQL database
// reachable through pool.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store. pool must already be configured and reachable; New
// does not ping it (matching the teacher's NewEventStore, which only
// rejects a nil pool).
func New(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, &eventstore.InvalidInputError{
			StoreError: eventstore.StoreError{Op: "new_event_store", Err: fmt.Errorf("pool cannot be nil")},
			Field:      "pool", Value: "nil",
		}
	}
	return &Store{pool: pool}, nil
}

// streamLockKey hashes a StreamID to a 64-bit advisory lock key. Taking an
// advisory lock per stream for the duration of the append transaction
// serializes concurrent appenders to the same stream without taking a
// cross-stream lock, the same deadlock-avoidance idiom the teacher uses for
// its lock-tag feature (pkg/dcb/z_advisory_locks_test.go): keys are derived
// deterministically from the lock subject rather than from row contention.
func streamLockKey(stream ids.StreamID) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(stream))
	return int64(h.Sum64())
}

// AppendEvents implements eventstore.EventStore.
func (s *Store) AppendEvents(ctx context.Context, stream ids.StreamID, expected *ids.Version, events []eventstore.SerializedEvent) (ids.Version, error) {
	if len(events) == 0 {
		return 0, &eventstore.InvalidInputError{
			StoreError: eventstore.StoreError{Op: "append_events", Err: fmt.Errorf("events must not be empty")},
			Field:      "events", Value: "empty",
		}
	}
	if stream == "" {
		return 0, &eventstore.InvalidInputError{
			StoreError: eventstore.StoreError{Op: "append_events", Err: fmt.Errorf("stream id must not be empty")},
			Field:      "stream", Value: "empty",
		}
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return 0, &eventstore.StorageBackendError{
			StoreError: eventstore.StoreError{Op: "append_events", Err: fmt.Errorf("begin tx: %w", err)},
			Resource:   "postgres",
		}
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", streamLockKey(stream)); err != nil {
		return 0, &eventstore.StorageBackendError{
			StoreError: eventstore.StoreError{Op: "append_events", Err: fmt.Errorf("advisory lock: %w", err)},
			Resource:   "postgres",
		}
	}

	var currentVersion int64
	err = tx.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM events WHERE stream_id = $1`, string(stream)).Scan(&currentVersion)
	if err != nil {
		return 0, &eventstore.StorageBackendError{
			StoreError: eventstore.StoreError{Op: "append_events", Err: fmt.Errorf("read current version: %w", err)},
			Resource:   "postgres",
		}
	}

	expectedVersion := int64(0)
	if expected != nil {
		expectedVersion = int64(*expected)
	}
	if currentVersion != expectedVersion {
		return 0, &eventstore.ConcurrencyConflictError{
			StoreError: eventstore.StoreError{Op: "append_events"},
			Stream:     stream,
			Expected:   ids.Version(expectedVersion),
			Actual:     ids.Version(currentVersion),
		}
	}

	batch := &pgx.Batch{}
	for i, ev := range events {
		metadataJSON, merr := json.Marshal(ev.Metadata)
		if merr != nil {
			return 0, &eventstore.InvalidInputError{
				StoreError: eventstore.StoreError{Op: "append_events", Err: fmt.Errorf("marshal metadata: %w", merr)},
				Field:      "metadata", Value: ev.EventType,
			}
		}
		version := currentVersion + int64(i) + 1
		batch.Queue(
			`INSERT INTO events (stream_id, version, event_type, data, metadata, recorded_at) VALUES ($1,$2,$3,$4,$5,$6)`,
			string(stream), version, ev.EventType, ev.Data, metadataJSON, time.Now().UTC(),
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range events {
		if _, err := br.Exec(); err != nil {
			br.Close()
			var pgErr *pgconn.PgError
			if isUniqueViolation(err, &pgErr) {
				return 0, &eventstore.ConcurrencyConflictError{
					StoreError: eventstore.StoreError{Op: "append_events"},
					Stream:     stream,
					Expected:   ids.Version(expectedVersion),
					Actual:     ids.Version(currentVersion),
				}
			}
			return 0, &eventstore.StorageBackendError{
				StoreError: eventstore.StoreError{Op: "append_events", Err: fmt.Errorf("insert event: %w", err)},
				Resource:   "postgres",
			}
		}
	}
	if err := br.Close(); err != nil {
		return 0, &eventstore.StorageBackendError{
			StoreError: eventstore.StoreError{Op: "append_events", Err: fmt.Errorf("close batch: %w", err)},
			Resource:   "postgres",
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, &eventstore.StorageBackendError{
			StoreError: eventstore.StoreError{Op: "append_events", Err: fmt.Errorf("commit: %w", err)},
			Resource:   "postgres",
		}
	}

	return ids.Version(currentVersion + int64(len(events))), nil
}

func isUniqueViolation(err error, out **pgconn.PgError) bool {
	var pgErr *pgconn.PgError
	if ok := asPgError(err, &pgErr); ok && pgErr.Code == "23505" {
		*out = pgErr
		return true
	}
	return false
}

func asPgError(err error, out **pgconn.PgError) bool {
	for err != nil {
		if pgErr, ok := err.(*pgconn.PgError); ok {
			*out = pgErr
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// LoadEvents implements eventstore.EventStore.
func (s *Store) LoadEvents(ctx context.Context, stream ids.StreamID, from *ids.Version) ([]eventstore.StoredEvent, error) {
	fromVersion := int64(1)
	if from != nil {
		fromVersion = int64(*from)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT version, event_type, data, metadata, recorded_at FROM events
		 WHERE stream_id = $1 AND version >= $2 ORDER BY version ASC`,
		string(stream), fromVersion)
	if err != nil {
		return nil, &eventstore.StorageBackendError{
			StoreError: eventstore.StoreError{Op: "load_events", Err: fmt.Errorf("query: %w", err)},
			Resource:   "postgres",
		}
	}
	defer rows.Close()

	events := make([]eventstore.StoredEvent, 0)
	for rows.Next() {
		var (
			version      int64
			eventType    string
			data         []byte
			metadataJSON []byte
			recordedAt   time.Time
		)
		if err := rows.Scan(&version, &eventType, &data, &metadataJSON, &recordedAt); err != nil {
			return nil, &eventstore.StorageBackendError{
				StoreError: eventstore.StoreError{Op: "load_events", Err: fmt.Errorf("scan: %w", err)},
				Resource:   "postgres",
			}
		}
		var metadata eventstore.Metadata
		if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
			return nil, &eventstore.StorageBackendError{
				StoreError: eventstore.StoreError{Op: "load_events", Err: fmt.Errorf("unmarshal metadata: %w", err)},
				Resource:   "postgres",
			}
		}
		events = append(events, eventstore.StoredEvent{
			SerializedEvent: eventstore.SerializedEvent{EventType: eventType, Data: data, Metadata: metadata},
			Stream:          stream,
			Version:         ids.Version(version),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, &eventstore.StorageBackendError{
			StoreError: eventstore.StoreError{Op: "load_events", Err: fmt.Errorf("iterate rows: %w", err)},
			Resource:   "postgres",
		}
	}
	return events, nil
}

// SaveSnapshot implements eventstore.EventStore.
func (s *Store) SaveSnapshot(ctx context.Context, stream ids.StreamID, version ids.Version, state []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO snapshots (stream_id, version, state, saved_at) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (stream_id) DO UPDATE SET version = EXCLUDED.version, state = EXCLUDED.state, saved_at = EXCLUDED.saved_at`,
		string(stream), int64(version), state, time.Now().UTC())
	if err != nil {
		return &eventstore.StorageBackendError{
			StoreError: eventstore.StoreError{Op: "save_snapshot", Err: fmt.Errorf("upsert: %w", err)},
			Resource:   "postgres",
		}
	}
	return nil
}

// LoadSnapshot implements eventstore.EventStore.
func (s *Store) LoadSnapshot(ctx context.Context, stream ids.StreamID) (ids.Version, []byte, bool, error) {
	var version int64
	var state []byte
	err := s.pool.QueryRow(ctx, `SELECT version, state FROM snapshots WHERE stream_id = $1`, string(stream)).Scan(&version, &state)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil, false, nil
		}
		return 0, nil, false, &eventstore.StorageBackendError{
			StoreError: eventstore.StoreError{Op: "load_snapshot", Err: fmt.Errorf("query: %w", err)},
			Resource:   "postgres",
		}
	}
	return ids.Version(version), state, true, nil
}

var _ eventstore.EventStore = (*Store)(nil)
