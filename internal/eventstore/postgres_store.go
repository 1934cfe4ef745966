package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prohmpiriya/ticketcore/internal/corerr"
)

const uniqueViolation = "23505"

// schema is the events table DDL, matching the design's
// events(stream_id, version, event_type, event_schema_version,
// payload, metadata, created_at) layout with a (stream_id, version)
// primary key acting as defense-in-depth against two transactions
// both passing the optimistic-concurrency check.
const schema = `
CREATE TABLE IF NOT EXISTS events (
	stream_id             text        NOT NULL,
	version               bigint      NOT NULL,
	event_type            text        NOT NULL,
	event_schema_version  integer     NOT NULL DEFAULT 1,
	payload               bytea       NOT NULL,
	metadata              jsonb       NOT NULL DEFAULT '{}',
	created_at            timestamptz NOT NULL DEFAULT now(),
	PRIMARY KEY (stream_id, version)
);
CREATE INDEX IF NOT EXISTS idx_events_type_schema ON events (event_type, event_schema_version);
CREATE INDEX IF NOT EXISTS idx_events_created_at ON events (created_at);
`

// PostgresConfig configures the event store's connection pool,
// mirroring pkg/database.PostgresConfig.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ConnectTimeout  time.Duration
	EnableTracing   bool
}

// PostgresStore is the production Store, backed by a pgx connection
// pool with optimistic concurrency enforced inside a single
// transaction per append.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and ensures the events table
// exists.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("eventstore: parse dsn: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}
	if cfg.EnableTracing {
		poolConfig.ConnConfig.Tracer = otelpgx.NewTracer(otelpgx.WithIncludeQueryParameters())
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("eventstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("eventstore: ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("eventstore: migrate: %w", err)
	}
	return nil
}

// Pool exposes the underlying pool for health checks and projection
// checkpoint tables that share the same database.
func (s *PostgresStore) Pool() *pgxpool.Pool { return s.pool }

// Close releases all pooled connections.
func (s *PostgresStore) Close() { s.pool.Close() }

func (s *PostgresStore) Append(ctx context.Context, streamID string, expectedVersion *Version, events []EventRecord) (Version, error) {
	if len(events) == 0 {
		return 0, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, corerr.Wrap(corerr.KindStorage, "begin transaction", err)
	}
	defer tx.Rollback(ctx)

	var currentPtr *Version
	var current Version
	row := tx.QueryRow(ctx, `SELECT version FROM events WHERE stream_id = $1 ORDER BY version DESC LIMIT 1 FOR UPDATE`, streamID)
	switch err := row.Scan(&current); {
	case errors.Is(err, pgx.ErrNoRows):
		currentPtr = nil
	case err != nil:
		return 0, corerr.Wrap(corerr.KindStorage, "read current version", err)
	default:
		currentPtr = &current
	}

	if expectedVersion != nil {
		if currentPtr == nil || *currentPtr != *expectedVersion {
			actual := Version(0)
			if currentPtr != nil {
				actual = *currentPtr
			}
			return 0, concurrencyConflict(streamID, expectedVersion, actual)
		}
	} else if currentPtr != nil {
		return 0, concurrencyConflict(streamID, nil, *currentPtr)
	}

	next := Version(0)
	if currentPtr != nil {
		next = *currentPtr + 1
	}

	batch := &pgx.Batch{}
	last := next
	for i, ev := range events {
		version := next + Version(i)
		last = version
		metadata, merr := json.Marshal(ev.Metadata)
		if merr != nil {
			return 0, corerr.Wrap(corerr.KindSerialization, "marshal event metadata", merr)
		}
		schemaVersion := ev.EventSchemaVersion
		if schemaVersion == 0 {
			schemaVersion = 1
		}
		batch.Queue(
			`INSERT INTO events (stream_id, version, event_type, event_schema_version, payload, metadata, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			streamID, version, ev.EventType, schemaVersion, ev.Payload, metadata, timeOrNow(ev.CreatedAt),
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range events {
		if _, err := br.Exec(); err != nil {
			br.Close()
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return 0, concurrencyConflict(streamID, expectedVersion, last)
			}
			return 0, corerr.Wrap(corerr.KindStorage, "insert events", err)
		}
	}
	if err := br.Close(); err != nil {
		return 0, corerr.Wrap(corerr.KindStorage, "close batch", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, corerr.Wrap(corerr.KindStorage, "commit append", err)
	}
	return last, nil
}

func (s *PostgresStore) Load(ctx context.Context, streamID string, fromVersion *Version) ([]EventRecord, error) {
	var rows pgx.Rows
	var err error
	if fromVersion != nil {
		rows, err = s.pool.Query(ctx,
			`SELECT stream_id, version, event_type, event_schema_version, payload, metadata, created_at
			 FROM events WHERE stream_id = $1 AND version >= $2 ORDER BY version ASC`,
			streamID, *fromVersion)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT stream_id, version, event_type, event_schema_version, payload, metadata, created_at
			 FROM events WHERE stream_id = $1 ORDER BY version ASC`,
			streamID)
	}
	if err != nil {
		return nil, corerr.Wrap(corerr.KindStorage, "load stream", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var ev EventRecord
		var metadata []byte
		if err := rows.Scan(&ev.StreamID, &ev.Version, &ev.EventType, &ev.EventSchemaVersion, &ev.Payload, &metadata, &ev.CreatedAt); err != nil {
			return nil, corerr.Wrap(corerr.KindStorage, "scan event row", err)
		}
		if err := json.Unmarshal(metadata, &ev.Metadata); err != nil {
			return nil, corerr.Wrap(corerr.KindSerialization, "unmarshal event metadata", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, corerr.Wrap(corerr.KindStorage, "iterate stream", err)
	}
	return out, nil
}

func (s *PostgresStore) ListStreams(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT stream_id FROM events WHERE $1 = '' OR stream_id LIKE $1 || '%' ORDER BY stream_id`,
		prefix)
	if err != nil {
		return nil, corerr.Wrap(corerr.KindStorage, "list streams", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, corerr.Wrap(corerr.KindStorage, "scan stream id", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CurrentVersion(ctx context.Context, streamID string) (Version, bool, error) {
	var v Version
	err := s.pool.QueryRow(ctx, `SELECT version FROM events WHERE stream_id = $1 ORDER BY version DESC LIMIT 1`, streamID).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, corerr.Wrap(corerr.KindStorage, "read current version", err)
	}
	return v, true, nil
}

// AppendFromDLQ re-inserts a DLQ-parked event at its original version.
// Used when an admin replays an entry whose original append succeeded
// but whose downstream publish failed (the version slot is already
// correct; only the insert needs repeating after a store outage).
func (s *PostgresStore) AppendFromDLQ(ctx context.Context, event EventRecord) error {
	metadata, err := json.Marshal(event.Metadata)
	if err != nil {
		return corerr.Wrap(corerr.KindSerialization, "marshal event metadata", err)
	}
	schemaVersion := event.EventSchemaVersion
	if schemaVersion == 0 {
		schemaVersion = 1
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO events (stream_id, version, event_type, event_schema_version, payload, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (stream_id, version) DO NOTHING`,
		event.StreamID, event.Version, event.EventType, schemaVersion, event.Payload, metadata, timeOrNow(event.CreatedAt))
	if err != nil {
		return corerr.Wrap(corerr.KindStorage, "append from dlq", err)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

var (
	_ Store       = (*PostgresStore)(nil)
	_ DLQReplayer = (*PostgresStore)(nil)
)
