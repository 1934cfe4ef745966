package projection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prohmpiriya/ticketcore/internal/corerr"
	"github.com/prohmpiriya/ticketcore/internal/eventstore"
)

// schema lays out one table per read model, each a single JSONB blob
// keyed by the same id the in-process Store maps by: reads are always
// by key, never by predicate on a model's internal fields, so there is
// nothing a relational layout would buy over storing the whole
// projection as a document, the same tradeoff eventstore.PostgresStore
// makes for its payload column.
const schema = `
CREATE TABLE IF NOT EXISTS projection_available_seats (
	key        text  PRIMARY KEY,
	model      jsonb NOT NULL
);
CREATE TABLE IF NOT EXISTS projection_sales_analytics (
	event_id   text  PRIMARY KEY,
	model      jsonb NOT NULL
);
CREATE TABLE IF NOT EXISTS projection_customer_history (
	customer_id text  PRIMARY KEY,
	model       jsonb NOT NULL
);
CREATE TABLE IF NOT EXISTS projection_reservation_ownership (
	reservation_id text  PRIMARY KEY,
	model          jsonb NOT NULL
);
CREATE TABLE IF NOT EXISTS projection_payment_ownership (
	payment_id text  PRIMARY KEY,
	model      jsonb NOT NULL
);
`

// PostgresConfig configures the projection store's connection pool.
type PostgresConfig struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

// PostgresStore is the production Store: every read model lives in its
// own table, durable across restarts, with Manager.Rebuild able to
// truncate and replay them from the event store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and ensures the projection
// tables exist. Callers typically point this at the same database as
// eventstore.PostgresStore, sharing one cluster between the write and
// read sides.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("projection: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("projection: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("projection: ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("projection: migrate: %w", err)
	}
	return store, nil
}

// Close releases all pooled connections.
func (s *PostgresStore) Close() { s.pool.Close() }

func getOne[T any](ctx context.Context, pool *pgxpool.Pool, query, key string) (T, bool, error) {
	var zero T
	var raw []byte
	err := pool.QueryRow(ctx, query, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, corerr.Wrap(corerr.KindStorage, "read projection row", err)
	}
	var model T
	if err := json.Unmarshal(raw, &model); err != nil {
		return zero, false, corerr.Wrap(corerr.KindSerialization, "unmarshal projection row", err)
	}
	return model, true, nil
}

func putOne(ctx context.Context, pool *pgxpool.Pool, query, key string, model any) error {
	raw, err := json.Marshal(model)
	if err != nil {
		return corerr.Wrap(corerr.KindSerialization, "marshal projection row", err)
	}
	if _, err := pool.Exec(ctx, query, key, raw); err != nil {
		return corerr.Wrap(corerr.KindStorage, "write projection row", err)
	}
	return nil
}

func (s *PostgresStore) GetAvailableSeats(ctx context.Context, key string) (AvailableSeats, bool, error) {
	return getOne[AvailableSeats](ctx, s.pool, `SELECT model FROM projection_available_seats WHERE key = $1`, key)
}

func (s *PostgresStore) PutAvailableSeats(ctx context.Context, key string, model AvailableSeats) error {
	return putOne(ctx, s.pool, `
		INSERT INTO projection_available_seats (key, model) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET model = EXCLUDED.model`, key, model)
}

func (s *PostgresStore) GetSalesAnalytics(ctx context.Context, eventID string) (SalesAnalytics, bool, error) {
	return getOne[SalesAnalytics](ctx, s.pool, `SELECT model FROM projection_sales_analytics WHERE event_id = $1`, eventID)
}

func (s *PostgresStore) PutSalesAnalytics(ctx context.Context, model SalesAnalytics) error {
	return putOne(ctx, s.pool, `
		INSERT INTO projection_sales_analytics (event_id, model) VALUES ($1, $2)
		ON CONFLICT (event_id) DO UPDATE SET model = EXCLUDED.model`, model.EventID, model)
}

func (s *PostgresStore) GetCustomerHistory(ctx context.Context, customerID string) (CustomerHistory, bool, error) {
	return getOne[CustomerHistory](ctx, s.pool, `SELECT model FROM projection_customer_history WHERE customer_id = $1`, customerID)
}

func (s *PostgresStore) PutCustomerHistory(ctx context.Context, model CustomerHistory) error {
	return putOne(ctx, s.pool, `
		INSERT INTO projection_customer_history (customer_id, model) VALUES ($1, $2)
		ON CONFLICT (customer_id) DO UPDATE SET model = EXCLUDED.model`, model.CustomerID, model)
}

func (s *PostgresStore) GetReservationOwnership(ctx context.Context, reservationID string) (ReservationOwnership, bool, error) {
	return getOne[ReservationOwnership](ctx, s.pool, `SELECT model FROM projection_reservation_ownership WHERE reservation_id = $1`, reservationID)
}

func (s *PostgresStore) PutReservationOwnership(ctx context.Context, model ReservationOwnership) error {
	return putOne(ctx, s.pool, `
		INSERT INTO projection_reservation_ownership (reservation_id, model) VALUES ($1, $2)
		ON CONFLICT (reservation_id) DO UPDATE SET model = EXCLUDED.model`, model.ReservationID, model)
}

func (s *PostgresStore) GetPaymentOwnership(ctx context.Context, paymentID string) (PaymentOwnership, bool, error) {
	return getOne[PaymentOwnership](ctx, s.pool, `SELECT model FROM projection_payment_ownership WHERE payment_id = $1`, paymentID)
}

func (s *PostgresStore) PutPaymentOwnership(ctx context.Context, model PaymentOwnership) error {
	return putOne(ctx, s.pool, `
		INSERT INTO projection_payment_ownership (payment_id, model) VALUES ($1, $2)
		ON CONFLICT (payment_id) DO UPDATE SET model = EXCLUDED.model`, model.PaymentID, model)
}

func (s *PostgresStore) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		TRUNCATE projection_available_seats, projection_sales_analytics,
			projection_customer_history, projection_reservation_ownership,
			projection_payment_ownership`)
	if err != nil {
		return corerr.Wrap(corerr.KindStorage, "truncate projection tables", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)

// PostgresCheckpoint is the durable Checkpoint counterpart to
// PostgresStore, typically sharing the same pool so a rebuild's store
// reset and checkpoint reset commit against the same database.
type PostgresCheckpoint struct {
	pool *pgxpool.Pool
}

const checkpointSchema = `
CREATE TABLE IF NOT EXISTS projection_checkpoints (
	stream_id  text   PRIMARY KEY,
	version    bigint NOT NULL
);
`

// NewPostgresCheckpoint ensures the checkpoint table exists on pool.
func NewPostgresCheckpoint(ctx context.Context, pool *pgxpool.Pool) (*PostgresCheckpoint, error) {
	if _, err := pool.Exec(ctx, checkpointSchema); err != nil {
		return nil, fmt.Errorf("projection: migrate checkpoint table: %w", err)
	}
	return &PostgresCheckpoint{pool: pool}, nil
}

func (c *PostgresCheckpoint) LastApplied(ctx context.Context, streamID string) (eventstore.Version, bool, error) {
	var v eventstore.Version
	err := c.pool.QueryRow(ctx, `SELECT version FROM projection_checkpoints WHERE stream_id = $1`, streamID).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, corerr.Wrap(corerr.KindStorage, "read projection checkpoint", err)
	}
	return v, true, nil
}

func (c *PostgresCheckpoint) SetLastApplied(ctx context.Context, streamID string, version eventstore.Version) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO projection_checkpoints (stream_id, version) VALUES ($1, $2)
		ON CONFLICT (stream_id) DO UPDATE SET version = EXCLUDED.version`, streamID, version)
	if err != nil {
		return corerr.Wrap(corerr.KindStorage, "write projection checkpoint", err)
	}
	return nil
}

func (c *PostgresCheckpoint) Reset(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, `TRUNCATE projection_checkpoints`); err != nil {
		return corerr.Wrap(corerr.KindStorage, "truncate projection checkpoints", err)
	}
	return nil
}

var _ Checkpoint = (*PostgresCheckpoint)(nil)
