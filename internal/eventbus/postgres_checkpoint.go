package eventbus

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prohmpiriya/ticketcore/internal/corerr"
	"github.com/prohmpiriya/ticketcore/internal/eventstore"
)

const relayCheckpointSchema = `
CREATE TABLE IF NOT EXISTS relay_checkpoints (
	stream_id  text   PRIMARY KEY,
	version    bigint NOT NULL
);
`

// PostgresCheckpointStore is the durable CheckpointStore a production
// Relay uses so a restart resumes from its last published version
// instead of re-publishing every stream from the beginning.
type PostgresCheckpointStore struct {
	pool *pgxpool.Pool
}

// NewPostgresCheckpointStore ensures the checkpoint table exists on
// pool, typically the same pool eventstore.PostgresStore uses.
func NewPostgresCheckpointStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresCheckpointStore, error) {
	if _, err := pool.Exec(ctx, relayCheckpointSchema); err != nil {
		return nil, fmt.Errorf("eventbus: migrate relay checkpoint table: %w", err)
	}
	return &PostgresCheckpointStore{pool: pool}, nil
}

func (c *PostgresCheckpointStore) LastPublished(ctx context.Context, streamID string) (eventstore.Version, bool, error) {
	var v eventstore.Version
	err := c.pool.QueryRow(ctx, `SELECT version FROM relay_checkpoints WHERE stream_id = $1`, streamID).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, corerr.Wrap(corerr.KindStorage, "read relay checkpoint", err)
	}
	return v, true, nil
}

func (c *PostgresCheckpointStore) SetLastPublished(ctx context.Context, streamID string, version eventstore.Version) error {
	_, err := c.pool.Exec(ctx, `
		INSERT INTO relay_checkpoints (stream_id, version) VALUES ($1, $2)
		ON CONFLICT (stream_id) DO UPDATE SET version = EXCLUDED.version`, streamID, version)
	if err != nil {
		return corerr.Wrap(corerr.KindStorage, "write relay checkpoint", err)
	}
	return nil
}

var _ CheckpointStore = (*PostgresCheckpointStore)(nil)
