package saga

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prohmpiriya/ticketcore/internal/corerr"
)

const timeoutSchema = `
CREATE TABLE IF NOT EXISTS saga_timeouts (
	saga_id     text        NOT NULL,
	step        text        NOT NULL,
	deadline_at timestamptz NOT NULL,
	PRIMARY KEY (saga_id, step)
);
CREATE INDEX IF NOT EXISTS saga_timeouts_deadline_idx ON saga_timeouts (deadline_at);
`

// PostgresTimeoutStore is the durable TimeoutStore a production
// Scheduler uses, so an armed deadline survives the reservation-worker
// process restarting before it fires. Typically shares a pool with
// eventstore.PostgresStore.
type PostgresTimeoutStore struct {
	pool *pgxpool.Pool
}

// NewPostgresTimeoutStore ensures the timeout table exists on pool.
func NewPostgresTimeoutStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresTimeoutStore, error) {
	if _, err := pool.Exec(ctx, timeoutSchema); err != nil {
		return nil, fmt.Errorf("saga: migrate timeout table: %w", err)
	}
	return &PostgresTimeoutStore{pool: pool}, nil
}

func (s *PostgresTimeoutStore) Schedule(ctx context.Context, t Timeout) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO saga_timeouts (saga_id, step, deadline_at) VALUES ($1, $2, $3)
		ON CONFLICT (saga_id, step) DO UPDATE SET deadline_at = EXCLUDED.deadline_at`,
		t.SagaID, t.Step, t.DeadlineAt)
	if err != nil {
		return corerr.Wrap(corerr.KindStorage, "schedule saga timeout", err)
	}
	return nil
}

func (s *PostgresTimeoutStore) Cancel(ctx context.Context, sagaID, step string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM saga_timeouts WHERE saga_id = $1 AND step = $2`, sagaID, step)
	if err != nil {
		return corerr.Wrap(corerr.KindStorage, "cancel saga timeout", err)
	}
	return nil
}

// DueBefore deletes and returns every timeout whose deadline has
// passed, in one round trip, so two Scheduler instances polling the
// same table never both dispatch the same step.
func (s *PostgresTimeoutStore) DueBefore(ctx context.Context, now time.Time) ([]Timeout, error) {
	rows, err := s.pool.Query(ctx, `
		WITH due AS (
			SELECT saga_id, step FROM saga_timeouts WHERE deadline_at <= $1 FOR UPDATE SKIP LOCKED
		)
		DELETE FROM saga_timeouts USING due
		WHERE saga_timeouts.saga_id = due.saga_id AND saga_timeouts.step = due.step
		RETURNING saga_timeouts.saga_id, saga_timeouts.step, saga_timeouts.deadline_at`, now)
	if err != nil {
		return nil, corerr.Wrap(corerr.KindStorage, "list due saga timeouts", err)
	}
	defer rows.Close()

	var due []Timeout
	for rows.Next() {
		var t Timeout
		if err := rows.Scan(&t.SagaID, &t.Step, &t.DeadlineAt); err != nil {
			return nil, corerr.Wrap(corerr.KindStorage, "scan saga timeout", err)
		}
		due = append(due, t)
	}
	if err := rows.Err(); err != nil {
		return nil, corerr.Wrap(corerr.KindStorage, "iterate saga timeouts", err)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].DeadlineAt.Before(due[j].DeadlineAt) })
	return due, nil
}

var _ TimeoutStore = (*PostgresTimeoutStore)(nil)
