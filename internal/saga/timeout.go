package saga

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/prohmpiriya/ticketcore/internal/corerr"
	"github.com/prohmpiriya/ticketcore/internal/logging"
)

// Timeout is a scheduled step deadline: if Step hasn't reported success
// for SagaID by DeadlineAt, Dispatch fires the compensating action. It
// is kept durable and polled rather than left to an in-process timer
// because the per-message Store the runtime builds for each delivered
// event does not outlive that one message (design §4.2/§4.3) -- an
// in-memory reducer.Delay effect scheduled by one Store instance dies
// with it, so a restart between "reservation initiated" and "seats
// reserved" would otherwise lose the expiry entirely.
type Timeout struct {
	SagaID     string
	Step       string
	DeadlineAt time.Time
}

func (t Timeout) key() string { return t.SagaID + ":" + t.Step }

// TimeoutStore persists pending timeouts across restarts.
type TimeoutStore interface {
	Schedule(ctx context.Context, t Timeout) error
	Cancel(ctx context.Context, sagaID, step string) error
	DueBefore(ctx context.Context, now time.Time) ([]Timeout, error)
}

// MemoryTimeoutStore is an in-process TimeoutStore.
type MemoryTimeoutStore struct {
	mu      sync.Mutex
	pending map[string]Timeout
}

func NewMemoryTimeoutStore() *MemoryTimeoutStore {
	return &MemoryTimeoutStore{pending: make(map[string]Timeout)}
}

func (s *MemoryTimeoutStore) Schedule(ctx context.Context, t Timeout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[t.key()] = t
	return nil
}

func (s *MemoryTimeoutStore) Cancel(ctx context.Context, sagaID, step string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, Timeout{SagaID: sagaID, Step: step}.key())
	return nil
}

func (s *MemoryTimeoutStore) DueBefore(ctx context.Context, now time.Time) ([]Timeout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []Timeout
	for key, t := range s.pending {
		if !t.DeadlineAt.After(now) {
			due = append(due, t)
			delete(s.pending, key)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].DeadlineAt.Before(due[j].DeadlineAt) })
	return due, nil
}

var _ TimeoutStore = (*MemoryTimeoutStore)(nil)

// Dispatch fires the compensation/expiry action for a timed-out step.
// Implementations typically hydrate a fresh aggregate Store for
// t.SagaID and send it the step's expiry action.
type Dispatch func(ctx context.Context, t Timeout) error

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	CheckInterval time.Duration
	Logger        logging.Logger
}

// Scheduler polls a TimeoutStore and invokes Dispatch for every step
// whose deadline has passed, the way TimeoutHandler.runLoop ticks over
// pendingTimeouts and calls triggerTimeoutCompensation.
type Scheduler struct {
	store    TimeoutStore
	dispatch Dispatch
	interval time.Duration
	logger   logging.Logger

	stop chan struct{}
	done chan struct{}
}

func NewScheduler(store TimeoutStore, dispatch Dispatch, cfg SchedulerConfig) *Scheduler {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOpLogger{}
	}
	return &Scheduler{
		store: store, dispatch: dispatch, interval: cfg.CheckInterval, logger: cfg.Logger,
		stop: make(chan struct{}), done: make(chan struct{}),
	}
}

// Run blocks, polling until ctx is cancelled or Stop is called.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.checkDue(ctx)
		}
	}
}

// Stop signals Run to exit and waits for it to return.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) checkDue(ctx context.Context) {
	due, err := s.store.DueBefore(ctx, time.Now())
	if err != nil {
		s.logger.ErrorContext(ctx, "saga: failed to list due timeouts", "err", err)
		return
	}
	for _, t := range due {
		if err := s.dispatch(ctx, t); err != nil {
			s.logger.ErrorContext(ctx, "saga: timeout dispatch failed", "saga_id", t.SagaID, "step", t.Step, "err", corerr.Wrap(corerr.KindStorage, "dispatch timeout", err))
		}
	}
}
