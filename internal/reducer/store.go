package reducer

import (
	"context"
	"sync"
	"time"

	"github.com/prohmpiriya/ticketcore/internal/saga"
)

// DefaultMaxDepth caps how many rounds of action-feeds-back-into-reducer
// a single Send can perform before giving up, the same "maximum
// recursion/processing budget" the design calls for.
const DefaultMaxDepth = 64

// Store is a per-message execution context: current state S, reducer
// R, and environment E. It is constructed fresh per dispatch (e.g. per
// hydrated aggregate instance), never shared across requests.
type Store[S any, A any] struct {
	mu       sync.Mutex
	state    S
	reducer  Reducer[S, A]
	env      *Environment
	maxDepth int

	subMu       sync.Mutex
	subscribers []chan A

	closeOnce sync.Once
	closed    chan struct{}
	timersMu  sync.Mutex
	timers    []*time.Timer
}

// New constructs a Store with the given initial state, reducer, and
// environment. initial is typically the result of hydrating an
// aggregate from the event store.
func New[S any, A any](initial S, reducer Reducer[S, A], env *Environment) *Store[S, A] {
	return &Store[S, A]{
		state:    initial,
		reducer:  reducer,
		env:      env,
		maxDepth: DefaultMaxDepth,
		closed:   make(chan struct{}),
	}
}

// State returns a snapshot of the current state.
func (s *Store[S, A]) State() S {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Send runs the reducer on action and executes the resulting effects,
// feeding each effect's resulting action back into the reducer until
// the effect queue drains or the depth budget is exceeded.
func (s *Store[S, A]) Send(ctx context.Context, action A) error {
	select {
	case <-s.closed:
		return ErrStoreClosed
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatch(ctx, action, 0)
}

// SendAndWaitFor sends action, then blocks until an action matching
// predicate is observed (via Send, from this goroutine or another) or
// timeout elapses. Used by request/response flows sitting in front of
// a saga or aggregate that react asynchronously.
func (s *Store[S, A]) SendAndWaitFor(ctx context.Context, action A, predicate func(A) bool, timeout time.Duration) (A, error) {
	ch := s.subscribe()
	defer s.unsubscribe(ch)

	if err := s.Send(ctx, action); err != nil {
		var zero A
		return zero, err
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case next := <-ch:
			if predicate(next) {
				return next, nil
			}
		case <-deadline.C:
			var zero A
			return zero, ErrWaitTimeout
		case <-ctx.Done():
			var zero A
			return zero, ctx.Err()
		case <-s.closed:
			var zero A
			return zero, ErrStoreClosed
		}
	}
}

// Close cancels any pending Delay timers. Call when the Store's
// owning aggregate instance is dropped.
func (s *Store[S, A]) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.timersMu.Lock()
		for _, t := range s.timers {
			t.Stop()
		}
		s.timersMu.Unlock()
	})
}

func (s *Store[S, A]) subscribe() chan A {
	ch := make(chan A, 16)
	s.subMu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.subMu.Unlock()
	return ch
}

func (s *Store[S, A]) unsubscribe(ch chan A) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for i, c := range s.subscribers {
		if c == ch {
			s.subscribers = append(s.subscribers[:i], s.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

func (s *Store[S, A]) broadcast(action A) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- action:
		default:
		}
	}
}

// dispatch runs the reducer on action and executes its effects. Must
// be called with s.mu held.
func (s *Store[S, A]) dispatch(ctx context.Context, action A, depth int) error {
	if depth > s.maxDepth {
		return ErrEffectBudgetExceeded
	}

	effects := s.reducer(&s.state, action, s.env)
	s.broadcast(action)

	for _, eff := range effects {
		if par, ok := eff.(Parallel[A]); ok {
			if err := s.dispatchParallel(ctx, par, depth); err != nil {
				return err
			}
			continue
		}
		next, ok, err := s.execute(ctx, eff)
		if err != nil {
			return err
		}
		if ok {
			if err := s.dispatch(ctx, next, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// dispatchParallel runs every sub-effect of a Parallel concurrently
// and feeds each one's resulting action back into the reducer as it
// completes, in completion order, matching Parallel's documented
// "merge resulting actions in completion order" contract. Unlike a
// Parallel nested inside a Sequential (handled by execute's own
// Parallel case below, which only surfaces the first winner), this is
// the path every top-level Parallel effect takes.
func (s *Store[S, A]) dispatchParallel(ctx context.Context, p Parallel[A], depth int) error {
	type outcome struct {
		action A
		ok     bool
		err    error
	}
	results := make(chan outcome, len(p.Effects))
	for _, sub := range p.Effects {
		sub := sub
		go func() {
			action, ok, err := s.executeUnlocked(ctx, sub)
			results <- outcome{action, ok, err}
		}()
	}

	var firstErr error
	for range p.Effects {
		out := <-results
		if out.err != nil {
			if firstErr == nil {
				firstErr = out.err
			}
			continue
		}
		if out.ok {
			if err := s.dispatch(ctx, out.action, depth+1); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// execute interprets one effect, returning the action it produced (if
// any). Must be called with s.mu held — this keeps reducer invocation
// and state mutation serialized per Store, matching the design's "not
// shared across requests" constraint.
func (s *Store[S, A]) execute(ctx context.Context, eff Effect[A]) (A, bool, error) {
	var zero A

	switch e := eff.(type) {
	case None[A]:
		return zero, false, nil

	case AppendEvents[A]:
		version, err := s.env.Store.Append(ctx, e.Stream, e.ExpectedVersion, e.Events)
		if err != nil {
			if e.OnError != nil {
				return e.OnError(err), true, nil
			}
			return zero, false, nil
		}
		if e.OnSuccess != nil {
			return e.OnSuccess(version), true, nil
		}
		return zero, false, nil

	case PublishEvent[A]:
		err := s.env.Bus.Publish(ctx, e.Topic, e.Event)
		if err != nil {
			if e.OnError != nil {
				return e.OnError(err), true, nil
			}
			return zero, false, nil
		}
		if e.OnSuccess != nil {
			return e.OnSuccess(), true, nil
		}
		return zero, false, nil

	case Future[A]:
		action, ok, err := e.Run()
		if err != nil {
			return zero, false, err
		}
		return action, ok, nil

	case Delay[A]:
		done := make(chan struct{})
		timer := time.AfterFunc(e.Duration, func() { close(done) })
		s.timersMu.Lock()
		s.timers = append(s.timers, timer)
		s.timersMu.Unlock()

		select {
		case <-done:
			return e.Action, true, nil
		case <-ctx.Done():
			timer.Stop()
			return zero, false, nil
		case <-s.closed:
			timer.Stop()
			return zero, false, nil
		}

	case ScheduleTimeout[A]:
		if s.env.Timeouts == nil {
			return zero, false, nil
		}
		err := s.env.Timeouts.Schedule(ctx, saga.Timeout{SagaID: e.SagaID, Step: e.Step, DeadlineAt: e.DeadlineAt})
		if err != nil {
			if e.OnError != nil {
				return e.OnError(err), true, nil
			}
			return zero, false, nil
		}
		return zero, false, nil

	case Sequential[A]:
		for _, sub := range e.Effects {
			action, ok, err := s.execute(ctx, sub)
			if err != nil {
				return zero, false, err
			}
			if ok {
				return action, true, nil
			}
		}
		return zero, false, nil

	// Only reached when a Parallel is nested inside a Sequential (or
	// another Parallel)'s sub-effects; dispatch's own loop intercepts
	// top-level Parallel effects and merges every action through
	// dispatchParallel instead of just the first winner.
	case Parallel[A]:
		type outcome struct {
			action A
			ok     bool
			err    error
		}
		results := make(chan outcome, len(e.Effects))
		for _, sub := range e.Effects {
			sub := sub
			go func() {
				action, ok, err := s.executeUnlocked(ctx, sub)
				results <- outcome{action, ok, err}
			}()
		}

		var firstErr error
		var winner A
		won := false
		for range e.Effects {
			out := <-results
			if out.err != nil && firstErr == nil {
				firstErr = out.err
			}
			if out.ok && !won {
				winner, won = out.action, true
			}
		}
		if firstErr != nil && !won {
			return zero, false, firstErr
		}
		return winner, won, nil

	default:
		return zero, false, nil
	}
}

// executeUnlocked runs an effect without assuming s.mu is held, for
// use inside Parallel's goroutines. Effects themselves only touch the
// environment (event store, bus), never s.state, so this is safe; any
// action produced is fed back into dispatch (which re-acquires the
// lock) by the caller.
func (s *Store[S, A]) executeUnlocked(ctx context.Context, eff Effect[A]) (A, bool, error) {
	return s.execute(ctx, eff)
}
