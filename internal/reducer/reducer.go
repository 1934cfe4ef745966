// Package reducer implements the Store (S, R, E) execution engine: a
// per-message context binding state, a pure reducer, and an
// environment, generalized from pkg/saga.Orchestrator's
// execute-then-react loop into a typed effects-as-values runtime
// usable by every aggregate in internal/aggregate.
package reducer

import "errors"

// Reducer is pure with respect to state: given the current state, an
// action, and the environment (read-only handles, never mutated),
// it mutates state deterministically and returns the effects the
// runtime should perform.
type Reducer[S any, A any] func(state *S, action A, env *Environment) []Effect[A]

// ErrEffectBudgetExceeded is returned when a chain of effects feeding
// actions back into the reducer exceeds MaxDepth without settling,
// guarding against a reducer/effect pair that loops forever.
var ErrEffectBudgetExceeded = errors.New("reducer: effect processing budget exceeded")

// ErrWaitTimeout is returned by SendAndWaitFor when no action matching
// the predicate arrives before the deadline.
var ErrWaitTimeout = errors.New("reducer: timed out waiting for action")

// ErrStoreClosed is returned by Send/SendAndWaitFor after Close.
var ErrStoreClosed = errors.New("reducer: store is closed")
