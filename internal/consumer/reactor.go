package consumer

import (
	"context"

	"github.com/prohmpiriya/ticketcore/internal/eventbus"
	"github.com/prohmpiriya/ticketcore/internal/reducer"
	"github.com/prohmpiriya/ticketcore/internal/retry"
)

// NewAggregateReactor builds the EventHandler an aggregate reactor
// role hands to a Runtime: per the design, each delivered message gets
// a fresh Store, the aggregate's own hydration is consulted, the
// translated action is dispatched, and the Store is dropped -- no
// Store instance outlives one message.
//
// translate turns the delivered event into the action to dispatch; a
// nil action (ok == false) means the event isn't relevant to this
// reactor and is acknowledged without dispatching anything.
//
// env is shared across every message this reactor handles (only the
// Store it builds per-message is not); callers that need a reducer to
// arm durable saga timeouts populate env.Timeouts, others leave it nil.
func NewAggregateReactor[S any, A any](
	env *reducer.Environment,
	hydrate func(ctx context.Context, event eventbus.SerializedEvent) (S, error),
	reduce reducer.Reducer[S, A],
	translate func(event eventbus.SerializedEvent) (A, bool, error),
) EventHandler {
	return func(ctx context.Context, event eventbus.SerializedEvent) error {
		action, ok, err := translate(event)
		if err != nil {
			return retry.Permanent(err)
		}
		if !ok {
			return nil
		}

		state, err := hydrate(ctx, event)
		if err != nil {
			return err
		}

		agg := reducer.New(state, reduce, env)
		defer agg.Close()

		return agg.Send(ctx, action)
	}
}
