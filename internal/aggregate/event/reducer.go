package event

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prohmpiriya/ticketcore/internal/corerr"
	"github.com/prohmpiriya/ticketcore/internal/eventstore"
	"github.com/prohmpiriya/ticketcore/internal/reducer"
)

// Reduce implements the aggregate's common command/event pattern
// (design §4.4.1): validate the command against state, build the
// domain event, capture the version the reducer saw as
// expected_version, apply the event to state immediately, and return
// an AppendEvents effect that only confirms the version on success.
func Reduce(state *State, action Action, env *reducer.Environment) []reducer.Effect[Action] {
	switch action.Kind {
	case KindCreateEvent:
		return handleCreate(state, action.CreateEvent)
	case KindPublishEvent:
		return handleTransition(state, StatusDraft, StatusPublished, EventTypePublished, EventPublished{})
	case KindOpenSales:
		return handleTransition(state, StatusPublished, StatusSalesOpen, EventTypeSalesOpen, SalesOpened{})
	case KindCloseSales:
		return handleTransition(state, StatusSalesOpen, StatusSalesClosed, EventTypeSalesClosed, SalesClosed{})
	case KindCancelEvent:
		return handleCancel(state, action.CancelEvent)
	case KindUpdateEvent:
		return handleUpdate(state, action.UpdateEvent)
	case KindVersionUpdated:
		state.Version = action.VersionUpdated.Version
		return nil
	case KindValidationFailed:
		return nil
	}
	return nil
}

func handleCreate(state *State, cmd *CreateEventCmd) []reducer.Effect[Action] {
	if state.Loaded {
		return failValidation("event already exists")
	}
	payload := EventCreated{
		EventID:     cmd.EventID,
		Name:        cmd.Name,
		Description: cmd.Description,
		VenueID:     cmd.VenueID,
		StartTime:   cmd.StartTime,
		EndTime:     cmd.EndTime,
	}
	applyCreated(state, payload)
	return appendEffect(state, cmd.EventID, nil, EventTypeCreated, payload)
}

func handleTransition(state *State, from, to Status, eventType string, payload interface{}) []reducer.Effect[Action] {
	if state.Status != from {
		return failValidation(fmt.Sprintf("cannot transition from %s to %s", state.Status, to))
	}
	expected := state.Version
	state.Status = to
	state.UpdatedAt = time.Now().UTC()
	return appendEffect(state, state.ID, &expected, eventType, payload)
}

func handleCancel(state *State, cmd *CancelEventCmd) []reducer.Effect[Action] {
	if state.Status.IsTerminal() {
		return failValidation(fmt.Sprintf("cannot cancel a %s event", state.Status))
	}
	expected := state.Version
	state.Status = StatusCancelled
	state.UpdatedAt = time.Now().UTC()
	return appendEffect(state, state.ID, &expected, EventTypeCancelled, EventCancelled{Reason: cmd.Reason})
}

func handleUpdate(state *State, cmd *UpdateEventCmd) []reducer.Effect[Action] {
	if state.Status != StatusDraft && state.Status != StatusPublished {
		return failValidation(fmt.Sprintf("cannot update a %s event", state.Status))
	}
	expected := state.Version
	payload := EventUpdated{Name: cmd.Name, Description: cmd.Description, StartTime: cmd.StartTime, EndTime: cmd.EndTime}
	applyUpdated(state, payload)
	return appendEffect(state, state.ID, &expected, EventTypeUpdated, payload)
}

func appendEffect(state *State, eventID string, expected *eventstore.Version, eventType string, payload interface{}) []reducer.Effect[Action] {
	body, err := json.Marshal(payload)
	if err != nil {
		return failValidation(err.Error())
	}
	return []reducer.Effect[Action]{
		reducer.AppendEvents[Action]{
			Stream:          StreamID(eventID),
			ExpectedVersion: expected,
			Events: []eventstore.EventRecord{{
				EventType:          eventType,
				EventSchemaVersion: SchemaVersion,
				Payload:            body,
			}},
			OnSuccess: func(v eventstore.Version) Action {
				return Action{Kind: KindVersionUpdated, VersionUpdated: &VersionUpdatedEvt{Version: v}}
			},
			OnError: func(err error) Action {
				return Action{Kind: KindValidationFailed, ValidationFailed: &ValidationFailedEvt{Error: err.Error()}}
			},
		},
	}
}

func failValidation(msg string) []reducer.Effect[Action] {
	return []reducer.Effect[Action]{
		reducer.Future[Action]{Run: func() (Action, bool, error) {
			return Action{Kind: KindValidationFailed, ValidationFailed: &ValidationFailedEvt{Error: msg}}, true, nil
		}},
	}
}

func applyCreated(state *State, ev EventCreated) {
	state.Loaded = true
	state.ID = ev.EventID
	state.Name = ev.Name
	state.Description = ev.Description
	state.VenueID = ev.VenueID
	state.StartTime = ev.StartTime
	state.EndTime = ev.EndTime
	state.Status = StatusDraft
	state.CreatedAt = time.Now().UTC()
	state.UpdatedAt = state.CreatedAt
}

func applyUpdated(state *State, ev EventUpdated) {
	if ev.Name != nil {
		state.Name = *ev.Name
	}
	if ev.Description != nil {
		state.Description = *ev.Description
	}
	if ev.StartTime != nil {
		state.StartTime = *ev.StartTime
	}
	if ev.EndTime != nil {
		state.EndTime = *ev.EndTime
	}
	state.UpdatedAt = time.Now().UTC()
}

// Hydrate rebuilds State by replaying a stream's events, the way every
// aggregate in this module loads before accepting a command.
func Hydrate(ctx context.Context, store eventstore.Store, eventID string) (State, error) {
	events, err := store.Load(ctx, StreamID(eventID), nil)
	if err != nil {
		return State{}, corerr.Wrap(corerr.KindStorage, "hydrate event aggregate", err)
	}

	var state State
	for _, ev := range events {
		applyStored(&state, ev)
	}
	return state, nil
}

func applyStored(state *State, ev eventstore.EventRecord) {
	state.Version = ev.Version
	switch ev.EventType {
	case EventTypeCreated:
		var payload EventCreated
		_ = json.Unmarshal(ev.Payload, &payload)
		applyCreated(state, payload)
	case EventTypePublished:
		state.Status = StatusPublished
	case EventTypeSalesOpen:
		state.Status = StatusSalesOpen
	case EventTypeSalesClosed:
		state.Status = StatusSalesClosed
	case EventTypeCancelled:
		state.Status = StatusCancelled
	case EventTypeUpdated:
		var payload EventUpdated
		_ = json.Unmarshal(ev.Payload, &payload)
		applyUpdated(state, payload)
	}
}
