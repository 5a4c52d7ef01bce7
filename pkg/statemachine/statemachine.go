// Package statemachine implements a finite state machine over comparable
// state and event types.
//
// A Machine holds only the transition table and is immutable once built, so a
// single instance can drive any number of entities: callers pass the entity's
// current state to Fire and persist the state it returns.
//
//	m := statemachine.MustNew(
//		statemachine.WithTransition(Active, CancelledPending, Cancel),
//		statemachine.WithTransition(CancelledPending, Active, Resume,
//			statemachine.WithGuard(notPastEnd)),
//	)
//	next, err := m.Fire(ctx, sub.Status, Cancel, sub)
package statemachine

import (
	"context"
	"fmt"
)

// Guard decides whether a transition may proceed.
type Guard[S, E comparable] func(ctx context.Context, from S, event E, data any) bool

// Action runs before the state changes. An error aborts the transition.
type Action[S, E comparable] func(ctx context.Context, from, to S, event E, data any) error

// Transition defines a state change triggered by an event.
type Transition[S, E comparable] struct {
	From    S
	To      S
	Event   E
	Guards  []Guard[S, E]
	Actions []Action[S, E]
}

// Machine is an immutable transition table.
type Machine[S, E comparable] struct {
	transitions map[S]map[E][]Transition[S, E]
}

// Fire returns the state reached from `from` on event. Transitions registered
// for the same pair are tried in order; the first whose guards all pass wins.
func (m *Machine[S, E]) Fire(ctx context.Context, from S, event E, data any) (S, error) {
	candidates := m.transitions[from][event]
	if len(candidates) == 0 {
		return from, &ErrNoTransitionAvailable{State: fmt.Sprint(from), Event: fmt.Sprint(event)}
	}

	t, ok := firstAllowed(ctx, candidates, from, event, data)
	if !ok {
		return from, &ErrTransitionRejected{State: fmt.Sprint(from), Event: fmt.Sprint(event)}
	}

	for _, action := range t.Actions {
		if err := action(ctx, from, t.To, event, data); err != nil {
			return from, fmt.Errorf("action failed: %w", err)
		}
	}
	return t.To, nil
}

// CanFire reports whether Fire would succeed, without running actions.
func (m *Machine[S, E]) CanFire(ctx context.Context, from S, event E, data any) bool {
	_, ok := firstAllowed(ctx, m.transitions[from][event], from, event, data)
	return ok
}

// Events lists the events registered for a state.
func (m *Machine[S, E]) Events(from S) []E {
	events := make([]E, 0, len(m.transitions[from]))
	for e := range m.transitions[from] {
		events = append(events, e)
	}
	return events
}

func firstAllowed[S, E comparable](ctx context.Context, ts []Transition[S, E], from S, event E, data any) (Transition[S, E], bool) {
	for _, t := range ts {
		allowed := true
		for _, g := range t.Guards {
			if !g(ctx, from, event, data) {
				allowed = false
				break
			}
		}
		if allowed {
			return t, true
		}
	}
	return Transition[S, E]{}, false
}
