package statemachine

import "fmt"

// Option configures a Machine during construction.
type Option[S, E comparable] func(*Machine[S, E])

// TransitionOption attaches guards and actions to a single transition.
type TransitionOption[S, E comparable] func(*Transition[S, E])

// New builds a machine from the given options.
func New[S, E comparable](opts ...Option[S, E]) (*Machine[S, E], error) {
	m := &Machine[S, E]{transitions: make(map[S]map[E][]Transition[S, E])}
	for _, opt := range opts {
		opt(m)
	}
	if len(m.transitions) == 0 {
		return nil, ErrNoTransitions
	}
	return m, nil
}

// MustNew is New for package-level tables; it panics on error.
func MustNew[S, E comparable](opts ...Option[S, E]) *Machine[S, E] {
	m, err := New(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to create state machine: %v", err))
	}
	return m
}

func WithTransition[S, E comparable](from, to S, event E, opts ...TransitionOption[S, E]) Option[S, E] {
	return func(m *Machine[S, E]) {
		t := Transition[S, E]{From: from, To: to, Event: event}
		for _, opt := range opts {
			opt(&t)
		}
		if m.transitions[from] == nil {
			m.transitions[from] = make(map[E][]Transition[S, E])
		}
		m.transitions[from][event] = append(m.transitions[from][event], t)
	}
}

// WithTransitionFrom registers the same event and target for several source
// states.
func WithTransitionFrom[S, E comparable](froms []S, to S, event E, opts ...TransitionOption[S, E]) Option[S, E] {
	return func(m *Machine[S, E]) {
		for _, from := range froms {
			WithTransition(from, to, event, opts...)(m)
		}
	}
}

func WithGuard[S, E comparable](g Guard[S, E]) TransitionOption[S, E] {
	return func(t *Transition[S, E]) {
		if g != nil {
			t.Guards = append(t.Guards, g)
		}
	}
}

func WithAction[S, E comparable](a Action[S, E]) TransitionOption[S, E] {
	return func(t *Transition[S, E]) {
		if a != nil {
			t.Actions = append(t.Actions, a)
		}
	}
}
