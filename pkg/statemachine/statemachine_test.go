package statemachine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkshelf/linkshelf/pkg/statemachine"
)

type state string
type event string

const (
	draft     state = "draft"
	published state = "published"
	archived  state = "archived"

	publish event = "publish"
	archive event = "archive"
)

func TestMachineFire(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	allowed := func(_ context.Context, _ state, _ event, data any) bool { return data == "ok" }

	m := statemachine.MustNew(
		statemachine.WithTransition(draft, published, publish,
			statemachine.WithGuard(allowed)),
		statemachine.WithTransitionFrom([]state{draft, published}, archived, archive),
	)

	t.Run("transition succeeds", func(t *testing.T) {
		t.Parallel()
		next, err := m.Fire(ctx, draft, publish, "ok")
		require.NoError(t, err)
		assert.Equal(t, published, next)
	})

	t.Run("guard rejects", func(t *testing.T) {
		t.Parallel()
		next, err := m.Fire(ctx, draft, publish, "nope")
		assert.True(t, statemachine.IsTransitionRejectedError(err))
		assert.Equal(t, draft, next)
		assert.False(t, m.CanFire(ctx, draft, publish, "nope"))
	})

	t.Run("unknown pair", func(t *testing.T) {
		t.Parallel()
		_, err := m.Fire(ctx, archived, publish, nil)
		assert.True(t, statemachine.IsNoTransitionAvailableError(err))
		assert.Contains(t, err.Error(), "archived")
	})

	t.Run("shared source states", func(t *testing.T) {
		t.Parallel()
		for _, from := range []state{draft, published} {
			next, err := m.Fire(ctx, from, archive, nil)
			require.NoError(t, err)
			assert.Equal(t, archived, next)
		}
		assert.ElementsMatch(t, []event{publish, archive}, m.Events(draft))
	})
}

func TestMachineActions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	boom := errors.New("boom")
	var calls []string

	m := statemachine.MustNew(
		statemachine.WithTransition(draft, published, publish,
			statemachine.WithAction(func(_ context.Context, from, to state, _ event, _ any) error {
				calls = append(calls, string(from)+"->"+string(to))
				return nil
			})),
		statemachine.WithTransition(published, archived, archive,
			statemachine.WithAction(func(context.Context, state, state, event, any) error { return boom })),
	)

	next, err := m.Fire(ctx, draft, publish, nil)
	require.NoError(t, err)
	assert.Equal(t, published, next)
	assert.Equal(t, []string{"draft->published"}, calls)

	next, err = m.Fire(ctx, published, archive, nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, published, next)
}

func TestNewRequiresTransitions(t *testing.T) {
	t.Parallel()

	_, err := statemachine.New[state, event]()
	assert.ErrorIs(t, err, statemachine.ErrNoTransitions)
	assert.Panics(t, func() { statemachine.MustNew[state, event]() })
}
