package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slok/clockin/internal/model"
	"github.com/slok/clockin/internal/push/memory"
)

func TestHubPublish(t *testing.T) {
	tests := map[string]struct {
		connect   bool
		event     model.Event
		expEvents int
	}{
		"A connected hub should deliver events.": {
			connect:   true,
			event:     model.Event{ID: "1", Type: model.EventTypeTimeEntry},
			expEvents: 1,
		},

		"A disconnected hub should drop events.": {
			connect:   false,
			event:     model.Event{ID: "1", Type: model.EventTypeTimeEntry},
			expEvents: 0,
		},

		"A disconnected hub should still deliver token errors.": {
			connect:   false,
			event:     model.Event{ID: "1", Type: model.EventTypeTokenError},
			expEvents: 1,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)
			ctx := context.Background()

			hub, err := memory.NewHub(memory.HubConfig{})
			require.NoError(err)
			if test.connect {
				require.NoError(hub.Connect(ctx, "token"))
			}

			var got []model.Event
			unsubscribe := hub.Subscribe(func(_ context.Context, ev model.Event) { got = append(got, ev) })
			defer unsubscribe()

			hub.Publish(ctx, test.event)
			assert.Len(t, got, test.expEvents)
		})
	}
}

func TestHubSubscriptionsAreSymmetric(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	hub, err := memory.NewHub(memory.HubConfig{})
	require.NoError(err)
	require.NoError(hub.Connect(ctx, "token"))

	var order []string
	u1 := hub.Subscribe(func(context.Context, model.Event) { order = append(order, "first") })
	u2 := hub.Subscribe(func(context.Context, model.Event) { order = append(order, "second") })
	require.Equal(2, hub.Listeners())

	hub.Publish(ctx, model.Event{Type: model.EventTypeAttendance})
	assert.Equal(t, []string{"first", "second"}, order)

	u1()
	u1() // Idempotent.
	require.Equal(1, hub.Listeners())
	u2()
	require.Equal(0, hub.Listeners())
}

func TestHubConnectivity(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	hub, err := memory.NewHub(memory.HubConfig{})
	require.NoError(err)
	require.False(hub.Connected())

	require.ErrorIs(hub.Connect(ctx, ""), model.ErrUnauthorized)

	require.NoError(hub.Connect(ctx, "t1"))
	require.True(hub.Connected())

	require.NoError(hub.Reconnect(ctx, "t2"))
	require.True(hub.Connected())
	require.Equal("t2", hub.Token())
	require.Equal(1, hub.Reconnects())

	require.NoError(hub.Disconnect(ctx))
	require.False(hub.Connected())
}
