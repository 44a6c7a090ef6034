package push

import (
	"context"

	"github.com/slok/clockin/internal/model"
)

// Listener receives push events. Listeners are called from the transport
// delivery loop, they should not block for long.
type Listener func(ctx context.Context, ev model.Event)

// Transport is the persistent push stream connection with the server.
// There is a single transport per process, shared by all its consumers.
//
//go:generate mockery --case underscore --output pushmock --outpkg pushmock --name Transport
type Transport interface {
	Connect(ctx context.Context, token string) error
	// Reconnect drops the current connection (if any) and connects again with the token.
	Reconnect(ctx context.Context, token string) error
	Disconnect(ctx context.Context) error
	Connected() bool
	// Subscribe registers a listener and returns the function that unregisters it.
	Subscribe(l Listener) (unsubscribe func())
}
