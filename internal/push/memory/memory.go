package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/slok/clockin/internal/log"
	"github.com/slok/clockin/internal/model"
	"github.com/slok/clockin/internal/push"
)

// HubConfig is the configuration for the in-process push hub.
type HubConfig struct {
	Logger log.Logger
}

func (c *HubConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "push.Memory"})
	return nil
}

// Hub is an in-process implementation of push.Transport. Events published
// while disconnected are dropped, like a real stream would do.
type Hub struct {
	listeners  map[uint64]push.Listener
	nextID     uint64
	connected  bool
	token      string
	reconnects int
	mu         sync.RWMutex
	logger     log.Logger
}

// NewHub returns a new in-process push hub.
func NewHub(cfg HubConfig) (*Hub, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Hub{
		listeners: map[uint64]push.Listener{},
		logger:    cfg.Logger,
	}, nil
}

var _ push.Transport = &Hub{}

func (h *Hub) Connect(ctx context.Context, token string) error {
	if token == "" {
		return fmt.Errorf("token is required: %w", model.ErrUnauthorized)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected = true
	h.token = token
	h.logger.Debugf("Push hub connected")
	return nil
}

func (h *Hub) Reconnect(ctx context.Context, token string) error {
	h.mu.Lock()
	h.connected = false
	h.reconnects++
	h.mu.Unlock()

	return h.Connect(ctx, token)
}

func (h *Hub) Disconnect(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected = false
	h.token = ""
	h.logger.Debugf("Push hub disconnected")
	return nil
}

func (h *Hub) Connected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connected
}

// Token returns the token used on the last connection.
func (h *Hub) Token() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

// Reconnects returns the number of reconnections done.
func (h *Hub) Reconnects() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.reconnects
}

func (h *Hub) Subscribe(l push.Listener) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	h.listeners[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.listeners, id)
		})
	}
}

// Listeners returns the number of registered listeners.
func (h *Hub) Listeners() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Publish delivers the event to all the listeners synchronously, in
// registration order. Token errors are delivered even when disconnected.
func (h *Hub) Publish(ctx context.Context, ev model.Event) {
	h.mu.RLock()
	if !h.connected && ev.Type != model.EventTypeTokenError {
		h.mu.RUnlock()
		h.logger.Debugf("Dropping %s event %s, hub is disconnected", ev.Type, ev.ID)
		return
	}

	ids := make([]uint64, 0, len(h.listeners))
	for id := range h.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	ls := make([]push.Listener, 0, len(ids))
	for _, id := range ids {
		ls = append(ls, h.listeners[id])
	}
	h.mu.RUnlock()

	for _, l := range ls {
		l(ctx, ev)
	}
}
