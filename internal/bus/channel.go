package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/dentalstack/aegis/internal/domain"
)

// ChannelBus implements EventBus with in-process fan-out over Go channels.
// Used as the single-node event bus; every subscriber sees every event.
type ChannelBus struct {
	mu          sync.RWMutex
	bufferSize  int
	subscribers map[string]*channelSubscription
	closed      bool
}

type channelSubscription struct {
	id      string
	bus     *ChannelBus
	handler domain.InvalidationHandler
	events  chan *domain.InvalidationEvent
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewChannelBus creates a new channel-based event bus.
func NewChannelBus(bufferSize int) *ChannelBus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &ChannelBus{
		bufferSize:  bufferSize,
		subscribers: make(map[string]*channelSubscription),
	}
}

// Publish broadcasts an invalidation event to every subscriber. Delivery is
// non-blocking: a subscriber with a full buffer misses the event, which is
// acceptable for invalidations since entries also expire by TTL.
func (b *ChannelBus) Publish(ctx context.Context, event *domain.InvalidationEvent) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("bus is closed")
	}
	subs := make([]*channelSubscription, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.events <- event:
		default:
			slog.Warn("invalidation event dropped, subscriber buffer full",
				"event_id", event.ID,
				"subscriber_id", sub.id,
			)
		}
	}

	return nil
}

// Subscribe registers a handler for every invalidation event.
func (b *ChannelBus) Subscribe(ctx context.Context, handler domain.InvalidationHandler) (domain.Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("bus is closed")
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &channelSubscription{
		id:      uuid.New().String(),
		bus:     b,
		handler: handler,
		events:  make(chan *domain.InvalidationEvent, b.bufferSize),
		ctx:     subCtx,
		cancel:  cancel,
	}
	b.subscribers[sub.id] = sub

	go sub.pump()

	return sub, nil
}

// pump delivers buffered events to the handler until the subscription ends.
func (s *channelSubscription) pump() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case event := <-s.events:
			if event == nil {
				return
			}
			if err := s.handler(s.ctx, event); err != nil {
				slog.Warn("invalidation handler failed",
					"event_id", event.ID,
					"error", err,
				)
			}
		}
	}
}

// Ping checks bus health.
func (b *ChannelBus) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("bus is closed")
	}
	return nil
}

// Close closes the event bus and ends all subscriptions.
func (b *ChannelBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, sub := range b.subscribers {
		sub.cancel()
	}
	b.subscribers = make(map[string]*channelSubscription)
	return nil
}

// Unsubscribe stops receiving events and detaches from the bus.
func (s *channelSubscription) Unsubscribe() error {
	s.cancel()

	s.bus.mu.Lock()
	delete(s.bus.subscribers, s.id)
	s.bus.mu.Unlock()
	return nil
}
