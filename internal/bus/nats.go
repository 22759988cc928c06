package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/dentalstack/aegis/internal/domain"
)

// NATSBus implements EventBus over a single NATS broadcast subject. Used as
// the cluster event bus; events are JSON-encoded InvalidationEvents and every
// connected node sees every one.
type NATSBus struct {
	mu            sync.Mutex
	conn          *nats.Conn
	subscriptions map[string]*natsSubscription
}

type natsSubscription struct {
	id  string
	sub *nats.Subscription
}

// NewNATSBus connects to NATS with reconnect resilience. The initial connect
// is retried in the background, so a node can come up before its broker.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	url := cfg.NATSUrl
	if url == "" {
		url = nats.DefaultURL
	}
	maxReconnects := cfg.NATSMaxReconnects
	if maxReconnects == 0 {
		maxReconnects = 10
	}
	reconnectWait := time.Duration(cfg.NATSReconnectWait) * time.Second
	if reconnectWait == 0 {
		reconnectWait = 5 * time.Second
	}

	opts := []nats.Option{
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(maxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("NATS disconnected",
				"error", err,
				"will_reconnect", !nc.IsClosed(),
			)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			slog.Info("NATS connection closed")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			slog.Error("NATS error", "error", err, "subject", sub.Subject)
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	slog.Info("NATS bus ready",
		"url", url,
		"subject", domain.SubjectInvalidate,
	)

	return &NATSBus{
		conn:          conn,
		subscriptions: make(map[string]*natsSubscription),
	}, nil
}

// Publish broadcasts an invalidation event on the shared subject.
func (b *NATSBus) Publish(ctx context.Context, event *domain.InvalidationEvent) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation event: %w", err)
	}
	return b.conn.Publish(domain.SubjectInvalidate, data)
}

// Subscribe registers a handler for every invalidation event on the subject.
func (b *NATSBus) Subscribe(ctx context.Context, handler domain.InvalidationHandler) (domain.Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("handler is required")
	}

	natsSub, err := b.conn.Subscribe(domain.SubjectInvalidate, func(m *nats.Msg) {
		var event domain.InvalidationEvent
		if err := json.Unmarshal(m.Data, &event); err != nil {
			slog.Error("failed to unmarshal invalidation event",
				"subject", m.Subject,
				"error", err,
			)
			return
		}

		if err := handler(ctx, &event); err != nil {
			slog.Warn("invalidation handler failed",
				"event_id", event.ID,
				"error", err,
			)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	sub := &natsSubscription{
		id:  uuid.New().String(),
		sub: natsSub,
	}

	b.mu.Lock()
	b.subscriptions[sub.id] = sub
	b.mu.Unlock()

	return sub, nil
}

// Ping checks NATS connectivity.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("NATS not connected")
	}
	return b.conn.FlushWithContext(ctx)
}

// Close closes the NATS connection.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subscriptions {
		_ = sub.sub.Unsubscribe()
	}
	b.subscriptions = make(map[string]*natsSubscription)

	b.conn.Close()
	return nil
}

// Unsubscribe removes the subscription.
func (s *natsSubscription) Unsubscribe() error {
	return s.sub.Unsubscribe()
}
