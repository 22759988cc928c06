package domain

import (
	"context"
)

// EventBus broadcasts cache-invalidation events between Aegis nodes.
//
// Invalidations are broadcast, not routed per tenant: every node subscribes
// once and applies (or filters) what it receives. Tenant isolation lives in
// the scoped keys an event names, not in the transport, so a node that joins
// late or serves every organization needs no subject bookkeeping.
type EventBus interface {
	// Publish broadcasts an invalidation event to all nodes.
	Publish(ctx context.Context, event *InvalidationEvent) error

	// Subscribe registers a handler for every invalidation event on the bus.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, handler InvalidationHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// InvalidationHandler processes incoming invalidation events.
type InvalidationHandler func(ctx context.Context, event *InvalidationEvent) error

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving events.
	Unsubscribe() error
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string

	// Channel settings (single node)
	ChannelBufferSize int

	// NATS settings (cluster)
	NATSUrl           string
	NATSToken         string
	NATSMaxReconnects int
	NATSReconnectWait int // seconds
}

// SubjectInvalidate is the NATS subject invalidation events are broadcast on.
const SubjectInvalidate = "aegis.cache.invalidate"

// InvalidationEvent tells peer nodes to drop cached entries. Exactly one of
// Key, Pattern, or neither (tenant-wide) describes the scope:
//
//   - Key set: drop the single tenant-scoped entry for Key
//   - Pattern set: drop tenant-scoped entries matching the glob
//   - neither: drop everything under the tenant's prefix
type InvalidationEvent struct {
	// ID is stamped by the bus on publish.
	ID      string         `json:"id,omitempty"`
	Tenant  *TenantContext `json:"tenant,omitempty"`
	Key     string         `json:"key,omitempty"`
	Pattern string         `json:"pattern,omitempty"`
	Origin  string         `json:"origin"`
}
