// Package worker keeps per-node caches coherent: it subscribes to the
// invalidation broadcast and applies remote deletions to the local store.
package worker

import (
	"context"
	"log/slog"

	"github.com/dentalstack/aegis/internal/domain"
)

// Worker applies cache-invalidation events from the event bus to the local
// backing store.
type Worker struct {
	bus   domain.EventBus
	store domain.CacheStore

	// nodeID identifies the local service instance; events it originated are
	// already applied locally and get skipped.
	nodeID string

	// tenants restricts which organizations' events are applied. Empty means
	// every event applies.
	tenants map[string]bool

	sub    domain.Subscription
	ctx    context.Context
	cancel context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs optionally restricts the worker to a set of organizations.
	// Invalidations are broadcast to every node; an empty list applies them
	// all, which is the right default for nodes serving every tenant.
	TenantIDs []string
}

// NewWorker creates an invalidation worker.
func NewWorker(bus domain.EventBus, store domain.CacheStore, nodeID string) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		store:  store,
		nodeID: nodeID,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the invalidation broadcast.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) > 0 {
		w.tenants = make(map[string]bool, len(cfg.TenantIDs))
		for _, id := range cfg.TenantIDs {
			w.tenants[id] = true
		}
	}

	sub, err := w.bus.Subscribe(w.ctx, w.handleEvent)
	if err != nil {
		slog.Error("failed to subscribe invalidation worker", "error", err)
		return err
	}
	w.sub = sub

	slog.Info("invalidation worker started",
		"tenant_filter", len(cfg.TenantIDs),
	)
	return nil
}

// handleEvent applies one invalidation event to the local store.
func (w *Worker) handleEvent(ctx context.Context, event *domain.InvalidationEvent) error {
	// This node already invalidated locally when it published.
	if event.Origin == w.nodeID {
		return nil
	}

	// Global events (nil tenant) always apply; tenant events pass the filter
	// when no filter is set or the organization is listed.
	if w.tenants != nil && event.Tenant != nil && !w.tenants[event.Tenant.OrganizationID] {
		return nil
	}

	switch {
	case event.Key != "":
		scoped := domain.ScopeKey(event.Key, event.Tenant)
		if _, err := w.store.Delete(ctx, scoped); err != nil {
			slog.Warn("failed to apply key invalidation", "key", scoped, "error", err)
			return err
		}
		slog.Debug("applied key invalidation", "key", scoped, "origin", event.Origin)

	case event.Pattern != "":
		return w.deleteMatching(ctx, domain.ScopeKey(event.Pattern, event.Tenant), event.Origin)

	default:
		return w.deleteMatching(ctx, domain.ScopePrefix(event.Tenant)+"*", event.Origin)
	}

	return nil
}

// deleteMatching drops every local entry matching the scoped glob.
func (w *Worker) deleteMatching(ctx context.Context, pattern, origin string) error {
	keys, err := w.store.Keys(ctx, pattern)
	if err != nil {
		slog.Warn("failed to scan invalidation pattern", "pattern", pattern, "error", err)
		return err
	}
	if len(keys) > 0 {
		if _, err := w.store.Delete(ctx, keys...); err != nil {
			slog.Warn("failed to apply pattern invalidation", "pattern", pattern, "error", err)
			return err
		}
	}
	slog.Debug("applied pattern invalidation", "pattern", pattern, "keys", len(keys), "origin", origin)
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	if w.sub != nil {
		if err := w.sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe", "error", err)
		}
		w.sub = nil
	}

	slog.Info("invalidation worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int `json:"subscriptionCount"`
	TenantFilterSize  int `json:"tenantFilterSize"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	count := 0
	if w.sub != nil {
		count = 1
	}
	return Stats{
		SubscriptionCount: count,
		TenantFilterSize:  len(w.tenants),
	}
}
