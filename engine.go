// Package feedctl is the public API of the feed reconciliation engine. It
// wires the store, the probe client, and the repair components behind one
// handle; the CLI under cmd/feedctl is a thin driver over it.
package feedctl

import (
	"fmt"
	"log/slog"

	"feedctl/internal/probe"
	"feedctl/internal/reconcile"
	"feedctl/internal/storage"
)

// Engine bundles the reconciliation components over one store handle.
type Engine struct {
	store  *storage.Store
	cfg    *storage.Config
	log    *slog.Logger
	prober *probe.Client

	aggregates *reconcile.AggregateRecalculator
	offsets    *reconcile.OffsetReconciler
	health     *reconcile.FeedHealthClassifier
	refresh    *reconcile.RefreshTaskScheduler
	books      *reconcile.Bookkeeper
}

// NewEngine opens the database and builds the components. cfg must not be
// nil; use storage.DefaultConfig as the base.
func NewEngine(cfg *storage.Config, log *slog.Logger) (*Engine, error) {
	store, err := storage.NewStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	proxyURL := ""
	if cfg.Proxy.Enabled {
		proxyURL = cfg.Proxy.URL
	}
	prober, err := probe.NewClient(proxyURL)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create probe client: %w", err)
	}

	return &Engine{
		store:      store,
		cfg:        cfg,
		log:        log,
		prober:     prober,
		aggregates: reconcile.NewAggregateRecalculator(store, log),
		offsets:    reconcile.NewOffsetReconciler(store, log),
		health:     reconcile.NewFeedHealthClassifier(store, prober, cfg, log),
		refresh:    reconcile.NewRefreshTaskScheduler(store, log),
		books:      reconcile.NewBookkeeper(store, log),
	}, nil
}

// Close releases the store.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store exposes the underlying store handle.
func (e *Engine) Store() *storage.Store { return e.store }

// Config returns the engine configuration.
func (e *Engine) Config() *storage.Config { return e.cfg }

// Aggregates returns the derived-counter recalculator.
func (e *Engine) Aggregates() *reconcile.AggregateRecalculator { return e.aggregates }

// Offsets returns the user story offset reconciler.
func (e *Engine) Offsets() *reconcile.OffsetReconciler { return e.offsets }

// Health returns the feed health classifier.
func (e *Engine) Health() *reconcile.FeedHealthClassifier { return e.health }

// Refresh returns the refresh task scheduler.
func (e *Engine) Refresh() *reconcile.RefreshTaskScheduler { return e.refresh }

// Bookkeeper returns the single-field maintenance routines.
func (e *Engine) Bookkeeper() *reconcile.Bookkeeper { return e.books }

// ProxyConfigured reports whether proxied probes are available.
func (e *Engine) ProxyConfigured() bool {
	return e.prober.HasProxy()
}
