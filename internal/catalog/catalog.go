// Package catalog ingests provider listings into the local event catalog.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/leduong/EPlusTV/internal/metrics"
	"github.com/leduong/EPlusTV/internal/models"
	"github.com/leduong/EPlusTV/internal/observability"
	"github.com/leduong/EPlusTV/internal/provider"
	"github.com/leduong/EPlusTV/internal/repository"
)

// DefaultProviderTimeout bounds a single GetSchedule call.
const DefaultProviderTimeout = 60 * time.Second

// IngestResult summarizes one ingestion round.
type IngestResult struct {
	Fetched  map[string]int   `json:"fetched"`
	Inserted map[string]int64 `json:"inserted"`
	Invalid  int              `json:"invalid"`
	Failed   []string         `json:"failed,omitempty"`
}

// Catalog owns the local entry table.
type Catalog struct {
	entries  repository.EntryRepository
	registry *provider.Registry
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates a Catalog.
func New(entries repository.EntryRepository, registry *provider.Registry, timeout time.Duration) *Catalog {
	if timeout <= 0 {
		timeout = DefaultProviderTimeout
	}
	return &Catalog{
		entries:  entries,
		registry: registry,
		timeout:  timeout,
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (c *Catalog) WithLogger(logger *slog.Logger) *Catalog {
	c.logger = observability.WithComponent(logger, "catalog")
	return c
}

// Ingest fetches every adapter's listing concurrently and inserts entries
// that are not yet present. A failing provider is logged and skipped.
func (c *Catalog) Ingest(ctx context.Context) (result *IngestResult, err error) {
	defer observability.TimedOperationWithError(ctx, c.logger, "ingest", &err)()

	result = &IngestResult{
		Fetched:  make(map[string]int),
		Inserted: make(map[string]int64),
	}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range c.registry.All() {
		a := a
		g.Go(func() error {
			key := a.Key()
			logger := observability.WithProvider(c.logger, key)

			callCtx, cancel := context.WithTimeout(gctx, c.timeout)
			listing, err := a.GetSchedule(callCtx)
			cancel()
			if err != nil {
				metrics.IngestFailures.WithLabelValues(key).Inc()
				observability.WithError(logger, err).Warn("fetching schedule failed")
				mu.Lock()
				result.Failed = append(result.Failed, key)
				mu.Unlock()
				return nil
			}

			valid := make([]*models.Entry, 0, len(listing))
			invalid := 0
			for i := range listing {
				e := &listing[i]
				if err := e.Validate(); err != nil {
					invalid++
					logger.Debug("skipping invalid entry", slog.String("id", e.ID), slog.String("reason", err.Error()))
					continue
				}
				// channel assignment is local state
				e.Channel = nil
				valid = append(valid, e)
			}

			inserted, err := c.entries.InsertIfAbsent(gctx, valid)
			if err != nil {
				metrics.IngestFailures.WithLabelValues(key).Inc()
				observability.WithError(logger, err).Error("storing schedule failed")
				mu.Lock()
				result.Failed = append(result.Failed, key)
				mu.Unlock()
				return nil
			}
			metrics.IngestEntries.WithLabelValues(key).Add(float64(inserted))

			mu.Lock()
			result.Fetched[key] = len(listing)
			result.Inserted[key] = inserted
			result.Invalid += invalid
			mu.Unlock()

			logger.Info("schedule ingested",
				slog.Int("fetched", len(listing)),
				slog.Int64("inserted", inserted),
			)
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return result, err
	}
	if err = ctx.Err(); err != nil {
		return result, fmt.Errorf("ingestion cancelled: %w", err)
	}
	return result, nil
}

// Prune deletes entries that ended at or before now.
func (c *Catalog) Prune(ctx context.Context, now time.Time) (int64, error) {
	n, err := c.entries.DeleteExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("pruning catalog: %w", err)
	}
	if n > 0 {
		c.logger.Debug("pruned expired entries", slog.Int64("count", n))
	}
	return n, nil
}

// Clear empties the catalog.
func (c *Catalog) Clear(ctx context.Context) (int64, error) {
	n, err := c.entries.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("clearing catalog: %w", err)
	}
	c.logger.Info("catalog cleared", slog.Int64("removed", n))
	return n, nil
}
