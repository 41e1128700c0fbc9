package replay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dphuang2/browser-record-app/pkg/customer"
	"github.com/dphuang2/browser-record-app/pkg/filter"
)

// Replay is one listed session: its metadata record plus a signed URL for the
// combined artifact.
type Replay struct {
	customer.Customer
	URL string `json:"url"`
}

// Listing is the merchant-facing result of a replay query. The maxima bound
// the UI filter sliders.
type Listing struct {
	Customers         []Replay `json:"customers"`
	LongestDuration   float64  `json:"longestDuration"`
	MaxTotalCartPrice int64    `json:"maxTotalCartPrice"`
	MaxItemCount      int      `json:"maxItemCount"`
}

// Coordinator answers replay queries by combining the metadata cache with
// per-session aggregation.
type Coordinator struct {
	customers  customer.Store
	aggregator *Aggregator
	logger     *slog.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(customers customer.Store, aggregator *Aggregator, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{customers: customers, aggregator: aggregator, logger: logger}
}

// ListReplays returns every replay of the shop matching the filter spec,
// newest session first. A nil listing with a nil error means the shop has no
// matching replays. A candidate whose aggregation fails is dropped from the
// listing rather than failing its siblings.
func (c *Coordinator) ListReplays(ctx context.Context, shop string, spec *filter.Spec) (*Listing, error) {
	var (
		wg         sync.WaitGroup
		stats      *customer.Stats
		candidates []*customer.Customer
		statsErr   error
		queryErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		stats, statsErr = c.customers.Stats(ctx, shop)
	}()
	go func() {
		defer wg.Done()
		candidates, queryErr = c.customers.Query(ctx, shop, spec)
	}()
	wg.Wait()

	if statsErr != nil {
		return nil, fmt.Errorf("fetching shop stats: %w", statsErr)
	}
	if queryErr != nil {
		return nil, fmt.Errorf("querying sessions: %w", queryErr)
	}
	if stats == nil || len(candidates) == 0 {
		return nil, nil //nolint:nilnil // empty shop is a valid no-content result
	}

	urls := make([]string, len(candidates))
	wg.Add(len(candidates))
	for i, cand := range candidates {
		go func() {
			defer wg.Done()
			url, err := c.aggregator.Aggregate(ctx, cand, spec)
			if err != nil {
				c.logger.Warn("replay aggregation failed, dropping session",
					"shop", shop, "session", cand.SessionID, "error", err)
				return
			}
			urls[i] = url
		}()
	}
	wg.Wait()

	var replays []Replay
	for i, cand := range candidates {
		if urls[i] == "" {
			continue
		}
		replays = append(replays, Replay{Customer: *cand, URL: urls[i]})
	}
	if len(replays) == 0 {
		return nil, nil //nolint:nilnil // every candidate filtered out or unavailable
	}

	return &Listing{
		Customers:         replays,
		LongestDuration:   stats.LongestDuration,
		MaxTotalCartPrice: stats.MaxTotalCartPrice,
		MaxItemCount:      stats.MaxItemCount,
	}, nil
}

// CustomerReplay returns the signed URL for a single session's replay, or an
// empty string when none is available.
func (c *Coordinator) CustomerReplay(ctx context.Context, shop, sessionID string) (string, error) {
	cand, err := c.customers.Get(ctx, shop, sessionID)
	if err != nil {
		return "", fmt.Errorf("fetching session metadata: %w", err)
	}
	if cand == nil {
		return "", nil
	}
	return c.aggregator.Aggregate(ctx, cand, nil)
}
