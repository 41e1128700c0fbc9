// Package customer provides the per-session metadata cache merchants filter
// and sort on. One record exists per recorded session; derived fields are
// filled in after the session's chunks are aggregated and the stale flag
// tracks whether the cached artifact still reflects every uploaded chunk.
package customer

import (
	"context"

	"github.com/dphuang2/browser-record-app/pkg/filter"
)

// Customer is one session's metadata record. Pointer fields are unset until
// the first aggregation pass computes them.
type Customer struct {
	Shop              string `json:"shop"`
	SessionID         string `json:"id"`
	Browser           string `json:"browser,omitempty"`
	OS                string `json:"os,omitempty"`
	Device            string `json:"device,omitempty"`
	Region            string `json:"region,omitempty"`
	Country           string `json:"country,omitempty"`
	LocationAvailable bool   `json:"locationAvailable"`

	// Stale is true whenever a chunk has been uploaded since the last
	// aggregation pass.
	Stale bool `json:"stale"`

	// Derived fields, computed by aggregation.
	Duration  *float64 `json:"duration,omitempty"`
	NumClicks *int     `json:"numClicks,omitempty"`
	PageLoads *int     `json:"pageLoads,omitempty"`
	StartTime *int64   `json:"startTime,omitempty"`

	// Cart running totals, updated as chunks arrive. Prices are cents.
	LastTotalCartPrice *int64 `json:"lastTotalCartPrice,omitempty"`
	LastItemCount      *int   `json:"lastItemCount,omitempty"`
	MaxTotalCartPrice  *int64 `json:"maxTotalCartPrice,omitempty"`
	MaxItemCount       *int   `json:"maxItemCount,omitempty"`
}

// Derived holds the metric fields recomputed by an aggregation pass.
type Derived struct {
	Duration  float64
	NumClicks int
	PageLoads int
	StartTime int64
}

// Stats are shop-wide maxima used to bound the merchant UI filter sliders.
type Stats struct {
	LongestDuration   float64 `json:"longestDuration"`
	MaxTotalCartPrice int64   `json:"maxTotalCartPrice"`
	MaxItemCount      int     `json:"maxItemCount"`
}

// Store persists customer metadata records.
type Store interface {
	// MarkStale upserts a record on chunk upload: identity and cart fields
	// from the upload are merged in and the stale flag is raised. Derived
	// fields from a previous aggregation are left in place.
	MarkStale(ctx context.Context, c *Customer) error

	// MarkFresh stores freshly computed derived fields and lowers the stale
	// flag. Called only after a successful aggregation pass.
	MarkFresh(ctx context.Context, shop, sessionID string, d Derived) error

	// Get retrieves one record. Returns nil, nil if not found.
	Get(ctx context.Context, shop, sessionID string) (*Customer, error)

	// Query returns records for a shop matching the spec's query-form
	// conditions, newest session first, capped at the spec's limit.
	Query(ctx context.Context, shop string, spec *filter.Spec) ([]*Customer, error)

	// Stats returns shop-wide maxima. Returns nil, nil when the shop has no
	// sessions.
	Stats(ctx context.Context, shop string) (*Stats, error)
}
