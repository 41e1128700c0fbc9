package customer

import (
	"context"
	"sort"
	"sync"

	"github.com/dphuang2/browser-record-app/pkg/filter"
)

// MemoryStore implements Store using an in-memory map. It backs unit tests
// and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Customer // keyed by shop + "/" + sessionID
}

// NewMemoryStore creates a new in-memory customer store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Customer)}
}

func recordKey(shop, sessionID string) string {
	return shop + "/" + sessionID
}

// MarkStale upserts a record with the stale flag raised.
func (s *MemoryStore) MarkStale(_ context.Context, c *Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(c.Shop, c.SessionID)
	existing, ok := s.records[key]
	if !ok {
		clone := *c
		clone.Stale = true
		clone.MaxTotalCartPrice = maxInt64Ptr(clone.MaxTotalCartPrice, clone.LastTotalCartPrice)
		clone.MaxItemCount = maxIntPtr(clone.MaxItemCount, clone.LastItemCount)
		s.records[key] = &clone
		return nil
	}

	existing.Stale = true
	existing.Browser = c.Browser
	existing.OS = c.OS
	existing.Device = c.Device
	existing.Region = c.Region
	existing.Country = c.Country
	existing.LocationAvailable = c.LocationAvailable
	if c.LastTotalCartPrice != nil {
		existing.LastTotalCartPrice = c.LastTotalCartPrice
		existing.MaxTotalCartPrice = maxInt64Ptr(existing.MaxTotalCartPrice, c.LastTotalCartPrice)
	}
	if c.LastItemCount != nil {
		existing.LastItemCount = c.LastItemCount
		existing.MaxItemCount = maxIntPtr(existing.MaxItemCount, c.LastItemCount)
	}
	return nil
}

// MarkFresh stores derived fields and lowers the stale flag.
func (s *MemoryStore) MarkFresh(_ context.Context, shop, sessionID string, d Derived) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.records[recordKey(shop, sessionID)]
	if !ok {
		return nil
	}
	existing.Stale = false
	existing.Duration = &d.Duration
	existing.NumClicks = &d.NumClicks
	existing.PageLoads = &d.PageLoads
	existing.StartTime = &d.StartTime
	return nil
}

// Get retrieves one record. Returns nil, nil if not found.
func (s *MemoryStore) Get(_ context.Context, shop, sessionID string) (*Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.records[recordKey(shop, sessionID)]
	if !ok {
		return nil, nil //nolint:nilnil // Store interface specifies nil,nil for not-found
	}
	clone := *c
	return &clone, nil
}

// Query returns matching records, newest session first, capped at the limit.
// Range filters pass records whose derived field is still unset, mirroring
// the SQL query form.
func (s *MemoryStore) Query(_ context.Context, shop string, spec *filter.Spec) ([]*Customer, error) {
	if spec == nil {
		spec = filter.Default()
	}

	s.mu.RLock()
	var matched []*Customer
	for _, c := range s.records {
		if c.Shop != shop || !matchRecord(c, spec) {
			continue
		}
		clone := *c
		matched = append(matched, &clone)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return startTime(matched[i]) > startTime(matched[j])
	})
	if spec.Limit > 0 && uint64(len(matched)) > spec.Limit {
		matched = matched[:spec.Limit]
	}
	return matched, nil
}

// Stats returns shop-wide maxima, nil when the shop has no sessions.
func (s *MemoryStore) Stats(_ context.Context, shop string) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stats *Stats
	for _, c := range s.records {
		if c.Shop != shop {
			continue
		}
		if stats == nil {
			stats = &Stats{}
		}
		if c.Duration != nil && *c.Duration > stats.LongestDuration {
			stats.LongestDuration = *c.Duration
		}
		if c.LastTotalCartPrice != nil && *c.LastTotalCartPrice > stats.MaxTotalCartPrice {
			stats.MaxTotalCartPrice = *c.LastTotalCartPrice
		}
		if c.LastItemCount != nil && *c.LastItemCount > stats.MaxItemCount {
			stats.MaxItemCount = *c.LastItemCount
		}
	}
	return stats, nil
}

func matchRecord(c *Customer, spec *filter.Spec) bool {
	if !nullableInRange(spec.Duration, c.Duration) {
		return false
	}
	if len(spec.Device) > 0 {
		found := false
		for _, d := range spec.Device {
			if d == c.Device {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if spec.TotalCartPrice != nil {
		cents := filter.Range{Min: spec.TotalCartPrice.Min * 100, Max: spec.TotalCartPrice.Max * 100}
		if !nullableInRange(&cents, int64Float(c.LastTotalCartPrice)) {
			return false
		}
	}
	if !nullableInRange(spec.ItemCount, intFloat(c.LastItemCount)) {
		return false
	}
	if !nullableInRange(spec.DateRange, int64Float(c.StartTime)) {
		return false
	}
	return true
}

// nullableInRange applies the missing-field-passes rule: an unset value
// always satisfies a range filter.
func nullableInRange(r *filter.Range, v *float64) bool {
	if r == nil || v == nil {
		return true
	}
	return r.Min <= *v && *v <= r.Max
}

func startTime(c *Customer) int64 {
	if c.StartTime == nil {
		return 0
	}
	return *c.StartTime
}

func int64Float(v *int64) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

func intFloat(v *int) *float64 {
	if v == nil {
		return nil
	}
	f := float64(*v)
	return &f
}

func maxInt64Ptr(current, candidate *int64) *int64 {
	if candidate == nil {
		return current
	}
	if current == nil || *candidate > *current {
		v := *candidate
		return &v
	}
	return current
}

func maxIntPtr(current, candidate *int) *int {
	if candidate == nil {
		return current
	}
	if current == nil || *candidate > *current {
		v := *candidate
		return &v
	}
	return current
}

// Verify interface compliance.
var _ Store = (*MemoryStore)(nil)
