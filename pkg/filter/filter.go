// Package filter evaluates declarative session filters. Each recognized
// filter key has two equivalent evaluators: a query form that translates into
// SQL conditions for the metadata store, and a predicate form applied to a
// fully materialized session. A spec with all defaults restricts nothing.
package filter

import (
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// Recognized filter keys.
const (
	KeyDuration       = "durationFilter"
	KeyDevice         = "deviceFilter"
	KeyTotalCartPrice = "totalCartPriceFilter"
	KeyItemCount      = "itemCountFilter"
	KeyDateRange      = "dateRangeFilter"
	KeyLimit          = "numCustomersToShow"
)

// DefaultLimit caps how many replays a listing returns when the spec does
// not say otherwise.
const DefaultLimit = 50

// Device filter values.
const (
	DeviceDesktop = "desktop"
	DeviceMobile  = "mobile"
)

// Range is an inclusive [Min, Max] bound.
type Range struct {
	Min float64
	Max float64
}

func (r *Range) contains(v float64) bool {
	return r.Min <= v && v <= r.Max
}

// Spec is a parsed filter set. Nil fields mean "no restriction".
type Spec struct {
	// Duration bounds in seconds.
	Duration *Range
	// Device is an OR-set of device classes.
	Device []string
	// TotalCartPrice bounds in whole currency units. Stored values are cents.
	TotalCartPrice *Range
	// ItemCount bounds on cart item count.
	ItemCount *Range
	// DateRange bounds in ms epoch, compared against the first-event timestamp.
	DateRange *Range
	// Limit caps the number of returned sessions. Not a content filter.
	Limit uint64
}

// Default returns a spec that restricts nothing.
func Default() *Spec {
	return &Spec{Limit: DefaultLimit}
}

// Parse decodes a JSON filter map. Unknown keys are rejected rather than
// silently skipped. An empty input yields the default spec.
func Parse(data []byte) (*Spec, error) {
	spec := Default()
	if len(data) == 0 {
		return spec, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing filter spec: %w", err)
	}

	for key, value := range raw {
		if err := spec.set(key, value); err != nil {
			return nil, err
		}
	}
	return spec, nil
}

func (s *Spec) set(key string, value json.RawMessage) error {
	switch key {
	case KeyDuration:
		return parseRange(key, value, &s.Duration)
	case KeyTotalCartPrice:
		return parseRange(key, value, &s.TotalCartPrice)
	case KeyItemCount:
		return parseRange(key, value, &s.ItemCount)
	case KeyDateRange:
		return parseRange(key, value, &s.DateRange)
	case KeyDevice:
		if err := json.Unmarshal(value, &s.Device); err != nil {
			return fmt.Errorf("filter %s: %w", key, err)
		}
		for _, d := range s.Device {
			if d != DeviceDesktop && d != DeviceMobile {
				return fmt.Errorf("filter %s: unknown device %q", key, d)
			}
		}
		return nil
	case KeyLimit:
		if err := json.Unmarshal(value, &s.Limit); err != nil {
			return fmt.Errorf("filter %s: %w", key, err)
		}
		if s.Limit == 0 {
			s.Limit = DefaultLimit
		}
		return nil
	default:
		return fmt.Errorf("unknown filter key %q", key)
	}
}

func parseRange(key string, value json.RawMessage, dst **Range) error {
	var bounds []float64
	if err := json.Unmarshal(value, &bounds); err != nil {
		return fmt.Errorf("filter %s: %w", key, err)
	}
	if len(bounds) != 2 {
		return fmt.Errorf("filter %s: want [min, max], got %d bounds", key, len(bounds))
	}
	if bounds[0] > bounds[1] {
		return fmt.Errorf("filter %s: min %v exceeds max %v", key, bounds[0], bounds[1])
	}
	*dst = &Range{Min: bounds[0], Max: bounds[1]}
	return nil
}

// Metadata store columns the query form targets.
const (
	colDuration  = "duration"
	colDevice    = "device"
	colCartPrice = "last_total_cart_price"
	colItemCount = "last_item_count"
	colStartTime = "start_time"
)

// Conditions returns the query-form SQL conditions for the spec. Range
// filters pass rows whose column is still NULL: a session that has not been
// aggregated yet must not be excluded by a bound on a derived field.
func (s *Spec) Conditions() []sq.Sqlizer {
	var conds []sq.Sqlizer
	if s.Duration != nil {
		conds = append(conds, rangeCondition(colDuration, *s.Duration))
	}
	if len(s.Device) > 0 {
		conds = append(conds, sq.Eq{colDevice: s.Device})
	}
	if s.TotalCartPrice != nil {
		// Filter bounds are whole currency units, the column is cents.
		conds = append(conds, rangeCondition(colCartPrice, Range{
			Min: s.TotalCartPrice.Min * 100,
			Max: s.TotalCartPrice.Max * 100,
		}))
	}
	if s.ItemCount != nil {
		conds = append(conds, rangeCondition(colItemCount, *s.ItemCount))
	}
	if s.DateRange != nil {
		conds = append(conds, rangeCondition(colStartTime, *s.DateRange))
	}
	return conds
}

func rangeCondition(column string, r Range) sq.Sqlizer {
	return sq.Or{
		sq.Eq{column: nil},
		sq.And{
			sq.GtOrEq{column: r.Min},
			sq.LtOrEq{column: r.Max},
		},
	}
}

// Subject is the view of a materialized session the predicate form evaluates.
type Subject struct {
	Duration       float64
	Device         string
	TotalCartPrice int64 // cents
	ItemCount      int
	Timestamp      int64 // ms epoch of first event
}

// Match is the predicate form: it applies the same semantics as Conditions
// directly to an in-memory session. The limit is ignored here since it caps
// result counts rather than filtering content.
func (s *Spec) Match(subj Subject) bool {
	if s.Duration != nil && !s.Duration.contains(subj.Duration) {
		return false
	}
	if len(s.Device) > 0 {
		found := false
		for _, d := range s.Device {
			if d == subj.Device {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if s.TotalCartPrice != nil {
		cents := Range{Min: s.TotalCartPrice.Min * 100, Max: s.TotalCartPrice.Max * 100}
		if !cents.contains(float64(subj.TotalCartPrice)) {
			return false
		}
	}
	if s.ItemCount != nil && !s.ItemCount.contains(float64(subj.ItemCount)) {
		return false
	}
	if s.DateRange != nil && !s.DateRange.contains(float64(subj.Timestamp)) {
		return false
	}
	return true
}
