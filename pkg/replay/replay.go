// Package replay reconstructs complete session replays from uploaded chunks.
// The aggregator merges a session's chunks into one ordered event stream,
// persists the combined artifact and refreshes the metadata cache; the
// coordinator fans that out across every session a merchant's filters match.
package replay

import (
	"github.com/dphuang2/browser-record-app/pkg/customer"
	"github.com/dphuang2/browser-record-app/pkg/filter"
	"github.com/dphuang2/browser-record-app/pkg/recording"
)

// MergedSession is the canonical reconstructed session: every uploaded event
// in chunk order, derived metrics, and the customer metadata merged in.
type MergedSession struct {
	Shop              string `json:"shop"`
	SessionID         string `json:"id"`
	Browser           string `json:"browser,omitempty"`
	OS                string `json:"os,omitempty"`
	Device            string `json:"device,omitempty"`
	Region            string `json:"region,omitempty"`
	Country           string `json:"country,omitempty"`
	LocationAvailable bool   `json:"locationAvailable"`

	// Duration is seconds between the first and last event. Zero when the
	// session holds fewer than two events.
	Duration  float64 `json:"duration"`
	NumClicks int     `json:"numClicks"`
	PageLoads int     `json:"pageLoads"`
	// Timestamp is the ms epoch of the first event.
	Timestamp int64 `json:"timestamp"`

	// TotalCartPrice is cents.
	TotalCartPrice int64 `json:"totalCartPrice"`
	ItemCount      int   `json:"itemCount"`

	Events []recording.Event `json:"events"`
}

// subject exposes the merged session to the filter predicate form.
func (m *MergedSession) subject() filter.Subject {
	return filter.Subject{
		Duration:       m.Duration,
		Device:         m.Device,
		TotalCartPrice: m.TotalCartPrice,
		ItemCount:      m.ItemCount,
		Timestamp:      m.Timestamp,
	}
}

// merge builds a MergedSession from the full event stream and the session's
// cached metadata.
func merge(c *customer.Customer, events []recording.Event) *MergedSession {
	m := &MergedSession{
		Shop:              c.Shop,
		SessionID:         c.SessionID,
		Browser:           c.Browser,
		OS:                c.OS,
		Device:            c.Device,
		Region:            c.Region,
		Country:           c.Country,
		LocationAvailable: c.LocationAvailable,
		NumClicks:         recording.CountClicks(events),
		PageLoads:         recording.CountPageLoads(events),
		Events:            events,
	}
	if len(events) > 0 {
		m.Timestamp = events[0].Timestamp
	}
	if len(events) >= 2 {
		m.Duration = float64(events[len(events)-1].Timestamp-events[0].Timestamp) / 1000
	}
	if c.LastTotalCartPrice != nil {
		m.TotalCartPrice = *c.LastTotalCartPrice
	}
	if c.LastItemCount != nil {
		m.ItemCount = *c.LastItemCount
	}
	return m
}

// derived extracts the metric fields written back to the metadata cache.
func (m *MergedSession) derived() customer.Derived {
	return customer.Derived{
		Duration:  m.Duration,
		NumClicks: m.NumClicks,
		PageLoads: m.PageLoads,
		StartTime: m.Timestamp,
	}
}
