// Package recording defines the wire shape of DOM-recording events and
// classifiers used for session metric counting.
package recording

import "encoding/json"

// Event type codes emitted by the recording client.
const (
	EventTypeMeta                = 2
	EventTypeIncrementalSnapshot = 3
)

// Incremental snapshot source codes.
const (
	SourceMouseInteraction = 2
)

// Mouse interaction sub-type codes.
const (
	InteractionClick      = 2
	InteractionTouchStart = 7
)

// Event is a single recorded DOM event. Data carries the event-specific
// body untouched so that merged sessions round-trip byte-for-byte.
type Event struct {
	Type      int             `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// eventData is the subset of the data payload the classifiers care about.
type eventData struct {
	Source int `json:"source"`
	Type   int `json:"type"`
}

// IsClick reports whether the event is a click or touch-start interaction.
// Events with a missing or malformed data payload never match.
func IsClick(e Event) bool {
	if e.Type != EventTypeIncrementalSnapshot || len(e.Data) == 0 {
		return false
	}
	var d eventData
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return false
	}
	return d.Source == SourceMouseInteraction &&
		(d.Type == InteractionClick || d.Type == InteractionTouchStart)
}

// IsPageLoad reports whether the event is a meta/navigation event.
func IsPageLoad(e Event) bool {
	return e.Type == EventTypeMeta
}

// CountClicks returns the number of click events in the slice.
func CountClicks(events []Event) int {
	n := 0
	for _, e := range events {
		if IsClick(e) {
			n++
		}
	}
	return n
}

// CountPageLoads returns the number of page-load events in the slice.
func CountPageLoads(events []Event) int {
	n := 0
	for _, e := range events {
		if IsPageLoad(e) {
			n++
		}
	}
	return n
}
