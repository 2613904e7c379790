package helmbridge

import "time"

// DataPoint is the last known value pushed by the server for a path/source
// pair. Written only by the inbound delta handler; read-only to consumers.
type DataPoint struct {
	Path      string    `json:"path"`             // e.g. "steering.autopilot.state"
	Source    string    `json:"source,omitempty"` // device that produced the value
	Value     any       `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// DisplayValue is a DataPoint prepared for presentation: the raw value plus
// an optional unit-converted rendering.
type DisplayValue struct {
	Path      string    `json:"path"`
	Source    string    `json:"source,omitempty"`
	Value     any       `json:"value"`
	Display   *float64  `json:"display,omitempty"` // converted value, numeric paths only
	Unit      string    `json:"unit,omitempty"`    // display unit, e.g. "kn"
	Timestamp time.Time `json:"timestamp"`
	Stale     bool      `json:"stale"`
}

// ControlEvent is a single audit log entry: a command sent, its outcome, or a
// connection-level occurrence.
type ControlEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`        // COMMAND | VERIFIED | UNCONFIRMED | SUPERSEDED | FAILED | CONNECTION
	Description string    `json:"description"` // human-readable
	Metadata    any       `json:"metadata,omitempty"`
}

type User struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // don't expose hash
}
