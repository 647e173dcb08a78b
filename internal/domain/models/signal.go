package models

import "time"

// SignalType identifies a desired position change emitted by strategy code.
type SignalType string

const (
	SignalLongEntry  SignalType = "long_entry"
	SignalLongExit   SignalType = "long_exit"
	SignalShortEntry SignalType = "short_entry"
	SignalShortExit  SignalType = "short_exit"
)

// Valid reports whether t is one of the four emission primitives.
func (t SignalType) Valid() bool {
	switch t {
	case SignalLongEntry, SignalLongExit, SignalShortEntry, SignalShortExit:
		return true
	}
	return false
}

// Signal is one (type, ordinal) entry on an instance's append-only signal
// list. Ordinals are cumulative across the instance lifetime, not per cycle.
type Signal struct {
	Type    SignalType `json:"type"`
	Ordinal int        `json:"ordinal"`
}

// Position is the runtime position state of a strategy instance.
type Position int

const (
	PositionFlat Position = iota
	PositionLong
	PositionShort
)

func (p Position) String() string {
	switch p {
	case PositionLong:
		return "long"
	case PositionShort:
		return "short"
	default:
		return "flat"
	}
}

// TradeEvent records one dispatched (or attempted) order for downstream
// consumers. The gateway response is opaque and carried verbatim.
type TradeEvent struct {
	InstanceID int64      `json:"instance_id"`
	WebhookID  string     `json:"webhook_id,omitempty"`
	Symbol     string     `json:"symbol"`
	Signal     SignalType `json:"signal"`
	Action     string     `json:"action"`
	Size       float64    `json:"size"`
	Position   string     `json:"position"`
	Response   string     `json:"response,omitempty"`
	Error      string     `json:"error,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}
