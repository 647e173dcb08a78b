package models

// Instance is the durable configuration of one strategy instance. The
// schema is owned by the excluded persistence layer; this is the shape
// the runtime consumes.
type Instance struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"user_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	Symbol    string `json:"symbol"`
	Exchange  string `json:"exchange"`
	Token     string `json:"token"`
	Timeframe string `json:"timeframe"`

	// Script is the user strategy source executed each cycle.
	Script     string         `json:"script"`
	Parameters map[string]any `json:"parameters,omitempty"`

	LongEntryAction  string `json:"long_entry_action"`
	LongExitAction   string `json:"long_exit_action"`
	ShortEntryAction string `json:"short_entry_action"`
	ShortExitAction  string `json:"short_exit_action"`

	PositionSize float64 `json:"position_size"`
	Intraday     bool    `json:"intraday"`

	Active    bool   `json:"active"`
	WebhookID string `json:"webhook_id,omitempty"`
}

// ExchangeType resolves the instance exchange name to its feed code.
// Unknown exchanges default to NSE cash market, matching the order
// gateway's default routing.
func (i *Instance) ExchangeType() int {
	if et, ok := ExchangeTypes[i.Exchange]; ok {
		return et
	}
	return ExchangeNSECM
}

// ActionFor maps a signal type to the configured order action string.
func (i *Instance) ActionFor(t SignalType) string {
	switch t {
	case SignalLongEntry:
		return i.LongEntryAction
	case SignalLongExit:
		return i.LongExitAction
	case SignalShortEntry:
		return i.ShortEntryAction
	case SignalShortExit:
		return i.ShortExitAction
	}
	return ""
}
