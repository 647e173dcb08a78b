package runtime

import "TradePull/internal/domain/models"

// ApplyPosition runs the position guard for one signal. It returns the
// next position and whether the transition is allowed: entries fire only
// when not already in that side, exits only when in it. A refused signal
// is dropped, never queued or retried.
func ApplyPosition(pos models.Position, t models.SignalType) (models.Position, bool) {
	switch t {
	case models.SignalLongEntry:
		if pos != models.PositionLong {
			return models.PositionLong, true
		}
	case models.SignalLongExit:
		if pos == models.PositionLong {
			return models.PositionFlat, true
		}
	case models.SignalShortEntry:
		if pos != models.PositionShort {
			return models.PositionShort, true
		}
	case models.SignalShortExit:
		if pos == models.PositionShort {
			return models.PositionFlat, true
		}
	}
	return pos, false
}
