package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"TradePull/internal/domain/models"
)

func TestApplyPositionTransitions(t *testing.T) {
	cases := []struct {
		name    string
		pos     models.Position
		signal  models.SignalType
		want    models.Position
		allowed bool
	}{
		{"flat long entry", models.PositionFlat, models.SignalLongEntry, models.PositionLong, true},
		{"long long entry refused", models.PositionLong, models.SignalLongEntry, models.PositionLong, false},
		{"short long entry reverses", models.PositionShort, models.SignalLongEntry, models.PositionLong, true},
		{"long long exit", models.PositionLong, models.SignalLongExit, models.PositionFlat, true},
		{"flat long exit refused", models.PositionFlat, models.SignalLongExit, models.PositionFlat, false},
		{"short long exit refused", models.PositionShort, models.SignalLongExit, models.PositionShort, false},
		{"flat short entry", models.PositionFlat, models.SignalShortEntry, models.PositionShort, true},
		{"short short entry refused", models.PositionShort, models.SignalShortEntry, models.PositionShort, false},
		{"long short entry reverses", models.PositionLong, models.SignalShortEntry, models.PositionShort, true},
		{"short short exit", models.PositionShort, models.SignalShortExit, models.PositionFlat, true},
		{"long short exit refused", models.PositionLong, models.SignalShortExit, models.PositionLong, false},
		{"unknown signal refused", models.PositionFlat, models.SignalType("hold"), models.PositionFlat, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, allowed := ApplyPosition(tc.pos, tc.signal)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.allowed, allowed)
		})
	}
}

func TestApplyPositionSequence(t *testing.T) {
	pos := models.PositionFlat
	transitions := 0
	for _, sig := range []models.SignalType{
		models.SignalLongEntry,
		models.SignalLongEntry,
		models.SignalLongExit,
		models.SignalShortEntry,
	} {
		next, ok := ApplyPosition(pos, sig)
		if ok {
			transitions++
		}
		pos = next
	}
	assert.Equal(t, 3, transitions, "duplicate long entry is refused")
	assert.Equal(t, models.PositionShort, pos)
}
