package sandbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradePull/internal/domain/models"
)

func testCandles() []models.Candle {
	base := time.Date(2026, 8, 31, 9, 15, 0, 0, time.UTC)
	return []models.Candle{
		{Bucket: base, Symbol: "SBIN", Open: 100, High: 102, Low: 99, Close: 101, Volume: 10},
		{Bucket: base.Add(time.Minute), Symbol: "SBIN", Open: 101, High: 105, Low: 100, Close: 104, Volume: 12},
	}
}

func TestExecuteEmitsSignals(t *testing.T) {
	e := NewEngine(time.Second)

	res, err := e.Execute(context.Background(), `
		var last = data[data.length - 1];
		if (last.close > last.open) {
			long_entry();
		} else {
			short_entry();
		}
	`, testCandles(), nil, 0)
	require.NoError(t, err)

	require.Len(t, res.Signals, 1)
	assert.Equal(t, models.SignalLongEntry, res.Signals[0].Type)
	assert.Equal(t, 1, res.Signals[0].Ordinal)
}

func TestExecuteOrdinalsContinueFromBase(t *testing.T) {
	e := NewEngine(time.Second)

	res, err := e.Execute(context.Background(), `long_entry(); long_exit();`, testCandles(), nil, 5)
	require.NoError(t, err)

	require.Len(t, res.Signals, 2)
	assert.Equal(t, 6, res.Signals[0].Ordinal)
	assert.Equal(t, 7, res.Signals[1].Ordinal)
}

func TestExecuteDataIsVisibleThroughJSONNames(t *testing.T) {
	e := NewEngine(time.Second)

	res, err := e.Execute(context.Background(), `
		print(data.length, data[0].symbol, data[1].high);
	`, testCandles(), nil, 0)
	require.NoError(t, err)
	require.Len(t, res.Output, 1)
	assert.Equal(t, "2 SBIN 105", res.Output[0])
}

func TestExecuteParamsOverrideDefaults(t *testing.T) {
	e := NewEngine(time.Second)
	script := `
		var period = 20; // param: lookback period
		if (params.period > 10) { long_entry(); }
	`
	params := BuildParams(script, map[string]any{"period": 50})

	res, err := e.Execute(context.Background(), script, testCandles(), params, 0)
	require.NoError(t, err)
	assert.Len(t, res.Signals, 1)
}

func TestExecuteScriptErrorWrapped(t *testing.T) {
	e := NewEngine(time.Second)

	_, err := e.Execute(context.Background(), `no_such_function();`, testCandles(), nil, 0)
	require.ErrorIs(t, err, ErrScript)

	_, err = e.Execute(context.Background(), `syntax error here(`, testCandles(), nil, 0)
	require.ErrorIs(t, err, ErrScript)
}

func TestExecuteRunawayScriptInterrupted(t *testing.T) {
	e := NewEngine(50 * time.Millisecond)

	start := time.Now()
	_, err := e.Execute(context.Background(), `while (true) {}`, nil, nil, 0)
	require.ErrorIs(t, err, ErrScript)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecuteFreshVMPerRun(t *testing.T) {
	e := NewEngine(time.Second)

	_, err := e.Execute(context.Background(), `var leak = 42;`, nil, nil, 0)
	require.NoError(t, err)

	res, err := e.Execute(context.Background(), `
		if (typeof leak === "undefined") { long_entry(); }
	`, nil, nil, 0)
	require.NoError(t, err)
	assert.Len(t, res.Signals, 1, "state must not leak between runs")
}
