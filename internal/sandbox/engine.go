package sandbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"

	"TradePull/internal/domain/models"
)

// ErrScript wraps any failure raised by user strategy code. Callers log
// it with instance context and skip the cycle; it never crosses worker
// boundaries.
var ErrScript = errors.New("script execution failed")

// Result is the outcome of one script run.
type Result struct {
	// Signals is the cumulative signal list after the run, including
	// entries appended by earlier runs via baseOrdinal.
	Signals []models.Signal
	// Output holds captured print lines, for diagnostics.
	Output []string
}

// Engine executes user strategy scripts in an embedded JavaScript VM
// with a fixed capability surface: read access to the data window and
// parameters, write access only through the four signal primitives. A
// fresh VM is built per run, so scripts cannot leak state to each other.
type Engine struct {
	timeout time.Duration
}

func NewEngine(timeout time.Duration) *Engine {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Engine{timeout: timeout}
}

// Execute runs script against the rolling data window. Signal ordinals
// continue from baseOrdinal, keeping the list cumulative across the
// instance lifetime.
func (e *Engine) Execute(ctx context.Context, script string, data []models.Candle, params map[string]any, baseOrdinal int) (*Result, error) {
	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	res := &Result{}
	ordinal := baseOrdinal
	emit := func(t models.SignalType) func(goja.FunctionCall) goja.Value {
		return func(goja.FunctionCall) goja.Value {
			ordinal++
			res.Signals = append(res.Signals, models.Signal{Type: t, Ordinal: ordinal})
			return goja.Undefined()
		}
	}

	vm.Set("data", data)
	vm.Set("params", params)
	vm.Set("long_entry", emit(models.SignalLongEntry))
	vm.Set("long_exit", emit(models.SignalLongExit))
	vm.Set("short_entry", emit(models.SignalShortEntry))
	vm.Set("short_exit", emit(models.SignalShortExit))
	vm.Set("print", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, a := range call.Arguments {
			parts = append(parts, a.String())
		}
		res.Output = append(res.Output, strings.Join(parts, " "))
		return goja.Undefined()
	})

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-runCtx.Done():
			vm.Interrupt(runCtx.Err())
		case <-watchDone:
		}
	}()

	if _, err := vm.RunString(script); err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			return nil, fmt.Errorf("%w: interrupted after %s", ErrScript, e.timeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrScript, err)
	}
	return res, nil
}
