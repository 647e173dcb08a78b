package runtime

import (
	"context"
	"time"

	"TradePull/internal/domain/models"
	"TradePull/internal/domain/repository"
	"TradePull/internal/sandbox"
	"TradePull/pkg/logger"
)

// worker is the per-instance execution loop. Its state lives only while
// the instance stays in the manager's active set.
type worker struct {
	mgr    *Manager
	inst   *models.Instance
	user   *models.User
	tf     repository.Timeframe
	params map[string]any

	position   models.Position
	lastSignal time.Time
	window     []models.Candle
	emitted    int
}

func newWorker(m *Manager, inst *models.Instance, user *models.User) *worker {
	return &worker{
		mgr:    m,
		inst:   inst,
		user:   user,
		tf:     repository.NormalizeTimeframe(inst.Timeframe),
		params: sandbox.BuildParams(inst.Script, inst.Parameters),
	}
}

func (w *worker) run() {
	log := w.mgr.logger
	log.Info("strategy worker started",
		logger.Int64("instance_id", w.inst.ID),
		logger.String("symbol", w.inst.Symbol))

	ctx := context.Background()
	for {
		if !w.mgr.IsActive(w.inst.ID) {
			log.Info("strategy worker stopped",
				logger.Int64("instance_id", w.inst.ID))
			return
		}

		interval := w.mgr.cfg.CycleInterval
		if err := w.cycle(ctx); err != nil {
			interval = w.mgr.cfg.ErrorInterval
			log.Error("strategy cycle failed",
				logger.Int64("instance_id", w.inst.ID),
				logger.String("symbol", w.inst.Symbol),
				logger.Error(err))
		}
		if !w.sleep(interval) {
			log.Info("strategy worker stopped",
				logger.Int64("instance_id", w.inst.ID))
			return
		}
	}
}

// sleep waits the interval in slices, returning false as soon as the
// instance leaves the active set.
func (w *worker) sleep(interval time.Duration) bool {
	deadline := time.Now().Add(interval)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		slice := remaining
		if slice > time.Second {
			slice = time.Second
		}
		time.Sleep(slice)
		if !w.mgr.IsActive(w.inst.ID) {
			return false
		}
	}
}

func (w *worker) cycle(ctx context.Context) error {
	incoming := w.acquireData(ctx)
	w.window = MergeCandles(w.window, incoming, w.mgr.cfg.WindowSize)
	if len(w.window) == 0 {
		return nil
	}

	start := time.Now()
	res, err := w.mgr.engine.Execute(ctx, w.inst.Script, w.window, w.params, w.emitted)
	if w.mgr.metrics != nil {
		w.mgr.metrics.RecordLatency("script_execute", time.Since(start).Seconds())
	}
	if err != nil {
		// Script failures skip the cycle; the loop keeps running.
		return err
	}

	w.emitted += len(res.Signals)
	for _, sig := range res.Signals {
		w.handleSignal(ctx, sig)
	}
	return nil
}

// acquireData prefers live feed ticks resampled to the instance
// timeframe and falls back to the history provider when the buffer is
// empty.
func (w *worker) acquireData(ctx context.Context) []models.Candle {
	ticks := w.mgr.ticks.Snapshot(w.inst.Symbol, 0)
	if len(ticks) > 0 {
		return Resample(w.inst.Symbol, ticks, w.tf)
	}

	to := time.Now()
	from := to.Add(-w.mgr.cfg.HistoryLookback)
	candles, err := w.mgr.history.Fetch(ctx, w.inst.Symbol, w.inst.Exchange, w.tf, from, to)
	if err != nil {
		w.mgr.logger.Warn("history fallback failed",
			logger.Int64("instance_id", w.inst.ID),
			logger.String("symbol", w.inst.Symbol),
			logger.Error(err))
		return nil
	}
	return candles
}

// handleSignal runs one signal through the position guard, the dispatch
// throttle, and order dispatch. The guard transition and the dispatch
// are coupled: both happen or neither does. The position is committed
// before the gateway call returns, so a failed order still counts as
// dispatched (at-most-once).
func (w *worker) handleSignal(ctx context.Context, sig models.Signal) {
	log := w.mgr.logger
	if !sig.Type.Valid() {
		log.Warn("invalid signal type dropped",
			logger.Int64("instance_id", w.inst.ID),
			logger.String("signal", string(sig.Type)))
		return
	}

	next, allowed := ApplyPosition(w.position, sig.Type)
	if !allowed {
		log.Debug("signal refused by position guard",
			logger.Int64("instance_id", w.inst.ID),
			logger.String("signal", string(sig.Type)),
			logger.String("position", w.position.String()))
		return
	}

	if throttle := w.mgr.cfg.SignalThrottle; throttle > 0 && !w.lastSignal.IsZero() {
		if since := time.Since(w.lastSignal); since < throttle {
			log.Info("signal throttled",
				logger.Int64("instance_id", w.inst.ID),
				logger.String("signal", string(sig.Type)),
				logger.Duration("since_last", since))
			return
		}
	}

	action := w.inst.ActionFor(sig.Type)
	if action == "" {
		log.Warn("no action configured for signal",
			logger.Int64("instance_id", w.inst.ID),
			logger.String("signal", string(sig.Type)))
		return
	}

	w.position = next
	w.lastSignal = time.Now()
	if w.mgr.metrics != nil {
		w.mgr.metrics.RecordSignal(w.inst.Symbol, string(sig.Type))
	}

	ev := &models.TradeEvent{
		InstanceID: w.inst.ID,
		WebhookID:  w.inst.WebhookID,
		Symbol:     w.inst.Symbol,
		Signal:     sig.Type,
		Action:     action,
		Size:       w.inst.PositionSize,
		Position:   w.position.String(),
		Timestamp:  time.Now(),
	}

	resp, err := w.mgr.gateway.SendOrder(ctx, w.user, w.inst.Symbol, w.inst.Exchange, action, w.inst.PositionSize)
	if err != nil {
		ev.Error = err.Error()
		log.Error("order dispatch failed",
			logger.Int64("instance_id", w.inst.ID),
			logger.String("action", action),
			logger.Error(err))
	} else {
		ev.Response = resp
		log.Info("order dispatched",
			logger.Int64("instance_id", w.inst.ID),
			logger.String("symbol", w.inst.Symbol),
			logger.String("action", action),
			logger.String("position", w.position.String()),
			logger.String("response", resp))
	}
	if w.mgr.metrics != nil {
		w.mgr.metrics.RecordOrder(action, err == nil)
	}

	if w.mgr.publisher != nil {
		if perr := w.mgr.publisher.PublishTrade(ctx, ev); perr != nil {
			log.Warn("publish trade event",
				logger.Int64("instance_id", w.inst.ID),
				logger.Error(perr))
		}
	}
}
