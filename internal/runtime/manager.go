package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"TradePull/internal/domain/models"
	"TradePull/internal/domain/repository"
	"TradePull/internal/feed"
	"TradePull/internal/sandbox"
	"TradePull/pkg/logger"
)

// Config carries the strategy runtime tunables.
type Config struct {
	CycleInterval   time.Duration
	ErrorInterval   time.Duration
	SignalThrottle  time.Duration
	WindowSize      int
	HistoryLookback time.Duration
	SubscribeMode   int
}

// FeedSource is the slice of the feed connection the runtime uses to
// keep instrument subscriptions alive.
type FeedSource interface {
	Subscribe(symbol string, exchangeType int, token string, mode int, cb feed.TickCallback) (int, error)
	Unsubscribe(symbol string, cbID int) error
}

// TickSource supplies recent ticks for a symbol.
type TickSource interface {
	Snapshot(symbol string, limit int) []models.Tick
}

// Manager owns the set of active strategy instances, one worker
// goroutine per instance. Workers poll the active set each cycle, so
// deactivation is cooperative and bounded by one cycle interval.
type Manager struct {
	cfg       Config
	instances repository.InstanceStore
	users     repository.UserStore
	history   repository.HistoryProvider
	gateway   repository.OrderGateway
	publisher repository.EventPublisher
	feedSrc   FeedSource
	ticks     TickSource
	engine    *sandbox.Engine
	metrics   repository.Metrics
	logger    *logger.Logger

	mu     sync.Mutex
	active map[int64]*worker
}

func NewManager(
	cfg Config,
	instances repository.InstanceStore,
	users repository.UserStore,
	history repository.HistoryProvider,
	gateway repository.OrderGateway,
	publisher repository.EventPublisher,
	feedSrc FeedSource,
	ticks TickSource,
	engine *sandbox.Engine,
	metrics repository.Metrics,
	lgr *logger.Logger,
) *Manager {
	if cfg.CycleInterval <= 0 {
		cfg.CycleInterval = 10 * time.Second
	}
	if cfg.ErrorInterval <= 0 {
		cfg.ErrorInterval = 30 * time.Second
	}
	if cfg.SignalThrottle < 0 {
		cfg.SignalThrottle = 0
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 500
	}
	if cfg.HistoryLookback <= 0 {
		cfg.HistoryLookback = 48 * time.Hour
	}
	if cfg.SubscribeMode <= 0 {
		cfg.SubscribeMode = models.ModeQuote
	}
	return &Manager{
		cfg:       cfg,
		instances: instances,
		users:     users,
		history:   history,
		gateway:   gateway,
		publisher: publisher,
		feedSrc:   feedSrc,
		ticks:     ticks,
		engine:    engine,
		metrics:   metrics,
		logger:    lgr,
		active:    make(map[int64]*worker),
	}
}

// Activate loads the instance and spawns its worker. Activating an
// already-active instance succeeds without spawning a second worker.
func (m *Manager) Activate(ctx context.Context, id int64) error {
	m.mu.Lock()
	if _, ok := m.active[id]; ok {
		m.mu.Unlock()
		m.logger.Info("instance already active", logger.Int64("instance_id", id))
		return nil
	}
	// Reserve the slot before the store round trips so a concurrent
	// Activate cannot spawn a duplicate worker.
	m.active[id] = nil
	m.mu.Unlock()

	inst, user, err := m.loadInstance(ctx, id)
	if err != nil {
		m.release(id)
		return err
	}

	if inst.WebhookID == "" {
		webhookID, werr := m.gateway.RegisterWebhook(ctx, user, inst.Name)
		if werr != nil {
			m.release(id)
			return fmt.Errorf("register webhook for instance %d: %w", id, werr)
		}
		inst.WebhookID = webhookID
	}
	if err := m.instances.SetActive(ctx, id, true, inst.WebhookID); err != nil {
		m.release(id)
		return fmt.Errorf("mark instance %d active: %w", id, err)
	}

	if _, err := m.feedSrc.Subscribe(inst.Symbol, inst.ExchangeType(), inst.Token, m.cfg.SubscribeMode, nil); err != nil {
		// The registry still records the subscription; the next
		// reconnect replays it.
		m.logger.Warn("feed subscribe on activate",
			logger.Int64("instance_id", id),
			logger.Error(err))
	}

	w := newWorker(m, inst, user)
	m.mu.Lock()
	m.active[id] = w
	m.mu.Unlock()
	go w.run()

	m.logger.Info("instance activated",
		logger.Int64("instance_id", id),
		logger.String("symbol", inst.Symbol),
		logger.String("timeframe", inst.Timeframe))
	return nil
}

// Deactivate removes the instance from the active set. Its worker
// observes the removal within one cycle and exits. Deactivating an
// inactive instance returns models.ErrNotActive.
func (m *Manager) Deactivate(ctx context.Context, id int64) error {
	m.mu.Lock()
	w, ok := m.active[id]
	if ok {
		delete(m.active, id)
	}
	m.mu.Unlock()

	if !ok {
		return models.ErrNotActive
	}

	if err := m.instances.SetActive(ctx, id, false, ""); err != nil {
		m.logger.Warn("mark instance inactive",
			logger.Int64("instance_id", id),
			logger.Error(err))
	}
	if w != nil {
		if err := m.feedSrc.Unsubscribe(w.inst.Symbol, 0); err != nil {
			m.logger.Warn("feed unsubscribe on deactivate",
				logger.String("symbol", w.inst.Symbol),
				logger.Error(err))
		}
	}
	m.logger.Info("instance deactivated", logger.Int64("instance_id", id))
	return nil
}

// IsActive reports whether the instance is in the active set. Workers
// use it as their continuation condition.
func (m *Manager) IsActive(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[id]
	return ok
}

// ActiveIDs lists active instance ids.
func (m *Manager) ActiveIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]int64, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown empties the active set; workers exit within one cycle.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.active = make(map[int64]*worker)
	m.mu.Unlock()
}

func (m *Manager) loadInstance(ctx context.Context, id int64) (*models.Instance, *models.User, error) {
	inst, err := m.instances.Get(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("load instance %d: %w", id, err)
	}
	user, err := m.users.Get(ctx, inst.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("load user %d: %w", inst.UserID, err)
	}
	return inst, user, nil
}

func (m *Manager) release(id int64) {
	m.mu.Lock()
	delete(m.active, id)
	m.mu.Unlock()
}
