package runtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradePull/internal/domain/models"
	"TradePull/internal/domain/repository"
	"TradePull/internal/feed"
	"TradePull/internal/sandbox"
	"TradePull/pkg/logger"
)

type fakeInstanceStore struct {
	mu        sync.Mutex
	inst      *models.Instance
	getErr    error
	setActive []bool
	webhooks  []string
}

func (f *fakeInstanceStore) Get(ctx context.Context, id int64) (*models.Instance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	inst := *f.inst
	return &inst, nil
}

func (f *fakeInstanceStore) SetActive(ctx context.Context, id int64, active bool, webhookID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setActive = append(f.setActive, active)
	f.webhooks = append(f.webhooks, webhookID)
	return nil
}

func (f *fakeInstanceStore) activations() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.setActive...)
}

type fakeUserStore struct{ user *models.User }

func (f *fakeUserStore) Get(ctx context.Context, id int64) (*models.User, error) {
	u := *f.user
	return &u, nil
}

type fakeHistory struct {
	mu      sync.Mutex
	candles []models.Candle
	err     error
	calls   int
}

func (f *fakeHistory) Fetch(ctx context.Context, symbol, exchange string, tf repository.Timeframe, from, to time.Time) ([]models.Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.candles, f.err
}

type dispatchedOrder struct {
	symbol string
	action string
	size   float64
}

type fakeGateway struct {
	mu       sync.Mutex
	orders   []dispatchedOrder
	sendErr  error
	webhooks int
}

func (f *fakeGateway) SendOrder(ctx context.Context, user *models.User, symbol, exchange, action string, size float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, dispatchedOrder{symbol: symbol, action: action, size: size})
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return `{"status":"success"}`, nil
}

func (f *fakeGateway) RegisterWebhook(ctx context.Context, user *models.User, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webhooks++
	return "wh-123", nil
}

func (f *fakeGateway) orderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

func (f *fakeGateway) allOrders() []dispatchedOrder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dispatchedOrder(nil), f.orders...)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.TradeEvent
}

func (f *fakePublisher) PublishTrade(ctx context.Context, ev *models.TradeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *ev)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) all() []models.TradeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.TradeEvent(nil), f.events...)
}

type fakeFeedSource struct {
	mu     sync.Mutex
	subs   []string
	unsubs []string
}

func (f *fakeFeedSource) Subscribe(symbol string, exchangeType int, token string, mode int, cb feed.TickCallback) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, symbol)
	return 0, nil
}

func (f *fakeFeedSource) Unsubscribe(symbol string, cbID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubs = append(f.unsubs, symbol)
	return nil
}

type fakeTickSource struct {
	mu    sync.Mutex
	ticks []models.Tick
}

func (f *fakeTickSource) Snapshot(symbol string, limit int) []models.Tick {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Tick(nil), f.ticks...)
}

func liveTicks() []models.Tick {
	base := time.Now().Add(-5 * time.Minute)
	return []models.Tick{
		{Timestamp: base, Close: 100, Volume: 10},
		{Timestamp: base.Add(time.Minute), Close: 101, Volume: 5},
	}
}

func testInstance(script string) *models.Instance {
	return &models.Instance{
		ID:               7,
		UserID:           3,
		Name:             "breakout",
		Symbol:           "SBIN",
		Exchange:         "NSE",
		Token:            "3045",
		Timeframe:        "1m",
		Script:           script,
		LongEntryAction:  "BUY",
		LongExitAction:   "SELL",
		ShortEntryAction: "SELL",
		ShortExitAction:  "BUY",
		PositionSize:     10,
	}
}

type managerFixture struct {
	mgr       *Manager
	instances *fakeInstanceStore
	gateway   *fakeGateway
	publisher *fakePublisher
	feedSrc   *fakeFeedSource
	ticks     *fakeTickSource
	history   *fakeHistory
}

func newFixture(t *testing.T, inst *models.Instance, throttle time.Duration) *managerFixture {
	t.Helper()

	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)

	f := &managerFixture{
		instances: &fakeInstanceStore{inst: inst},
		gateway:   &fakeGateway{},
		publisher: &fakePublisher{},
		feedSrc:   &fakeFeedSource{},
		ticks:     &fakeTickSource{ticks: liveTicks()},
		history:   &fakeHistory{},
	}
	f.mgr = NewManager(Config{
		CycleInterval:   10 * time.Millisecond,
		ErrorInterval:   10 * time.Millisecond,
		SignalThrottle:  throttle,
		WindowSize:      100,
		HistoryLookback: time.Hour,
	}, f.instances, &fakeUserStore{user: &models.User{ID: 3, Username: "trader"}},
		f.history, f.gateway, f.publisher, f.feedSrc, f.ticks,
		sandbox.NewEngine(time.Second), nil, l)
	t.Cleanup(f.mgr.Shutdown)
	return f
}

func TestActivateDispatchesGuardedSignal(t *testing.T) {
	f := newFixture(t, testInstance(`long_entry();`), time.Hour)
	require.NoError(t, f.mgr.Activate(context.Background(), 7))

	assert.True(t, f.mgr.IsActive(7))
	assert.Equal(t, []int64{7}, f.mgr.ActiveIDs())
	assert.Equal(t, []string{"SBIN"}, f.feedSrc.subs)

	require.Eventually(t, func() bool {
		return f.gateway.orderCount() == 1
	}, 2*time.Second, 5*time.Millisecond)

	// The script emits long_entry every cycle; the position guard refuses
	// all but the first.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, f.gateway.orderCount())

	orders := f.gateway.allOrders()
	assert.Equal(t, "SBIN", orders[0].symbol)
	assert.Equal(t, "BUY", orders[0].action)
	assert.Equal(t, 10.0, orders[0].size)

	events := f.publisher.all()
	require.NotEmpty(t, events)
	assert.Equal(t, models.SignalLongEntry, events[0].Signal)
	assert.Equal(t, "long", events[0].Position)
	assert.Equal(t, "wh-123", events[0].WebhookID)
	assert.JSONEq(t, `{"status":"success"}`, events[0].Response)
}

func TestActivateIdempotent(t *testing.T) {
	f := newFixture(t, testInstance(`long_entry();`), time.Hour)
	require.NoError(t, f.mgr.Activate(context.Background(), 7))
	require.NoError(t, f.mgr.Activate(context.Background(), 7))

	assert.Equal(t, 1, f.gateway.webhooks, "second activate must not spawn a second worker")
	assert.Equal(t, []bool{true}, f.instances.activations())
}

func TestActivateLoadFailureReleasesSlot(t *testing.T) {
	f := newFixture(t, testInstance(`long_entry();`), time.Hour)
	f.instances.getErr = models.ErrNotFound

	err := f.mgr.Activate(context.Background(), 7)
	require.ErrorIs(t, err, models.ErrNotFound)
	assert.False(t, f.mgr.IsActive(7))

	// The slot is free again once the store recovers.
	f.instances.mu.Lock()
	f.instances.getErr = nil
	f.instances.mu.Unlock()
	require.NoError(t, f.mgr.Activate(context.Background(), 7))
}

func TestDeactivateStopsWorker(t *testing.T) {
	// Throttle off, entry and exit both fire, so orders keep flowing
	// every cycle while the worker lives.
	f := newFixture(t, testInstance(`long_entry(); long_exit();`), 0)
	require.NoError(t, f.mgr.Activate(context.Background(), 7))

	require.Eventually(t, func() bool {
		return f.gateway.orderCount() >= 4
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, f.mgr.Deactivate(context.Background(), 7))
	assert.False(t, f.mgr.IsActive(7))
	assert.Equal(t, []string{"SBIN"}, f.feedSrc.unsubs)
	assert.Equal(t, []bool{true, false}, f.instances.activations())

	// Worker observes the removal within a cycle and stops dispatching.
	var settled int
	require.Eventually(t, func() bool {
		n := f.gateway.orderCount()
		if n == settled {
			return true
		}
		settled = n
		return false
	}, 2*time.Second, 50*time.Millisecond)

	require.ErrorIs(t, f.mgr.Deactivate(context.Background(), 7), models.ErrNotActive)
}

func TestSignalThrottleCouplesGuardAndDispatch(t *testing.T) {
	f := newFixture(t, testInstance(`long_entry(); long_exit();`), time.Hour)
	require.NoError(t, f.mgr.Activate(context.Background(), 7))

	require.Eventually(t, func() bool {
		return f.gateway.orderCount() >= 1
	}, 2*time.Second, 5*time.Millisecond)

	// The exit lands inside the throttle window: no dispatch and no
	// position change, so no spurious exit order later either.
	time.Sleep(100 * time.Millisecond)
	orders := f.gateway.allOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, "BUY", orders[0].action)

	events := f.publisher.all()
	require.Len(t, events, 1)
	assert.Equal(t, "long", events[0].Position, "throttled exit left the position untouched")
}

func TestHistoryFallbackWhenNoLiveTicks(t *testing.T) {
	f := newFixture(t, testInstance(`long_entry();`), time.Hour)
	f.ticks.ticks = nil
	f.history.candles = []models.Candle{
		{Bucket: time.Now().Truncate(time.Minute), Symbol: "SBIN", Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 10},
	}

	require.NoError(t, f.mgr.Activate(context.Background(), 7))
	require.Eventually(t, func() bool {
		return f.gateway.orderCount() == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestEmptyWindowSkipsExecution(t *testing.T) {
	f := newFixture(t, testInstance(`long_entry();`), 0)
	f.ticks.ticks = nil
	f.history.err = errors.New("clickhouse down")

	require.NoError(t, f.mgr.Activate(context.Background(), 7))
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, f.gateway.orderCount(), "no data means no script run and no orders")
}

func TestMissingActionMappingDropsSignal(t *testing.T) {
	inst := testInstance(`short_entry();`)
	inst.ShortEntryAction = ""
	f := newFixture(t, inst, 0)

	require.NoError(t, f.mgr.Activate(context.Background(), 7))
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, f.gateway.orderCount())
	assert.Empty(t, f.publisher.all())
}

func TestOrderFailureStillCommitsPosition(t *testing.T) {
	f := newFixture(t, testInstance(`long_entry();`), time.Hour)
	f.gateway.sendErr = errors.New("gateway 502")

	require.NoError(t, f.mgr.Activate(context.Background(), 7))
	require.Eventually(t, func() bool {
		return len(f.publisher.all()) >= 1
	}, 2*time.Second, 5*time.Millisecond)

	events := f.publisher.all()
	assert.Equal(t, "long", events[0].Position, "dispatch is at-most-once, failed orders are not retried")
	assert.Contains(t, events[0].Error, "gateway 502")

	// Guard refuses the repeat entry, so the failed order is never retried.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, f.gateway.orderCount())
}

func TestExistingWebhookNotReRegistered(t *testing.T) {
	inst := testInstance(`long_entry();`)
	inst.WebhookID = "wh-existing"
	f := newFixture(t, inst, time.Hour)

	require.NoError(t, f.mgr.Activate(context.Background(), 7))
	assert.Zero(t, f.gateway.webhooks)

	require.Eventually(t, func() bool {
		return len(f.publisher.all()) >= 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "wh-existing", f.publisher.all()[0].WebhookID)
}
