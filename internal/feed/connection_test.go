package feed

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TradePull/internal/domain/models"
	"TradePull/internal/domain/repository"
	"TradePull/pkg/logger"
)

type fakeConn struct {
	mu        sync.Mutex
	writes    [][]byte
	incoming  chan rawMessage
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		incoming: make(chan rawMessage, 64),
		closed:   make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-f.incoming:
		return msg.messageType, msg.data, nil
	case <-f.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) deliver(messageType int, data []byte) {
	f.incoming <- rawMessage{messageType: messageType, data: data}
}

func (f *fakeConn) sentRequests(t *testing.T) []subscribeRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]subscribeRequest, 0, len(f.writes))
	for _, w := range f.writes {
		var req subscribeRequest
		require.NoError(t, json.Unmarshal(w, &req))
		out = append(out, req)
	}
	return out
}

type fakeTransport struct {
	mu       sync.Mutex
	failNext int
	dials    int
	conns    []*fakeConn
}

func (f *fakeTransport) Dial(ctx context.Context, cred models.Credential) (repository.FeedConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.dials++
	if f.failNext > 0 {
		f.failNext--
		return nil, errors.New("dial refused")
	}
	conn := newFakeConn()
	f.conns = append(f.conns, conn)
	return conn, nil
}

func (f *fakeTransport) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func (f *fakeTransport) lastConn() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	return l
}

func testConnection(t *testing.T, transport repository.FeedTransport) (*Connection, *Registry) {
	t.Helper()
	reg := NewRegistry(100)
	conn := NewConnection(Config{
		HeartbeatInterval: time.Hour,
		ConnectTimeout:    time.Second,
		ReconnectBackoff:  time.Millisecond,
		MaxReconnects:     2,
		MaxProcessErrors:  10,
	}, transport, reg, NewDecoder(), testLogger(t), nil)
	t.Cleanup(func() { conn.Close() })
	return conn, reg
}

func TestConnectWithoutConfigure(t *testing.T) {
	conn, _ := testConnection(t, &fakeTransport{})
	require.ErrorIs(t, conn.Connect(context.Background()), models.ErrNotConfigured)
}

func TestConnectAndProcessTicks(t *testing.T) {
	transport := &fakeTransport{}
	conn, reg := testConnection(t, transport)
	conn.Configure(models.Credential{ClientCode: "A100"})

	require.NoError(t, conn.Connect(context.Background()))
	assert.Equal(t, StateConnected, conn.CurrentState())
	require.NoError(t, conn.Connect(context.Background()), "connect while connected is a no-op")
	assert.Equal(t, 1, transport.dialCount())

	_, err := conn.Subscribe("SBIN", models.ExchangeNSECM, "3045", models.ModeQuote, nil)
	require.NoError(t, err)

	fc := transport.lastConn()
	require.NotNil(t, fc)
	for i := 1; i <= 3; i++ {
		frame := newFrame(models.ModeQuote, models.ExchangeNSECM, "3045", 187)
		putU64(frame, offTimestamp, int64(1700000000+i))
		putPrice(frame, offLastPrice, float64(100+i))
		fc.deliver(msgBinary, frame)
	}

	require.Eventually(t, func() bool {
		return len(reg.Snapshot("SBIN", 0)) == 3
	}, 2*time.Second, 10*time.Millisecond)

	snap := reg.Snapshot("SBIN", 2)
	require.Len(t, snap, 2)
	assert.InDelta(t, 102, snap[0].Close, 0.001)
	assert.InDelta(t, 103, snap[1].Close, 0.001)
}

func TestSubscribeSendsRequestWhenConnected(t *testing.T) {
	transport := &fakeTransport{}
	conn, _ := testConnection(t, transport)
	conn.Configure(models.Credential{})
	require.NoError(t, conn.Connect(context.Background()))

	_, err := conn.Subscribe("SBIN", models.ExchangeNSECM, "3045", models.ModeQuote, nil)
	require.NoError(t, err)
	_, err = conn.Subscribe("SBIN", models.ExchangeNSECM, "3045", models.ModeQuote, nil)
	require.NoError(t, err, "same mode again is registry-only")

	reqs := transport.lastConn().sentRequests(t)
	require.Len(t, reqs, 1)
	assert.Equal(t, actionSubscribe, reqs[0].Action)
	assert.Equal(t, models.ModeQuote, reqs[0].Params.Mode)
	assert.NotEmpty(t, reqs[0].CorrelationID)
	require.Len(t, reqs[0].Params.TokenList, 1)
	assert.Equal(t, []string{"3045"}, reqs[0].Params.TokenList[0].Tokens)
}

func TestResubscribeBatchesPerModeAndExchange(t *testing.T) {
	transport := &fakeTransport{}
	conn, _ := testConnection(t, transport)
	conn.Configure(models.Credential{})

	// Subscribed while disconnected; the registry carries them into the
	// next successful connect.
	mustSub := func(symbol string, exchangeType int, token string, mode int) {
		_, err := conn.Subscribe(symbol, exchangeType, token, mode, nil)
		require.NoError(t, err)
	}
	mustSub("A", models.ExchangeNSECM, "1", models.ModeQuote)
	mustSub("B", models.ExchangeNSECM, "2", models.ModeQuote)
	mustSub("C", models.ExchangeNSEFO, "3", models.ModeQuote)
	mustSub("D", models.ExchangeNSECM, "4", models.ModeLTP)

	require.NoError(t, conn.Connect(context.Background()))

	reqs := transport.lastConn().sentRequests(t)
	require.Len(t, reqs, 3, "one request per mode and exchange group")

	tokensByGroup := map[[2]int][]string{}
	for _, req := range reqs {
		require.Len(t, req.Params.TokenList, 1)
		tl := req.Params.TokenList[0]
		tokensByGroup[[2]int{req.Params.Mode, tl.ExchangeType}] = tl.Tokens
	}
	assert.ElementsMatch(t, []string{"1", "2"}, tokensByGroup[[2]int{models.ModeQuote, models.ExchangeNSECM}])
	assert.ElementsMatch(t, []string{"3"}, tokensByGroup[[2]int{models.ModeQuote, models.ExchangeNSEFO}])
	assert.ElementsMatch(t, []string{"4"}, tokensByGroup[[2]int{models.ModeLTP, models.ExchangeNSECM}])
}

func TestReconnectExhaustionAndRecovery(t *testing.T) {
	transport := &fakeTransport{failNext: 1 << 20}
	conn, _ := testConnection(t, transport)
	conn.Configure(models.Credential{})

	// Two attempts dial and fail, the third exhausts the budget.
	require.Error(t, conn.Reconnect(context.Background()))
	require.Error(t, conn.Reconnect(context.Background()))
	require.ErrorIs(t, conn.Reconnect(context.Background()), models.ErrReconnectExhausted)
	assert.Equal(t, StateFailed, conn.CurrentState())

	dials := transport.dialCount()
	require.ErrorIs(t, conn.Reconnect(context.Background()), models.ErrReconnectExhausted)
	assert.Equal(t, dials, transport.dialCount(), "failed state stops dialing")

	// Configure is the only way back.
	transport.mu.Lock()
	transport.failNext = 0
	transport.mu.Unlock()
	conn.Configure(models.Credential{})
	assert.Equal(t, StateDisconnected, conn.CurrentState())
	require.NoError(t, conn.Connect(context.Background()))
	assert.Equal(t, StateConnected, conn.CurrentState())
}

func TestUnsubscribeUnknownSymbol(t *testing.T) {
	conn, _ := testConnection(t, &fakeTransport{})
	require.ErrorIs(t, conn.Unsubscribe("GHOST", 0), models.ErrNotFound)
}

func TestProcessErrorsAccumulateAndReset(t *testing.T) {
	transport := &fakeTransport{}
	conn, _ := testConnection(t, transport)
	conn.Configure(models.Credential{})
	require.NoError(t, conn.Connect(context.Background()))

	fc := transport.lastConn()
	// Valid frame for a token nobody subscribed, plus a truncated frame.
	frame := newFrame(models.ModeLTP, models.ExchangeNSECM, "404", 51)
	putPrice(frame, offLastPrice, 1)
	fc.deliver(msgBinary, frame)
	fc.deliver(msgBinary, make([]byte, 10))

	require.Eventually(t, func() bool {
		return conn.ErrorCount() == 2
	}, 2*time.Second, 10*time.Millisecond)

	conn.ResetErrors()
	assert.Zero(t, conn.ErrorCount())
}

func TestPongRefreshesLastData(t *testing.T) {
	transport := &fakeTransport{}
	conn, _ := testConnection(t, transport)
	conn.Configure(models.Credential{})
	require.NoError(t, conn.Connect(context.Background()))

	before := conn.LastDataTime()
	time.Sleep(5 * time.Millisecond)
	transport.lastConn().deliver(msgText, []byte("pong"))

	require.Eventually(t, func() bool {
		return conn.LastDataTime().After(before)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Zero(t, conn.ErrorCount())
}

func TestDisconnectKeepsCredentials(t *testing.T) {
	transport := &fakeTransport{}
	conn, _ := testConnection(t, transport)
	conn.Configure(models.Credential{})
	require.NoError(t, conn.Connect(context.Background()))

	conn.Disconnect()
	assert.Equal(t, StateDisconnected, conn.CurrentState())

	require.NoError(t, conn.Connect(context.Background()))
	assert.Equal(t, StateConnected, conn.CurrentState())
	assert.Equal(t, 2, transport.dialCount())
}

func TestStatusSnapshot(t *testing.T) {
	transport := &fakeTransport{}
	conn, _ := testConnection(t, transport)
	conn.Configure(models.Credential{})
	require.NoError(t, conn.Connect(context.Background()))

	_, err := conn.Subscribe("SBIN", models.ExchangeNSECM, "3045", models.ModeQuote, nil)
	require.NoError(t, err)

	st := conn.Status()
	assert.Equal(t, string(StateConnected), st.State)
	assert.Equal(t, 1, st.SubscribedCount)
	assert.NotEmpty(t, st.LastDataTime)
}
