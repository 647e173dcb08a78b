package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"TradePull/internal/domain/models"
	"TradePull/internal/domain/repository"
	"TradePull/pkg/logger"
)

// State is the connection lifecycle state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

// Transport message types, matching the websocket numbering.
const (
	msgText   = 1
	msgBinary = 2
)

const (
	actionSubscribe   = 1
	actionUnsubscribe = 0
)

// Config carries the connection tunables.
type Config struct {
	HeartbeatInterval time.Duration
	ConnectTimeout    time.Duration
	ReconnectBackoff  time.Duration
	MaxReconnects     int
	MaxProcessErrors  int
}

type subscribeParams struct {
	Mode      int         `json:"mode"`
	TokenList []tokenList `json:"tokenList"`
}

type tokenList struct {
	ExchangeType int      `json:"exchangeType"`
	Tokens       []string `json:"tokens"`
}

type subscribeRequest struct {
	CorrelationID string          `json:"correlationID"`
	Action        int             `json:"action"`
	Params        subscribeParams `json:"params"`
}

type feedError struct {
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// Connection owns the transport session to the streaming feed and its
// connect/heartbeat/reconnect state machine. Raw frames go through an
// unbounded intake queue consumed by one processing loop, so frames are
// decoded and dispatched strictly in arrival order.
type Connection struct {
	cfg       Config
	transport repository.FeedTransport
	registry  *Registry
	decoder   *Decoder
	logger    *logger.Logger
	metrics   repository.Metrics

	queue     *intakeQueue
	procOnce  sync.Once
	done      chan struct{}
	closeOnce sync.Once

	mu         sync.Mutex
	state      State
	cred       *models.Credential
	conn       repository.FeedConn
	session    chan struct{}
	attempts   int
	errCount   int
	lastErr    error
	lastData   time.Time
	procErrors int
}

func NewConnection(
	cfg Config,
	transport repository.FeedTransport,
	registry *Registry,
	decoder *Decoder,
	lgr *logger.Logger,
	metrics repository.Metrics,
) *Connection {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.ReconnectBackoff <= 0 {
		cfg.ReconnectBackoff = 2 * time.Second
	}
	if cfg.MaxReconnects <= 0 {
		cfg.MaxReconnects = 5
	}
	if cfg.MaxProcessErrors <= 0 {
		cfg.MaxProcessErrors = 10
	}
	return &Connection{
		cfg:       cfg,
		transport: transport,
		registry:  registry,
		decoder:   decoder,
		logger:    lgr,
		metrics:   metrics,
		queue:     newIntakeQueue(),
		done:      make(chan struct{}),
		state:     StateDisconnected,
	}
}

// Configure installs credentials and resets the attempt and error
// counters. This is the only way out of the Failed state.
func (c *Connection) Configure(cred models.Credential) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cred = &cred
	c.attempts = 0
	c.errCount = 0
	c.procErrors = 0
	c.lastErr = nil
	if c.state == StateFailed {
		c.setStateLocked(StateDisconnected)
	}
}

// Connect dials the feed and transitions to Connected. It blocks up to
// the configured connect timeout and does not retry internally; retries
// belong to the health monitor. Connecting while already Connected is a
// no-op.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.cred == nil {
		c.mu.Unlock()
		return models.ErrNotConfigured
	}
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	cred := *c.cred
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, err := c.transport.Dial(dialCtx, cred)
	if err != nil {
		c.mu.Lock()
		c.lastErr = err
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		return fmt.Errorf("dial feed: %w", err)
	}

	session := make(chan struct{})
	c.mu.Lock()
	if c.session != nil {
		close(c.session)
	}
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.session = session
	c.lastData = time.Now()
	c.setStateLocked(StateConnected)
	c.mu.Unlock()

	c.procOnce.Do(func() { go c.processLoop() })
	go c.readLoop(conn, session)
	go c.heartbeatLoop(conn, session)

	if err := c.resubscribeAll(conn); err != nil {
		c.logger.Error("resubscribe after connect failed", logger.Error(err))
	}

	c.logger.Info("feed connected", logger.String("client_code", cred.ClientCode))
	return nil
}

// Reconnect closes any live transport, waits the fixed backoff, then
// dials again. Attempts beyond the maximum move the connection to Failed
// and later calls are no-ops until Configure is called again.
func (c *Connection) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateFailed {
		c.mu.Unlock()
		return models.ErrReconnectExhausted
	}
	c.attempts++
	attempt := c.attempts
	if attempt > c.cfg.MaxReconnects {
		c.lastErr = models.ErrReconnectExhausted
		c.setStateLocked(StateFailed)
		c.mu.Unlock()
		c.logger.Error("reconnect attempts exhausted", logger.Int("attempts", attempt-1))
		return models.ErrReconnectExhausted
	}
	c.setStateLocked(StateReconnecting)
	c.closeSessionLocked()
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordReconnect()
	}
	c.logger.Warn("reconnecting feed",
		logger.Int("attempt", attempt),
		logger.Int("max", c.cfg.MaxReconnects))

	select {
	case <-time.After(c.cfg.ReconnectBackoff):
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.Connect(ctx)
}

// Subscribe registers the symbol and subscribes it at the given mode.
// The registry is updated even when disconnected, so the next successful
// connect resubscribes it. A network request goes out only when the mode
// is new or changed for the symbol.
func (c *Connection) Subscribe(symbol string, exchangeType int, token string, mode int, cb TickCallback) (int, error) {
	c.registry.Register(symbol, exchangeType, token)
	needSend, cbID, ok := c.registry.Subscribe(symbol, mode, cb)
	if !ok {
		return 0, fmt.Errorf("subscribe %s: registration failed", symbol)
	}
	if !needSend {
		return cbID, nil
	}

	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected {
		return cbID, nil
	}

	err := c.sendRequest(conn, actionSubscribe, mode, []tokenList{{ExchangeType: exchangeType, Tokens: []string{token}}})
	if err != nil {
		return cbID, fmt.Errorf("subscribe %s: %w", symbol, err)
	}
	c.logger.Info("subscribed",
		logger.String("symbol", symbol),
		logger.Int("mode", mode))
	return cbID, nil
}

// Unsubscribe removes a callback by id, or the whole subscription when
// cbID is 0. The network unsubscribe goes out only when no callbacks
// remain for the symbol.
func (c *Connection) Unsubscribe(symbol string, cbID int) error {
	exchangeType, token, mode, found := c.registry.Lookup(symbol)
	if !found {
		return models.ErrNotFound
	}
	needSend, ok := c.registry.Unsubscribe(symbol, cbID)
	if !ok {
		return models.ErrNotFound
	}
	if !needSend {
		return nil
	}

	c.mu.Lock()
	conn := c.conn
	connected := c.state == StateConnected
	c.mu.Unlock()
	if !connected {
		return nil
	}

	err := c.sendRequest(conn, actionUnsubscribe, mode, []tokenList{{ExchangeType: exchangeType, Tokens: []string{token}}})
	if err != nil {
		return fmt.Errorf("unsubscribe %s: %w", symbol, err)
	}
	c.logger.Info("unsubscribed", logger.String("symbol", symbol))
	return nil
}

// Status returns a point-in-time snapshot of the connection.
func (c *Connection) Status() models.FeedStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := models.FeedStatus{
		State:             string(c.state),
		ReconnectAttempts: c.attempts,
		ErrorCount:        c.errCount,
		SubscribedCount:   c.registry.Count(),
	}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	if !c.lastData.IsZero() {
		st.LastDataTime = c.lastData.Format(time.RFC3339)
	}
	return st
}

// CurrentState returns the lifecycle state.
func (c *Connection) CurrentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastDataTime returns when the last frame was processed.
func (c *Connection) LastDataTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastData
}

// ErrorCount returns the running decode/dispatch error counter.
func (c *Connection) ErrorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errCount
}

// ResetErrors clears the error counter. The health monitor calls this
// when it treats an elevated count as a reconnect trigger.
func (c *Connection) ResetErrors() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errCount = 0
}

// Disconnect closes the live transport session without tearing the
// connection down. A later Connect reuses the installed credentials.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeSessionLocked()
	if c.state != StateFailed {
		c.setStateLocked(StateDisconnected)
	}
}

// Close tears the connection down for good.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.queue.Close()
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeSessionLocked()
	c.setStateLocked(StateDisconnected)
	return nil
}

// --- internals ---

func (c *Connection) setStateLocked(s State) {
	c.state = s
	if c.metrics != nil {
		c.metrics.RecordConnectionState(string(s))
	}
}

func (c *Connection) closeSessionLocked() {
	if c.session != nil {
		close(c.session)
		c.session = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// readLoop pushes every received message onto the intake queue. A
// transport error from the current session triggers the reconnect path;
// errors from superseded sessions are ignored.
func (c *Connection) readLoop(conn repository.FeedConn, session chan struct{}) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			current := c.session == session
			if current {
				c.lastErr = err
				c.closeSessionLocked()
				c.setStateLocked(StateReconnecting)
			}
			c.mu.Unlock()

			if current {
				c.logger.Warn("feed transport closed", logger.Error(err))
				go func() {
					if rerr := c.Reconnect(context.Background()); rerr != nil {
						c.logger.Error("reconnect failed", logger.Error(rerr))
					}
				}()
			}
			return
		}

		select {
		case <-session:
			return
		default:
		}
		c.queue.Push(messageType, data)
	}
}

// heartbeatLoop sends a ping every heartbeat interval while the session
// is live. It never waits for a pong; staleness detection is the health
// monitor's job.
func (c *Connection) heartbeatLoop(conn repository.FeedConn, session chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-session:
			return
		case <-c.done:
			return
		case <-ticker.C:
			if c.CurrentState() != StateConnected {
				continue
			}
			if err := conn.WriteMessage(msgText, []byte("ping")); err != nil {
				c.logger.Warn("heartbeat write failed", logger.Error(err))
			}
		}
	}
}

// processLoop is the single consumer of the intake queue. It runs for
// the lifetime of the Connection, across reconnects, so frames are
// always handled in arrival order.
func (c *Connection) processLoop() {
	for {
		select {
		case <-c.done:
			return
		default:
		}

		msg, ok := c.queue.Pop(time.Second)
		if !ok {
			continue
		}
		c.process(msg)
	}
}

func (c *Connection) process(msg rawMessage) {
	if msg.messageType == msgText {
		c.processText(msg.data)
		return
	}

	frame, err := c.decoder.Decode(msg.data)
	if err != nil {
		c.recordProcessError("decode", err)
		return
	}
	symbol, ok := c.registry.Resolve(frame.Token)
	if !ok {
		c.recordProcessError("unknown_token", fmt.Errorf("%w: token %q has no subscription", models.ErrDecode, frame.Token))
		return
	}

	tick := frame.Tick()
	c.registry.AppendTick(symbol, tick)
	c.noteData()
	if c.metrics != nil {
		c.metrics.RecordTick(symbol)
		c.metrics.RecordLastPrice(symbol, tick.Close)
	}
}

func (c *Connection) processText(data []byte) {
	if string(data) == "pong" {
		c.noteData()
		return
	}

	var fe feedError
	if err := json.Unmarshal(data, &fe); err == nil && fe.ErrorCode != "" {
		c.recordProcessError("server_error", fmt.Errorf("feed error %s: %s", fe.ErrorCode, fe.ErrorMessage))
		return
	}

	token, tick, err := c.decoder.DecodeText(data)
	if err != nil {
		c.recordProcessError("decode_text", err)
		return
	}
	symbol, ok := c.registry.Resolve(token)
	if !ok {
		c.recordProcessError("unknown_token", fmt.Errorf("%w: token %q has no subscription", models.ErrDecode, token))
		return
	}
	c.registry.AppendTick(symbol, tick)
	c.noteData()
	if c.metrics != nil {
		c.metrics.RecordTick(symbol)
		c.metrics.RecordLastPrice(symbol, tick.Close)
	}
}

func (c *Connection) noteData() {
	c.mu.Lock()
	c.lastData = time.Now()
	c.mu.Unlock()
}

func (c *Connection) recordProcessError(kind string, err error) {
	c.mu.Lock()
	c.errCount++
	count := c.errCount
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordDecodeError(kind)
	}
	c.logger.Warn("frame discarded",
		logger.String("kind", kind),
		logger.Int("error_count", count),
		logger.Error(err))
}

// resubscribeAll replays the registry onto a fresh connection, batched
// into one request per mode and exchange type with a fresh correlation
// identifier.
func (c *Connection) resubscribeAll(conn repository.FeedConn) error {
	grouped := c.registry.GroupedTokens()
	for mode, byExchange := range grouped {
		for exchangeType, tokens := range byExchange {
			err := c.sendRequest(conn, actionSubscribe, mode, []tokenList{{ExchangeType: exchangeType, Tokens: tokens}})
			if err != nil {
				return fmt.Errorf("resubscribe mode %d exchange %d: %w", mode, exchangeType, err)
			}
			c.logger.Info("resubscribed batch",
				logger.Int("mode", mode),
				logger.Int("exchange_type", exchangeType),
				logger.Int("tokens", len(tokens)))
		}
	}
	return nil
}

func (c *Connection) sendRequest(conn repository.FeedConn, action, mode int, tokens []tokenList) error {
	if conn == nil {
		return models.ErrNotConfigured
	}
	req := subscribeRequest{
		CorrelationID: uuid.NewString(),
		Action:        action,
		Params: subscribeParams{
			Mode:      mode,
			TokenList: tokens,
		},
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return conn.WriteMessage(msgText, payload)
}
