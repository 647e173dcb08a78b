package repository

import (
	"context"
	"time"

	"TradePull/internal/domain/models"
)

// FeedConn is one live transport connection to the streaming feed.
type FeedConn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// FeedTransport dials authenticated connections to the streaming feed.
type FeedTransport interface {
	Dial(ctx context.Context, cred models.Credential) (FeedConn, error)
}

// CredentialStore persists broker credentials. Implementations must
// return models.ErrNotFound for missing records so callers can tell
// absence apart from transient store failures.
type CredentialStore interface {
	ActiveAdmin(ctx context.Context) (*models.Credential, error)
	Save(ctx context.Context, cred *models.Credential) error
}

// InstanceStore reads strategy instance configuration.
type InstanceStore interface {
	Get(ctx context.Context, id int64) (*models.Instance, error)
	SetActive(ctx context.Context, id int64, active bool, webhookID string) error
}

// UserStore reads order-gateway accounts.
type UserStore interface {
	Get(ctx context.Context, id int64) (*models.User, error)
}

// HistoryProvider fetches historical OHLCV bars, ordered by bucket ascending.
type HistoryProvider interface {
	Fetch(ctx context.Context, symbol, exchange string, tf Timeframe, from, to time.Time) ([]models.Candle, error)
}

// OrderGateway places orders with the broker gateway. The response body
// is opaque and logged verbatim by the caller.
type OrderGateway interface {
	SendOrder(ctx context.Context, user *models.User, symbol, exchange, action string, size float64) (string, error)
	RegisterWebhook(ctx context.Context, user *models.User, name string) (string, error)
}

// AuthClient refreshes broker session tokens.
type AuthClient interface {
	Refresh(ctx context.Context, apiKey, refreshToken string) (*models.SessionTokens, error)
}

// EventPublisher publishes trade events for downstream consumers.
type EventPublisher interface {
	PublishTrade(ctx context.Context, ev *models.TradeEvent) error
	Close() error
}

// Metrics records operational metrics.
type Metrics interface {
	RecordTick(symbol string)
	RecordDecodeError(kind string)
	RecordReconnect()
	RecordConnectionState(state string)
	RecordSignal(symbol string, signal string)
	RecordOrder(action string, ok bool)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
