package smartfeed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"TradePull/internal/domain/models"
	"TradePull/internal/domain/repository"
)

// Transport dials the broker's streaming feed over websocket, passing
// the credential set as handshake headers.
type Transport struct {
	url    string
	dialer *websocket.Dialer
}

var _ repository.FeedTransport = (*Transport)(nil)

func NewTransport(url string, handshakeTimeout time.Duration) *Transport {
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	return &Transport{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

func (t *Transport) Dial(ctx context.Context, cred models.Credential) (repository.FeedConn, error) {
	header := http.Header{}
	header.Set("Authorization", cred.SessionToken)
	header.Set("x-api-key", cred.APIKey)
	header.Set("x-client-code", cred.ClientCode)
	header.Set("x-feed-token", cred.FeedToken)

	conn, _, err := t.dialer.DialContext(ctx, t.url, header)
	if err != nil {
		return nil, fmt.Errorf("smartfeed dial %s: %w", t.url, err)
	}
	return conn, nil
}
