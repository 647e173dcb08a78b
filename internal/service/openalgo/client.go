package openalgo

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"TradePull/internal/domain/models"
	"TradePull/internal/domain/repository"
	"TradePull/internal/service/ratelimit"
	xhttp "TradePull/pkg/http"
)

const placeOrderPath = "/api/v1/placeorder"

// Per-host dispatch budget. Brokers reject bursts well below this, so
// the bucket trips before the gateway starts returning 429s.
const (
	orderBurst     = 10
	orderPerSecond = 1
)

// Client places orders through an OpenAlgo gateway. The response body is
// treated as opaque and returned verbatim for the caller to log.
type Client struct {
	hostURL string
	client  *xhttp.Client
	product string
	limiter *ratelimit.Limiter
}

var _ repository.OrderGateway = (*Client)(nil)

func NewClient(hostURL string, timeout time.Duration) *Client {
	return &Client{
		hostURL: strings.TrimRight(hostURL, "/"),
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
		product: "MIS",
		limiter: ratelimit.New(),
	}
}

type orderRequest struct {
	APIKey    string `json:"apikey"`
	Strategy  string `json:"strategy"`
	Symbol    string `json:"symbol"`
	Action    string `json:"action"`
	Exchange  string `json:"exchange"`
	PriceType string `json:"pricetype"`
	Product   string `json:"product"`
	Quantity  string `json:"quantity"`
}

// SendOrder submits a market order for the user's account. The user's
// own gateway host wins over the client default when set.
func (c *Client) SendOrder(ctx context.Context, user *models.User, symbol, exchange, action string, size float64) (string, error) {
	host := c.hostURL
	if user.OrderHostURL != "" {
		host = strings.TrimRight(user.OrderHostURL, "/")
	}
	if host == "" {
		return "", fmt.Errorf("send order: no gateway host configured")
	}
	if !c.limiter.Allow(host, orderBurst, orderPerSecond) {
		return "", fmt.Errorf("send order %s %s: %w", strings.ToUpper(action), symbol, ratelimit.ErrLimited)
	}

	req := orderRequest{
		APIKey:    user.OrderAPIKey,
		Strategy:  user.Username,
		Symbol:    symbol,
		Action:    strings.ToUpper(action),
		Exchange:  exchange,
		PriceType: "MARKET",
		Product:   c.product,
		Quantity:  strconv.FormatFloat(size, 'f', -1, 64),
	}

	var body []byte
	err := c.client.SendAndParse(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodPost,
		URL:    host + placeOrderPath,
		Body:   req,
	}, &body)
	if err != nil {
		return "", fmt.Errorf("send order %s %s: %w", req.Action, symbol, err)
	}
	return string(body), nil
}

// RegisterWebhook issues the opaque identifier that routes signals for
// an instance. Identifiers are minted locally; the gateway only needs
// them to be unique.
func (c *Client) RegisterWebhook(ctx context.Context, user *models.User, name string) (string, error) {
	return uuid.NewString(), nil
}
