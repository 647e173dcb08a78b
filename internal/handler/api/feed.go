package api

import (
	"errors"

	models "TradePull/internal/domain/models"
	"TradePull/internal/feed"
	xhttp "TradePull/pkg/http"
	xlogger "TradePull/pkg/logger"

	"github.com/labstack/echo/v4"
)

// FeedHandler exposes the feed connection and subscription surface.
type FeedHandler struct {
	logger   *xlogger.Logger
	conn     *feed.Connection
	registry *feed.Registry
}

func NewFeedHandler(logger *xlogger.Logger, conn *feed.Connection, registry *feed.Registry) *FeedHandler {
	return &FeedHandler{logger: logger, conn: conn, registry: registry}
}

func (h *FeedHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/feed")
	g.GET("/status", h.Status)
	g.POST("/subscribe", h.Subscribe)
	g.POST("/unsubscribe", h.Unsubscribe)
	g.GET("/symbols", h.Symbols)
	g.GET("/ticks", h.Ticks)
}

func (h *FeedHandler) Status(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.conn.Status())
}

func (h *FeedHandler) Subscribe(c echo.Context) error {
	req := &models.SubscribeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	exchangeType := models.ExchangeNSECM
	if req.Exchange != "" {
		et, ok := models.ExchangeTypes[req.Exchange]
		if !ok {
			return xhttp.BadRequestResponse(c, xhttp.BadRequestErrorf("unknown exchange %q", req.Exchange))
		}
		exchangeType = et
	}
	token := req.Token
	if token == "" {
		token = req.Symbol
	}

	if _, err := h.conn.Subscribe(req.Symbol, exchangeType, token, req.Mode, nil); err != nil {
		h.logger.Error("subscribe request failed",
			xlogger.String("symbol", req.Symbol),
			xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"symbol": req.Symbol,
		"mode":   req.Mode,
	})
}

func (h *FeedHandler) Unsubscribe(c echo.Context) error {
	req := &models.UnsubscribeRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if err := h.conn.Unsubscribe(req.Symbol, 0); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return xhttp.NotFoundResponse(c, xhttp.NotFoundErrorf("symbol %q not subscribed", req.Symbol))
		}
		h.logger.Error("unsubscribe request failed",
			xlogger.String("symbol", req.Symbol),
			xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{"symbol": req.Symbol})
}

func (h *FeedHandler) Symbols(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.registry.ActiveSymbols())
}

func (h *FeedHandler) Ticks(c echo.Context) error {
	req := &models.TicksRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	return xhttp.SuccessResponse(c, h.registry.Snapshot(req.Symbol, req.Limit))
}
