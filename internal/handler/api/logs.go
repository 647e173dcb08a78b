package api

import (
	xhttp "TradePull/pkg/http"
	xlogger "TradePull/pkg/logger"

	"github.com/labstack/echo/v4"
)

// LogsHandler serves recently collected error logs for quick operator
// inspection without shelling into the box.
type LogsHandler struct {
	logger *xlogger.Logger
}

func NewLogsHandler(logger *xlogger.Logger) *LogsHandler {
	return &LogsHandler{logger: logger}
}

func (h *LogsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/logs/recent", h.Recent)
}

func (h *LogsHandler) Recent(c echo.Context) error {
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 100)

	collector := h.logger.Collector()
	if collector == nil {
		return xhttp.SuccessResponse(c, []xlogger.AggregatedLogEntry{})
	}
	return xhttp.SuccessResponse(c, collector.Recent(limit))
}
