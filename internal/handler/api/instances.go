package api

import (
	"errors"
	"strconv"

	models "TradePull/internal/domain/models"
	"TradePull/internal/runtime"
	xhttp "TradePull/pkg/http"
	xlogger "TradePull/pkg/logger"

	"github.com/labstack/echo/v4"
)

// InstanceHandler exposes strategy instance activation.
type InstanceHandler struct {
	logger *xlogger.Logger
	mgr    *runtime.Manager
}

func NewInstanceHandler(logger *xlogger.Logger, mgr *runtime.Manager) *InstanceHandler {
	return &InstanceHandler{logger: logger, mgr: mgr}
}

func (h *InstanceHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/instances")
	g.POST("/:id/activate", h.Activate)
	g.POST("/:id/deactivate", h.Deactivate)
	g.GET("/active", h.Active)
}

func (h *InstanceHandler) Activate(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return xhttp.BadRequestResponse(c, xhttp.BadRequestError("invalid instance id"))
	}

	if err := h.mgr.Activate(c.Request().Context(), id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return xhttp.NotFoundResponse(c, xhttp.NotFoundErrorf("instance %d not found", id))
		}
		h.logger.Error("activate instance failed",
			xlogger.Int64("instance_id", id),
			xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{"id": id, "active": true})
}

func (h *InstanceHandler) Deactivate(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return xhttp.BadRequestResponse(c, xhttp.BadRequestError("invalid instance id"))
	}

	if err := h.mgr.Deactivate(c.Request().Context(), id); err != nil {
		if errors.Is(err, models.ErrNotActive) {
			// Idempotent: report the state, do not fail.
			return xhttp.SuccessResponse(c, map[string]interface{}{"id": id, "active": false, "status": "not_active"})
		}
		h.logger.Error("deactivate instance failed",
			xlogger.Int64("instance_id", id),
			xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{"id": id, "active": false})
}

func (h *InstanceHandler) Active(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.mgr.ActiveIDs())
}
