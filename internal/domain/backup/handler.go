package backup

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
)

type Handler struct {
	mgr *Manager
}

func NewHandler(mgr *Manager) *Handler {
	return &Handler{mgr: mgr}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/backup", h.Export)
	api.POST("/backup/restore", h.Restore)
}

func (h *Handler) Export(c echo.Context) error {
	bundle, err := h.mgr.Export()
	if err != nil {
		return apperror.Respond(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="clinicdesk-backup.json"`)
	return c.JSON(http.StatusOK, bundle)
}

func (h *Handler) Restore(c echo.Context) error {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.mgr.Restore(raw); err != nil {
		return apperror.Respond(c, err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "restored"})
}
