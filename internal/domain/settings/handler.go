package settings

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/settings", h.Get)
	api.PATCH("/settings", h.Update)
}

func (h *Handler) Get(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Get())
}

func (h *Handler) Update(c echo.Context) error {
	var patch Patch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	updated, err := h.svc.Update(patch)
	if err != nil {
		return apperror.Respond(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}
