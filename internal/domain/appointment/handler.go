package appointment

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
	"github.com/clinicdesk/clinicdesk/internal/platform/flatrec"
	"github.com/clinicdesk/clinicdesk/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/appointments", h.List)
	api.GET("/appointments/:id", h.Get)
	api.POST("/appointments", h.Create)
	api.PATCH("/appointments/:id", h.Update)
	api.DELETE("/appointments/:id", h.Delete)
	api.POST("/appointments/import", h.Import)
	api.GET("/appointments/export", h.Export)
}

func (h *Handler) Create(c echo.Context) error {
	var appt Appointment
	if err := c.Bind(&appt); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	created, err := h.svc.Create(&appt)
	if err != nil {
		return apperror.Respond(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) Get(c echo.Context) error {
	appt, err := h.svc.Get(c.Param("id"))
	if err != nil {
		return apperror.Respond(c, err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items := h.svc.List(Status(c.QueryParam("status")), c.QueryParam("patient_id"))
	from, to := pg.Slice(len(items))
	return c.JSON(http.StatusOK, pagination.NewResponse(items[from:to], len(items), pg.Limit, pg.Offset))
}

func (h *Handler) Update(c echo.Context) error {
	var patch Patch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	updated, err := h.svc.Update(c.Param("id"), patch)
	if err != nil {
		return apperror.Respond(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) Delete(c echo.Context) error {
	removed, err := h.svc.Delete(c.Param("id"))
	if err != nil {
		return apperror.Respond(c, err)
	}
	if !removed {
		return c.NoContent(http.StatusNotFound)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Import(c echo.Context) error {
	var rows []flatrec.Row
	if err := c.Bind(&rows); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n, err := h.svc.ImportRows(rows)
	if err != nil {
		return apperror.Respond(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"imported": n})
}

func (h *Handler) Export(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.ExportRows())
}
