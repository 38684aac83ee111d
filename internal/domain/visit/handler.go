package visit

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
	"github.com/clinicdesk/clinicdesk/internal/platform/middleware"
)

type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/appointments/:id/check-in", h.CheckIn)
	api.POST("/appointments/:id/no-show", h.MarkNoShow)
	api.POST("/appointments/:id/cancel", h.Cancel)
	api.POST("/appointments/:id/triage", h.CompleteTriage)
	api.POST("/appointments/:id/consultation", h.CompleteConsultation)
	api.GET("/appointments/:id/triage", h.GetTriage)
	api.GET("/appointments/:id/consultation", h.GetConsultation)
	api.GET("/appointments/:id/prescription", h.GetPrescription)
	api.GET("/appointments/:id/lab-order", h.GetLabOrder)

	api.GET("/queue", h.WaitingQueue)
	api.POST("/queue/call-next", h.CallNext)
	api.POST("/queue/:id/skip", h.Skip)

	api.POST("/lab-orders/:id/start", h.StartLab)
	api.POST("/lab-orders/:id/results", h.RecordLabResult)
	api.POST("/lab-orders/:id/complete", h.CompleteLab)

	api.POST("/prescriptions/:id/lines/dispense", h.MarkLineDispensed)
	api.POST("/prescriptions/:id/dispense", h.Dispense)
}

func (h *Handler) CheckIn(c echo.Context) error {
	appt, err := h.engine.CheckIn(c.Param("id"), middleware.ActorFrom(c))
	if err != nil {
		return apperror.Respond(c, err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) MarkNoShow(c echo.Context) error {
	appt, err := h.engine.MarkNoShow(c.Param("id"), middleware.ActorFrom(c))
	if err != nil {
		return apperror.Respond(c, err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) Cancel(c echo.Context) error {
	appt, err := h.engine.Cancel(c.Param("id"), middleware.ActorFrom(c))
	if err != nil {
		return apperror.Respond(c, err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) CompleteTriage(c echo.Context) error {
	var input TriageInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rec, entry, err := h.engine.CompleteTriage(c.Param("id"), input, middleware.ActorFrom(c))
	if err != nil {
		return apperror.Respond(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"triage":     rec,
		"queueEntry": entry,
	})
}

func (h *Handler) CompleteConsultation(c echo.Context) error {
	var input ConsultationInput
	if err := c.Bind(&input); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	outcome, err := h.engine.CompleteConsultation(c.Param("id"), input, middleware.ActorFrom(c))
	if err != nil {
		return apperror.Respond(c, err)
	}
	return c.JSON(http.StatusOK, outcome)
}

func (h *Handler) GetTriage(c echo.Context) error {
	rec, err := h.engine.TriageByAppointment(c.Param("id"))
	if err != nil {
		return apperror.Respond(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) GetConsultation(c echo.Context) error {
	rec, err := h.engine.ConsultationByAppointment(c.Param("id"))
	if err != nil {
		return apperror.Respond(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) GetPrescription(c echo.Context) error {
	rec, err := h.engine.PrescriptionByAppointment(c.Param("id"))
	if err != nil {
		return apperror.Respond(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) GetLabOrder(c echo.Context) error {
	rec, err := h.engine.LabOrderByAppointment(c.Param("id"))
	if err != nil {
		return apperror.Respond(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) WaitingQueue(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"waiting": h.engine.WaitingQueue()})
}

func (h *Handler) CallNext(c echo.Context) error {
	entry, appt, err := h.engine.CallNext(middleware.ActorFrom(c))
	if err != nil {
		return apperror.Respond(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"queueEntry":  entry,
		"appointment": appt,
	})
}

func (h *Handler) Skip(c echo.Context) error {
	entry, err := h.engine.Skip(c.Param("id"), middleware.ActorFrom(c))
	if err != nil {
		return apperror.Respond(c, err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) StartLab(c echo.Context) error {
	order, err := h.engine.StartLab(c.Param("id"), middleware.ActorFrom(c))
	if err != nil {
		return apperror.Respond(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

type labResultRequest struct {
	TestCode string `json:"testCode"`
	Value    string `json:"value"`
	Notes    string `json:"notes"`
}

func (h *Handler) RecordLabResult(c echo.Context) error {
	var req labResultRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	order, err := h.engine.RecordLabResult(c.Param("id"), req.TestCode, req.Value, req.Notes, middleware.ActorFrom(c))
	if err != nil {
		return apperror.Respond(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

func (h *Handler) CompleteLab(c echo.Context) error {
	order, err := h.engine.CompleteLab(c.Param("id"), middleware.ActorFrom(c))
	if err != nil {
		return apperror.Respond(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

type dispenseLineRequest struct {
	LineIndex int `json:"lineIndex"`
}

func (h *Handler) MarkLineDispensed(c echo.Context) error {
	var req dispenseLineRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	rx, err := h.engine.MarkLineDispensed(c.Param("id"), req.LineIndex, middleware.ActorFrom(c))
	if err != nil {
		return apperror.Respond(c, err)
	}
	return c.JSON(http.StatusOK, rx)
}

func (h *Handler) Dispense(c echo.Context) error {
	rx, err := h.engine.Dispense(c.Param("id"), middleware.ActorFrom(c))
	if err != nil {
		return apperror.Respond(c, err)
	}
	return c.JSON(http.StatusOK, rx)
}
