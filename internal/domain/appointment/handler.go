package appointment

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/marvingbh/clinica-sub001/internal/platform/auth"
	"github.com/marvingbh/clinica-sub001/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "professional", "reception"))
	readGroup.GET("/appointments/:id", h.Get)
	readGroup.GET("/patients/:id/appointments", h.ListByPatient)
	readGroup.GET("/recurrences/:id", h.GetRecurrence)
	readGroup.GET("/recurrences/:id/appointments", h.ListByRecurrence)

	writeGroup := api.Group("", auth.RequireRole("admin", "professional", "reception"))
	writeGroup.POST("/appointments", h.CreateSeries)
	writeGroup.POST("/recurrences/preview", h.PreviewSeries)
	writeGroup.PUT("/appointments/:id", h.Update)
	writeGroup.PATCH("/appointments/:id/status", h.UpdateStatus)
	writeGroup.POST("/recurrences/:id/skip", h.SkipOccurrence)
	writeGroup.POST("/recurrences/:id/restore", h.RestoreOccurrence)
	writeGroup.POST("/recurrences/:id/deactivate", h.DeactivateSeries)

	adminGroup := api.Group("", auth.RequireRole("admin"))
	adminGroup.DELETE("/appointments/:id", h.Delete)
}

func (h *Handler) CreateSeries(c echo.Context) error {
	var in CreateSeriesInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.svc.CreateSeries(c.Request().Context(), in)
	if err != nil {
		var conflict *OccurrenceConflictError
		if errors.As(err, &conflict) {
			return echo.NewHTTPError(http.StatusConflict, map[string]interface{}{
				"message":         conflict.Error(),
				"occurrenceIndex": conflict.Index,
				"date":            conflict.Date.Format("2006-01-02"),
			})
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) PreviewSeries(c echo.Context) error {
	var in struct {
		StartAt    time.Time      `json:"start_at"`
		Recurrence RecurrenceSpec `json:"recurrence"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	dates, err := h.svc.PreviewSeries(in.StartAt, in.Recurrence)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = d.Format(time.RFC3339)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"dates": out, "count": len(out)})
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	appt, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) ListByPatient(c echo.Context) error {
	pid, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListByPatient(c.Request().Context(), pid, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetRecurrence(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rec, err := h.svc.GetRecurrence(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "recurrence not found")
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListByRecurrence(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.svc.ListByRecurrence(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var a Appointment
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a.ID = id
	if err := h.svc.Update(c.Request().Context(), &a); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in struct {
		Status Status `json:"status"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	appt, err := h.svc.UpdateStatus(c.Request().Context(), id, in.Status)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SkipOccurrence(c echo.Context) error {
	return h.occurrenceAction(c, h.svc.SkipOccurrence)
}

func (h *Handler) RestoreOccurrence(c echo.Context) error {
	return h.occurrenceAction(c, h.svc.RestoreOccurrence)
}

func (h *Handler) occurrenceAction(c echo.Context, action func(ctx context.Context, recurrenceID uuid.UUID, date time.Time) (*Recurrence, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in struct {
		Date string `json:"date"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	date, err := time.Parse("2006-01-02", in.Date)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
	}
	rec, err := action(c.Request().Context(), id, date)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) DeactivateSeries(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeactivateSeries(c.Request().Context(), id); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrRecurrenceNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadySkipped), errors.Is(err, ErrNotSkipped), errors.Is(err, ErrStatusTerminal):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrInvalidModality),
		errors.Is(err, ErrInvalidDuration), errors.Is(err, ErrOccurrenceNotFound):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
