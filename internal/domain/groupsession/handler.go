package groupsession

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/marvingbh/clinica-sub001/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "professional", "reception"))
	readGroup.GET("/group-sessions/:id", h.Get)
	readGroup.GET("/group-sessions", h.ListForDate)
	readGroup.GET("/group-sessions/:id/members", h.Members)
	readGroup.GET("/group-series/:id", h.GetSeries)
	readGroup.GET("/group-series/:id/sessions", h.ListBySeries)

	writeGroup := api.Group("", auth.RequireRole("admin", "professional"))
	writeGroup.POST("/group-sessions", h.CreateSeries)
	writeGroup.PUT("/group-sessions/:id", h.Update)
	writeGroup.POST("/group-sessions/:id/members", h.Enroll)
	writeGroup.DELETE("/group-sessions/:id/members/:patientID", h.Unenroll)
	writeGroup.PUT("/group-sessions/:id/members/:patientID/attendance", h.RecordAttendance)
	writeGroup.POST("/group-series/:id/skip", h.SkipOccurrence)
	writeGroup.POST("/group-series/:id/restore", h.RestoreOccurrence)
	writeGroup.POST("/group-series/:id/deactivate", h.DeactivateSeries)

	adminGroup := api.Group("", auth.RequireRole("admin"))
	adminGroup.DELETE("/group-sessions/:id", h.Delete)
}

func (h *Handler) CreateSeries(c echo.Context) error {
	var in CreateSeriesInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.svc.CreateSeries(c.Request().Context(), in)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, result)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	sess, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "group session not found")
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) ListForDate(c echo.Context) error {
	date, err := time.Parse("2006-01-02", c.QueryParam("date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
	}
	var facilitatorID *uuid.UUID
	if raw := c.QueryParam("facilitatorId"); raw != "" {
		fid, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid facilitator id")
		}
		facilitatorID = &fid
	}
	items, err := h.svc.ListForDate(c.Request().Context(), date, facilitatorID)
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
	var sess Session
	if err := c.Bind(&sess); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess.ID = id
	if err := h.svc.Update(c.Request().Context(), &sess); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, sess)
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

func (h *Handler) Members(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.svc.Members(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) Enroll(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in struct {
		PatientID uuid.UUID `json:"patient_id"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m, err := h.svc.Enroll(c.Request().Context(), id, in.PatientID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) Unenroll(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pid, err := uuid.Parse(c.Param("patientID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	if err := h.svc.Unenroll(c.Request().Context(), id, pid); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) RecordAttendance(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pid, err := uuid.Parse(c.Param("patientID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var in struct {
		Status AttendanceStatus `json:"status"`
		Note   *string          `json:"note"`
	}
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m, err := h.svc.RecordAttendance(c.Request().Context(), id, pid, in.Status, in.Note)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) GetSeries(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ser, err := h.svc.GetSeries(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "group series not found")
	}
	return c.JSON(http.StatusOK, ser)
}

func (h *Handler) ListBySeries(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	items, err := h.svc.ListBySeries(c.Request().Context(), id)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) SkipOccurrence(c echo.Context) error {
	return h.occurrenceAction(c, h.svc.SkipOccurrence)
}

func (h *Handler) RestoreOccurrence(c echo.Context) error {
	return h.occurrenceAction(c, h.svc.RestoreOccurrence)
}

func (h *Handler) occurrenceAction(c echo.Context, action func(ctx context.Context, seriesID uuid.UUID, date time.Time) (*Series, error)) error {
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
	ser, err := action(c.Request().Context(), id, date)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, ser)
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
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrSeriesNotFound), errors.Is(err, ErrMemberNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadySkipped), errors.Is(err, ErrNotSkipped),
		errors.Is(err, ErrSessionFull), errors.Is(err, ErrAlreadyEnrolled):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrInvalidAttendance),
		errors.Is(err, ErrInvalidDuration), errors.Is(err, ErrOccurrenceNotFound):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
