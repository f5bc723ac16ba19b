package agenda

import (
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
	readGroup.GET("/agenda/:professionalID/:date", h.GetDayGrid)
	readGroup.GET("/agenda/board/:date", h.GetOccupancyBoard)
}

func (h *Handler) GetDayGrid(c echo.Context) error {
	pid, err := uuid.Parse(c.Param("professionalID"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid professional id")
	}
	date, err := time.Parse("2006-01-02", c.Param("date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
	}
	grid, err := h.svc.GetDayGrid(c.Request().Context(), pid, date)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, grid)
}

func (h *Handler) GetOccupancyBoard(c echo.Context) error {
	date, err := time.Parse("2006-01-02", c.Param("date"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid date, expected YYYY-MM-DD")
	}
	grid, err := h.svc.GetOccupancyBoard(c.Request().Context(), date)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, grid)
}
