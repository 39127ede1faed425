package weather

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/harvestguard/ingestcore/internal/apperr"
	"github.com/harvestguard/ingestcore/internal/httpapi"
	"github.com/harvestguard/ingestcore/internal/taskstate"
)

// Handler registers the weather routes (§6) on an existing Echo instance,
// grounded on the teacher's handler.go registration idiom
// (NewWeatherHandler(c *echo.Echo)).
type Handler struct {
	useCase *UseCase
	tasks   *taskstate.Store
}

func NewHandler(e *echo.Echo, useCase *UseCase, tasks *taskstate.Store) *Handler {
	h := &Handler{useCase: useCase, tasks: tasks}
	e.POST("/v1/weather/submit", h.submit)
	e.POST("/v1/weather/indices", h.computeIndices)
	e.GET("/v1/weather/indices/:plot", h.latestIndex)
	return h
}

type submitRequest struct {
	PlotID string `json:"plot_id" validate:"required"`
}

// submit handles POST /v1/weather/submit (§6): admin verb, runs the station
// fetch synchronously for the core's representative surface and reports the
// outcome through the same task-id surface an async enqueue would use; the
// periodic task kind sweep-weather does the same work on a schedule.
func (h *Handler) submit(c echo.Context) error {
	req := new(submitRequest)
	if err := httpapi.BindAndValidate(c, req); err != nil {
		return err
	}

	ctx := c.Request().Context()
	taskID, err := h.tasks.Begin(ctx, "weather.submit")
	if err != nil {
		return httpapi.WriteError(c, err)
	}

	count, err := h.useCase.SubmitStation(ctx, req.PlotID)
	if err != nil {
		_ = h.tasks.Fail(ctx, taskID, err.Error())
		return httpapi.WriteError(c, err)
	}
	_ = h.tasks.Complete(ctx, taskID)
	return c.JSON(http.StatusOK, map[string]any{
		"task_id":        taskID,
		"status":         string(taskstate.StatusCompleted),
		"samples_stored": count,
	})
}

type indicesRequest struct {
	PlotID string `json:"plot_id" validate:"required"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

// computeIndices handles POST /v1/weather/indices (§6).
func (h *Handler) computeIndices(c echo.Context) error {
	req := new(indicesRequest)
	if err := httpapi.BindAndValidate(c, req); err != nil {
		return err
	}

	start, end, err := parseWindow(req.Start, req.End)
	if err != nil {
		return httpapi.ValidationError(c, err.Error())
	}

	ctx := c.Request().Context()
	taskID, err := h.tasks.Begin(ctx, "weather.compute_indices")
	if err != nil {
		return httpapi.WriteError(c, err)
	}

	idx, err := h.useCase.ComputeIndices(ctx, req.PlotID, start, end)
	if err != nil {
		_ = h.tasks.Fail(ctx, taskID, err.Error())
		return httpapi.WriteError(c, err)
	}
	_ = h.tasks.Complete(ctx, taskID)
	return c.JSON(http.StatusOK, map[string]any{
		"task_id": taskID,
		"status":  string(taskstate.StatusCompleted),
		"index":   idx,
	})
}

// latestIndex handles GET /v1/weather/indices/{plot} (§6).
func (h *Handler) latestIndex(c echo.Context) error {
	plotID := c.Param("plot")
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)

	if rawDays := c.QueryParam("window_days"); rawDays != "" {
		days, err := strconv.Atoi(rawDays)
		if err != nil || days <= 0 {
			return httpapi.ValidationError(c, "window_days must be a positive integer")
		}
		start = end.AddDate(0, 0, -days)
	}

	idx, err := h.useCase.LatestIndex(c.Request().Context(), plotID, start, end)
	if err != nil {
		return httpapi.WriteError(c, err)
	}
	if idx == nil {
		return httpapi.WriteError(c, apperr.New(apperr.InsufficientData, "no weather index found for plot"))
	}
	return c.JSON(http.StatusOK, idx)
}

func parseWindow(startRaw, endRaw string) (time.Time, time.Time, error) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)
	var err error
	if startRaw != "" {
		start, err = time.Parse(time.RFC3339, startRaw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if endRaw != "" {
		end, err = time.Parse(time.RFC3339, endRaw)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return start, end, nil
}
