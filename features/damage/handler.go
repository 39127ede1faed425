package damage

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/harvestguard/ingestcore/internal/evidence"
	"github.com/harvestguard/ingestcore/internal/httpapi"
	"github.com/harvestguard/ingestcore/internal/taskstate"
)

// Handler registers the damage-assessment routes (§6) on an existing Echo
// instance.
type Handler struct {
	useCase *UseCase
	tasks   *taskstate.Store
}

// NewHandler registers routes and, when rateLimiter is non-nil, applies the
// 5/hour/plot limit from §6 to the assess endpoint.
func NewHandler(e *echo.Echo, useCase *UseCase, tasks *taskstate.Store, rateLimiter *httpapi.PlotRateLimiter) *Handler {
	h := &Handler{useCase: useCase, tasks: tasks}

	var middleware []echo.MiddlewareFunc
	if rateLimiter != nil {
		middleware = append(middleware, rateLimiter.Middleware(httpapi.JSONBodyKey("plot_id")))
	}
	e.POST("/v1/damage/assess", h.assess, middleware...)

	e.GET("/v1/damage/assessments/:plot", h.list)
	e.GET("/v1/damage/assessment/:id", h.get)
	return h
}

type assessRequest struct {
	PlotID        string `json:"plot_id" validate:"required"`
	PolicyID      string `json:"policy_id" validate:"required"`
	FarmerAddress string `json:"farmer_address"`
	WindowDays    int    `json:"window_days"`
}

// assess handles POST /v1/damage/assess (§4.4, §6): admin verb, reports
// through the task-id surface (§4.6).
func (h *Handler) assess(c echo.Context) error {
	req := new(assessRequest)
	if err := httpapi.BindAndValidate(c, req); err != nil {
		return err
	}
	if req.WindowDays <= 0 {
		req.WindowDays = 30
	}

	ctx := c.Request().Context()
	taskID, err := h.tasks.Begin(ctx, "damage.assess")
	if err != nil {
		return httpapi.WriteError(c, err)
	}

	assessment, err := h.useCase.Assess(ctx, evidence.Request{
		PlotID:        req.PlotID,
		PolicyID:      req.PolicyID,
		FarmerAddress: req.FarmerAddress,
		WindowDays:    req.WindowDays,
	})
	if err != nil {
		_ = h.tasks.Fail(ctx, taskID, err.Error())
		return httpapi.WriteError(c, err)
	}
	_ = h.tasks.Complete(ctx, taskID)
	return c.JSON(http.StatusCreated, map[string]any{
		"task_id":    taskID,
		"status":     string(taskstate.StatusCompleted),
		"assessment": assessment,
	})
}

// list handles GET /v1/damage/assessments/{plot} (§6), default page size 10.
func (h *Handler) list(c echo.Context) error {
	plotID := c.Param("plot")
	limit := 10
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return httpapi.ValidationError(c, "limit must be a positive integer")
		}
		limit = parsed
	}
	offset := 0
	if raw := c.QueryParam("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return httpapi.ValidationError(c, "offset must be a non-negative integer")
		}
		offset = parsed
	}

	assessments, err := h.useCase.List(c.Request().Context(), plotID, limit, offset)
	if err != nil {
		return httpapi.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, assessments)
}

// get handles GET /v1/damage/assessment/{id} (§6).
func (h *Handler) get(c echo.Context) error {
	assessment, err := h.useCase.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpapi.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, assessment)
}
