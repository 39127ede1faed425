package planet

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/harvestguard/ingestcore/internal/domain"
	"github.com/harvestguard/ingestcore/internal/httpapi"
	"github.com/harvestguard/ingestcore/internal/taskstate"
)

// Handler registers the planet (satellite subscription) routes (§6) on an
// existing Echo instance.
type Handler struct {
	useCase *UseCase
	tasks   *taskstate.Store
}

func NewHandler(e *echo.Echo, useCase *UseCase, tasks *taskstate.Store) *Handler {
	h := &Handler{useCase: useCase, tasks: tasks}
	e.POST("/v1/planet/subscription", h.create)
	e.GET("/v1/planet/subscription/:id", h.status)
	e.DELETE("/v1/planet/subscription/:id", h.cancel)
	e.GET("/v1/planet/biomass/:plot", h.latestBiomass)
	return h
}

type createRequest struct {
	PlotID     string       `json:"plot_id" validate:"required"`
	PolicyID   string       `json:"policy_id" validate:"required"`
	Geometry   [][2]float64 `json:"geometry" validate:"min=3"`
	Start      string       `json:"start" validate:"required"`
	End        string       `json:"end" validate:"required"`
	ProductTag string       `json:"product_tag"`
}

// create handles POST /v1/planet/subscription (§4.3 step 1, §6): admin verb,
// reports through the task-id surface (§4.6).
func (h *Handler) create(c echo.Context) error {
	req := new(createRequest)
	if err := httpapi.BindAndValidate(c, req); err != nil {
		return err
	}

	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		return httpapi.ValidationError(c, "start must be RFC3339")
	}
	end, err := time.Parse(time.RFC3339, req.End)
	if err != nil {
		return httpapi.ValidationError(c, "end must be RFC3339")
	}

	ctx := c.Request().Context()
	taskID, err := h.tasks.Begin(ctx, "planet.create_subscription")
	if err != nil {
		return httpapi.WriteError(c, err)
	}

	sub, err := h.useCase.CreateSubscription(ctx, req.PlotID, req.PolicyID, domain.GeoPolygon{Vertices: req.Geometry}, start, end, req.ProductTag)
	if err != nil {
		_ = h.tasks.Fail(ctx, taskID, err.Error())
		return httpapi.WriteError(c, err)
	}
	_ = h.tasks.Complete(ctx, taskID)
	return c.JSON(http.StatusCreated, map[string]any{
		"task_id":      taskID,
		"status":       string(taskstate.StatusCompleted),
		"subscription": sub,
	})
}

// status handles GET /v1/planet/subscription/{id} (§6).
func (h *Handler) status(c echo.Context) error {
	sub, err := h.useCase.Status(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpapi.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, sub)
}

// cancel handles DELETE /v1/planet/subscription/{id} (§4.3 cancel-cmd, §6):
// admin verb, reports through the task-id surface.
func (h *Handler) cancel(c echo.Context) error {
	ctx := c.Request().Context()
	taskID, err := h.tasks.Begin(ctx, "planet.cancel_subscription")
	if err != nil {
		return httpapi.WriteError(c, err)
	}
	if err := h.useCase.Cancel(ctx, c.Param("id")); err != nil {
		_ = h.tasks.Fail(ctx, taskID, err.Error())
		return httpapi.WriteError(c, err)
	}
	_ = h.tasks.Complete(ctx, taskID)
	return c.JSON(http.StatusOK, map[string]any{
		"task_id": taskID,
		"status":  string(taskstate.StatusCompleted),
	})
}

// latestBiomass handles GET /v1/planet/biomass/{plot} (§6, internal-auth
// only — the auth boundary itself is enforced by the command/query surface's
// middleware chain, not by this handler).
func (h *Handler) latestBiomass(c echo.Context) error {
	notBefore := time.Time{}
	if raw := c.QueryParam("not_before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return httpapi.ValidationError(c, "not_before must be RFC3339")
		}
		notBefore = parsed
	}

	summary, err := h.useCase.LatestBiomass(c.Request().Context(), c.Param("plot"), notBefore)
	if err != nil {
		return httpapi.WriteError(c, err)
	}
	if summary == nil {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, summary)
}
