// Package tasks exposes the command-surface task-state query named in §6:
// GET /tasks/{id} -> task state in {pending, completed, failed}.
package tasks

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/harvestguard/ingestcore/internal/httpapi"
	"github.com/harvestguard/ingestcore/internal/taskstate"
)

// Handler registers the task-state route on an existing Echo instance.
type Handler struct {
	store *taskstate.Store
}

func NewHandler(e *echo.Echo, store *taskstate.Store) *Handler {
	h := &Handler{store: store}
	e.GET("/tasks/:id", h.get)
	return h
}

func (h *Handler) get(c echo.Context) error {
	state, err := h.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpapi.WriteError(c, err)
	}
	return c.JSON(http.StatusOK, state)
}
