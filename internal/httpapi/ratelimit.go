package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/harvestguard/ingestcore/internal/cache"
)

// PlotRateLimiter enforces a per-plot, per-window request ceiling using the
// shared cache's atomic counter (§4.6), generalized from the teacher's
// visitor-map limiter (shared/middleware/ratelimit.go) which tracked state
// in process memory instead of a shared store.
type PlotRateLimiter struct {
	cache  *cache.Cache
	limit  int64
	window time.Duration
	prefix string
}

// NewPlotRateLimiter builds a limiter allowing up to limit requests per
// window per (prefix, plot) pair.
func NewPlotRateLimiter(c *cache.Cache, prefix string, limit int64, window time.Duration) *PlotRateLimiter {
	return &PlotRateLimiter{cache: c, limit: limit, window: window, prefix: prefix}
}

// KeyFunc extracts the plot id a request should be rate-limited by.
type KeyFunc func(c echo.Context) string

// ParamKey builds a KeyFunc reading the plot id from the named path
// parameter (typically "plot").
func ParamKey(paramName string) KeyFunc {
	return func(c echo.Context) string { return c.Param(paramName) }
}

// JSONBodyKey builds a KeyFunc reading the plot id from a JSON request body
// field, for routes (like POST /v1/damage/assess) that address the plot in
// the payload rather than the path. It buffers and restores the body so the
// handler's own Bind still sees the full request.
func JSONBodyKey(field string) KeyFunc {
	return func(c echo.Context) string {
		raw, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return ""
		}
		c.Request().Body = io.NopCloser(bytes.NewReader(raw))

		var payload map[string]any
		if err := json.Unmarshal(raw, &payload); err != nil {
			return ""
		}
		value, _ := payload[field].(string)
		return value
	}
}

// Middleware rate-limits requests keyed by keyFunc, typically ParamKey for
// path-addressed plots or a body-reading KeyFunc for POST payloads.
func (rl *PlotRateLimiter) Middleware(keyFunc KeyFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			plotID := keyFunc(c)
			key := fmt.Sprintf("ratelimit:%s:%s", rl.prefix, plotID)

			count, err := rl.cache.Incr(c.Request().Context(), key, rl.window)
			if err != nil {
				return WriteError(c, err)
			}
			if count > rl.limit {
				return c.JSON(http.StatusTooManyRequests, ErrorBody{Error: ErrorDetail{
					Code:    "rate_limited",
					Message: "request rate limit exceeded for this plot",
					Path:    c.Request().URL.Path,
				}})
			}
			return next(c)
		}
	}
}
