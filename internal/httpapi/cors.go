package httpapi

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// CORS builds the command/query surface's cross-origin policy (§6),
// grounded on the teacher's shared/middleware/cors.go environment-based
// origin control, generalized to take the zap-free error return this core's
// config.Load already validates against instead of calling logger.Fatal
// from inside a middleware constructor.
func CORS(allowedOrigins string, env string) echo.MiddlewareFunc {
	var origins []string
	if allowedOrigins != "" {
		for _, origin := range strings.Split(allowedOrigins, ",") {
			origins = append(origins, strings.TrimSpace(origin))
		}
	}

	isDevelopment := env == "development" || env == "dev" || env == ""
	if isDevelopment && len(origins) == 0 {
		origins = []string{"*"}
	}

	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{
			echo.GET, echo.POST, echo.PUT, echo.PATCH, echo.DELETE, echo.OPTIONS,
		},
		AllowHeaders: []string{
			echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept,
			echo.HeaderAuthorization, echo.HeaderXRequestID,
		},
		ExposeHeaders:    []string{echo.HeaderXRequestID},
		AllowCredentials: true,
		MaxAge:           86400,
	})
}
