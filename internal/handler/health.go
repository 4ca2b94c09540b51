package handler // declare the package name; contains HTTP handlers

import (
	"context"  // bounded dependency checks
	"net/http" // net/http provides status codes and response helpers
	"time"     // check timeout

	"github.com/labstack/echo/v4" // echo is the web framework used for this project
)

// Health is the liveness probe.  It returns a plain text "ok" with 200 as
// long as the process serves HTTP.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Check probes one optional dependency (Redis, MySQL).
type Check func(ctx context.Context) error

// Ready is the readiness probe.  Optional dependencies only degrade the
// gateway, so a failing check is reported but still answers 200; the vault
// path itself is never probed because submissions survive its outage.
func Ready(checks map[string]Check) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		status := "ok"
		deps := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				deps[name] = err.Error()
				status = "degraded"
				continue
			}
			deps[name] = "ok"
		}
		return c.JSON(http.StatusOK, echo.Map{"status": status, "dependencies": deps})
	}
}
