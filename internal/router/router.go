package router // package router defines how HTTP routes are registered for the API

import (
	"net/http"

	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/procurement-gateway/internal/handler"    // HTTP handlers
	"github.com/iliyamo/procurement-gateway/internal/middleware" // bearer extraction
)

// Routes bundles what RegisterRoutes mounts.  Cache and RateLimit may be
// nil; Metrics is the Prometheus exposition handler.
type Routes struct {
	Procurement *handler.ProcurementHandler
	Files       *handler.FileHandler
	Uploads     *handler.UploadAuditHandler
	Checks      map[string]handler.Check
	Metrics     http.Handler
	Cache       echo.MiddlewareFunc
	RateLimit   echo.MiddlewareFunc
}

// RegisterRoutes registers the probes and metrics at the top level and the
// bearer-protected API under /v1.
func RegisterRoutes(e *echo.Echo, r Routes) {
	// Probes and metrics carry no credential.
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(r.Checks))
	if r.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(r.Metrics))
	}

	// Everything under /v1 forwards the caller's token to the PLM.
	v1 := e.Group("/v1", middleware.BearerCredential())

	// Submissions are rate limited per login: each one may drive a full
	// vault transaction.
	v1.POST("/procurement-requests", r.Procurement.Create, optional(r.RateLimit)...)

	// File records are cached per caller.
	v1.GET("/files/:id", r.Files.Get, optional(r.Cache)...)

	v1.GET("/uploads/abandoned", r.Uploads.Abandoned)
}

func optional(mw echo.MiddlewareFunc) []echo.MiddlewareFunc {
	if mw == nil {
		return nil
	}
	return []echo.MiddlewareFunc{mw}
}
