package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/procurement-gateway/internal/handler"
)

func TestRegisterRoutes(t *testing.T) {
	e := echo.New()
	RegisterRoutes(e, Routes{
		Procurement: handler.NewProcurementHandler(nil, 1, nil),
		Files:       handler.NewFileHandler(nil, nil),
		Uploads:     handler.NewUploadAuditHandler(nil, nil, nil),
		Metrics:     http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) }),
	})

	got := map[string]bool{}
	for _, r := range e.Routes() {
		got[r.Method+" "+r.Path] = true
	}
	for _, want := range []string{
		"GET /healthz",
		"GET /readyz",
		"GET /metrics",
		"POST /v1/procurement-requests",
		"GET /v1/files/:id",
		"GET /v1/uploads/abandoned",
	} {
		assert.True(t, got[want], want)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, "# metrics", rec.Body.String())

	// the API requires a bearer token before any handler runs
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/files/F1", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
