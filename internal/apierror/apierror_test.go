package apierror

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite(t *testing.T) {
	Now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600)) }
	t.Cleanup(func() { Now = time.Now })

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	require.NoError(t, Write(c, http.StatusBadGateway, "create failed", map[string]string{"code": "X"}))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, map[string]any{"error": map[string]any{
		"status":    float64(502),
		"message":   "create failed",
		"details":   map[string]any{"code": "X"},
		"timestamp": "2026-01-02T02:04:05Z",
	}}, got)
}

func TestNew_OmitsEmptyDetails(t *testing.T) {
	raw, err := json.Marshal(New(400, "bad", nil))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "details")
}
