package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/procurement-gateway/internal/apierror"
	"github.com/iliyamo/procurement-gateway/internal/logging"
	"github.com/iliyamo/procurement-gateway/internal/middleware"
	"github.com/iliyamo/procurement-gateway/internal/odata"
)

// RecordReader reads entities from the system of record.
type RecordReader interface {
	Get(ctx context.Context, token, path string, result any) error
}

// FileHandler serves File metadata records, e.g. the m_quote of a request.
type FileHandler struct {
	Records RecordReader
	Log     logging.Logger
}

func NewFileHandler(r RecordReader, log logging.Logger) *FileHandler {
	if log == nil {
		log = logging.Discard()
	}
	return &FileHandler{Records: r, Log: log}
}

// Get: GET /v1/files/:id, read with the caller's own credential so the PLM
// applies its access rules.
func (h *FileHandler) Get(c echo.Context) error {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" || len(id) > 64 {
		return apierror.Write(c, http.StatusBadRequest, "invalid file id", nil)
	}
	path := odata.Resource(odata.Key("File", id),
		odata.Param{Key: "$select", Value: "id,filename,file_type,file_size"},
		odata.Param{Key: "$expand", Value: "Located($select=id,file_version,related_id)"},
	)

	var rec json.RawMessage
	err := h.Records.Get(c.Request().Context(), middleware.Credential(c), path, &rec)
	if err == nil {
		return c.JSONBlob(http.StatusOK, rec)
	}

	if oe, ok := odata.AsError(err); ok {
		switch {
		case oe.IsNotFound():
			return apierror.Write(c, http.StatusNotFound, "file not found", nil)
		case oe.IsAuthError():
			return apierror.Write(c, oe.StatusCode, "access to file denied", nil)
		}
	}
	h.Log.Warn(c.Request().Context(), "file lookup failed", "file_id", id, "error", err)
	return apierror.Write(c, http.StatusBadGateway, "file lookup failed", nil)
}
