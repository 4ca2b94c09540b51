package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/procurement-gateway/internal/apierror"
	"github.com/iliyamo/procurement-gateway/internal/identity"
	"github.com/iliyamo/procurement-gateway/internal/logging"
	"github.com/iliyamo/procurement-gateway/internal/middleware"
	"github.com/iliyamo/procurement-gateway/internal/model"
	"github.com/iliyamo/procurement-gateway/internal/odata"
)

// AbandonedLister lists a user's vault transactions that were opened but
// never committed.
type AbandonedLister interface {
	AbandonedSince(ctx context.Context, loginName string, since time.Time, limit int) ([]model.UploadAttempt, error)
}

// UserVerifier asks the PLM who the credential belongs to.
type UserVerifier interface {
	LookupUser(ctx context.Context, credential string) (identity.User, error)
}

// UploadAuditHandler exposes the caller's own upload audit. A nil Attempts
// means the audit database is not configured.
type UploadAuditHandler struct {
	Attempts AbandonedLister
	Users    UserVerifier
	Now      func() time.Time
	Log      logging.Logger
}

func NewUploadAuditHandler(a AbandonedLister, users UserVerifier, log logging.Logger) *UploadAuditHandler {
	if log == nil {
		log = logging.Discard()
	}
	return &UploadAuditHandler{Attempts: a, Users: users, Now: time.Now, Log: log}
}

type abandonedUpload struct {
	FileID        string    `json:"file_id"`
	LoginName     string    `json:"login_name"`
	VaultID       string    `json:"vault_id"`
	TransactionID string    `json:"transaction_id"`
	BaseURL       string    `json:"base_url,omitempty"`
	ErrorKind     string    `json:"error_kind,omitempty"`
	StartedAt     time.Time `json:"started_at"`
}

// Abandoned: GET /v1/uploads/abandoned?since=24h&limit=50
func (h *UploadAuditHandler) Abandoned(c echo.Context) error {
	if h.Attempts == nil {
		return apierror.Write(c, http.StatusServiceUnavailable, "upload audit is not enabled", nil)
	}

	window := 24 * time.Hour
	if s := c.QueryParam("since"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d <= 0 {
			return apierror.Write(c, http.StatusBadRequest, "invalid since", "expected a positive duration like 24h")
		}
		window = d
	}
	limit := 50
	if s := c.QueryParam("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > 500 {
			return apierror.Write(c, http.StatusBadRequest, "invalid limit", "expected 1..500")
		}
		limit = n
	}

	ctx := c.Request().Context()
	user, err := h.Users.LookupUser(ctx, middleware.Credential(c))
	if err != nil {
		return h.verifyError(c, err)
	}

	rows, err := h.Attempts.AbandonedSince(ctx, user.LoginName, h.Now().Add(-window), limit)
	if err != nil {
		return apierror.Write(c, http.StatusInternalServerError, "audit query failed", nil)
	}
	out := make([]abandonedUpload, 0, len(rows))
	for _, r := range rows {
		out = append(out, abandonedUpload{
			FileID:        r.FileID,
			LoginName:     r.LoginName,
			VaultID:       r.VaultID,
			TransactionID: r.TransactionID,
			BaseURL:       r.BaseURL,
			ErrorKind:     r.ErrorKind,
			StartedAt:     r.StartedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out, "count": len(out)})
}

func (h *UploadAuditHandler) verifyError(c echo.Context, err error) error {
	if oe, ok := odata.AsError(err); ok && oe.IsAuthError() {
		return apierror.Write(c, oe.StatusCode, "credential rejected by PLM", nil)
	}
	if errors.Is(err, identity.ErrUserNotFound) || errors.Is(err, identity.ErrMalformedCredential) ||
		errors.Is(err, identity.ErrIdentityNotFound) {
		return apierror.Write(c, http.StatusForbidden, "credential names no PLM user", nil)
	}
	h.Log.Warn(c.Request().Context(), "user verification failed", "error", err)
	return apierror.Write(c, http.StatusBadGateway, "user verification failed", nil)
}
