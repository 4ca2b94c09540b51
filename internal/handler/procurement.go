package handler

import (
	"context"         // request context handed to the submission service
	"encoding/json"   // raw OData response passthrough
	"errors"          // classify service failures
	"io"              // read the uploaded quote
	"mime/multipart"  // uploaded file header
	"net/http"        // HTTP status codes and primitives
	"strings"         // trimming form values

	"github.com/go-playground/validator/v10" // struct validation for the submission form
	"github.com/labstack/echo/v4"            // Echo framework for HTTP routing

	"github.com/iliyamo/procurement-gateway/internal/apierror"
	"github.com/iliyamo/procurement-gateway/internal/logging"
	"github.com/iliyamo/procurement-gateway/internal/middleware"
	"github.com/iliyamo/procurement-gateway/internal/odata"
	"github.com/iliyamo/procurement-gateway/internal/procurement"
	"github.com/iliyamo/procurement-gateway/internal/upload"
)

// Submitter creates procurement requests.
type Submitter interface {
	Submit(ctx context.Context, credential string, req procurement.Request) (procurement.Outcome, error)
}

// ProcurementHandler serves POST /v1/procurement-requests.
type ProcurementHandler struct {
	Svc            Submitter
	MaxUploadBytes int64
	Validate       *validator.Validate
	Log            logging.Logger
}

func NewProcurementHandler(svc Submitter, maxUploadBytes int64, log logging.Logger) *ProcurementHandler {
	if log == nil {
		log = logging.Discard()
	}
	return &ProcurementHandler{
		Svc:            svc,
		MaxUploadBytes: maxUploadBytes,
		Validate:       validator.New(validator.WithRequiredStructEnabled()),
		Log:            log,
	}
}

// ----- DTOs -----

// submissionForm is the multipart form minus the file.
type submissionForm struct {
	Name        string  `form:"name" validate:"required,max=255"`
	Project     string  `form:"project" validate:"omitempty,max=255"`
	Description string  `form:"description" validate:"omitempty,max=4000"`
	Quantity    int     `form:"quantity" validate:"gte=0"`
	UnitPrice   float64 `form:"unit_price" validate:"gte=0"`
	Currency    string  `form:"currency" validate:"omitempty,iso4217"`
	NeededBy    string  `form:"needed_by" validate:"omitempty,datetime=2006-01-02"`
}

// fields maps the form onto procurement request properties, leaving out
// what the caller did not send.
func (f submissionForm) fields() map[string]any {
	out := map[string]any{procurement.FieldName: f.Name}
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set(procurement.FieldProject, f.Project)
	set(procurement.FieldDescription, f.Description)
	set(procurement.FieldCurrency, f.Currency)
	set(procurement.FieldNeededBy, f.NeededBy)
	if f.Quantity > 0 {
		out[procurement.FieldQuantity] = f.Quantity
	}
	if f.UnitPrice > 0 {
		out[procurement.FieldUnitPrice] = f.UnitPrice
	}
	return out
}

// Create: validate the form, read the optional quote and submit. Vault
// failures never surface here; the service falls back to an inline file.
func (h *ProcurementHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	var form submissionForm
	if err := c.Bind(&form); err != nil {
		return apierror.Write(c, http.StatusBadRequest, "invalid form", err.Error())
	}
	form.Name = strings.TrimSpace(form.Name)
	form.Currency = strings.ToUpper(strings.TrimSpace(form.Currency))
	if err := h.Validate.Struct(form); err != nil {
		return apierror.Write(c, http.StatusBadRequest, "validation failed", validationDetails(err))
	}

	req := procurement.Request{Fields: form.fields()}

	fh, err := c.FormFile("quote")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		// no attachment
	case err != nil:
		return apierror.Write(c, http.StatusBadRequest, "invalid quote upload", err.Error())
	default:
		if h.MaxUploadBytes > 0 && fh.Size > h.MaxUploadBytes {
			return apierror.Write(c, http.StatusRequestEntityTooLarge, "quote too large",
				map[string]int64{"max_bytes": h.MaxUploadBytes, "size": fh.Size})
		}
		file, err := readUpload(fh)
		if err != nil {
			return apierror.Write(c, http.StatusBadRequest, "could not read quote", err.Error())
		}
		if len(file.Data) > 0 {
			req.File = &file
		}
	}

	out, err := h.Svc.Submit(ctx, middleware.Credential(c), req)
	if err != nil {
		return h.submitError(c, err)
	}
	c.Response().Header().Set("X-Quote-Storage", out.StorageMode)
	return c.JSONBlob(http.StatusCreated, responseBody(out.Response))
}

func (h *ProcurementHandler) submitError(c echo.Context, err error) error {
	h.Log.Error(c.Request().Context(), "procurement submission failed",
		"login", middleware.LoginName(c), "error", err)

	if oe, ok := odata.AsError(err); ok {
		status := http.StatusBadGateway
		if oe.IsAuthError() {
			status = oe.StatusCode
		}
		var details any
		if oe.Structured() {
			details = oe
		}
		return apierror.Write(c, status, "procurement request could not be created", details)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apierror.Write(c, http.StatusGatewayTimeout, "procurement service timed out", nil)
	}
	return apierror.Write(c, http.StatusBadGateway, "procurement request could not be created", nil)
}

func readUpload(fh *multipart.FileHeader) (upload.File, error) {
	src, err := fh.Open()
	if err != nil {
		return upload.File{}, err
	}
	defer src.Close()
	data, err := io.ReadAll(src)
	if err != nil {
		return upload.File{}, err
	}
	return upload.File{
		Name:     fh.Filename,
		MimeType: fh.Header.Get(echo.HeaderContentType),
		Data:     data,
	}, nil
}

// responseBody returns the OData representation, or {} when the server
// answered 204 without one.
func responseBody(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("{}")
	}
	return raw
}

func validationDetails(err error) any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[formName(fe.Field())] = fe.Tag()
	}
	return out
}

// formName turns a struct field name into its form key.
func formName(field string) string {
	switch field {
	case "UnitPrice":
		return "unit_price"
	case "NeededBy":
		return "needed_by"
	default:
		return strings.ToLower(field)
	}
}
