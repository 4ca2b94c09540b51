// Package procurement submits procurement requests to the PLM. An attached
// quote goes through the vault upload first; if that fails for any reason
// the file is embedded inline instead so the request itself still gets
// created. Only a failure of the final create reaches the user.
package procurement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/procurement-gateway/internal/identity"
	"github.com/iliyamo/procurement-gateway/internal/logging"
	q "github.com/iliyamo/procurement-gateway/internal/queue"
	"github.com/iliyamo/procurement-gateway/internal/upload"
)

// ErrCreateFailed: the procurement request itself could not be created.
var ErrCreateFailed = errors.New("procurement request create failed")

// Storage modes reported per submission.
const (
	StorageNone   = "none"
	StorageVault  = "vault"
	StorageInline = "inline"
)

// Request is one submission: the entity properties plus an optional quote.
type Request struct {
	Fields map[string]any
	File   *upload.File
}

// Outcome is a created request plus how its attachment was stored.
type Outcome struct {
	Response     json.RawMessage
	RequestID    string
	StorageMode  string
	FileRef      string
	FallbackKind string
}

type Uploader interface {
	UploadAndRegister(ctx context.Context, credential string, file upload.File) (upload.Result, error)
}

type RecordWriter interface {
	Post(ctx context.Context, token, path string, body, result any) error
}

type EventPublisher interface {
	PublishProcurementSubmitted(ctx context.Context, event q.ProcurementSubmittedEvent) error
}

type Service struct {
	uploader Uploader
	records  RecordWriter
	events   EventPublisher
	metrics  *upload.Metrics
	log      logging.Logger
	entity   string
	now      func() time.Time
}

// NewService wires a submission service. events and metrics may be nil.
func NewService(uploader Uploader, records RecordWriter, events EventPublisher, metrics *upload.Metrics, log logging.Logger, entity string) *Service {
	if log == nil {
		log = logging.Discard()
	}
	if entity == "" {
		entity = "m_Procurement_Request"
	}
	return &Service{
		uploader: uploader,
		records:  records,
		events:   events,
		metrics:  metrics,
		log:      log,
		entity:   entity,
		now:      time.Now,
	}
}

// Submit creates the procurement request described by req.
func (s *Service) Submit(ctx context.Context, credential string, req Request) (Outcome, error) {
	out := Outcome{StorageMode: StorageNone}
	payload := clone(req.Fields)

	if req.File != nil {
		res, err := s.uploader.UploadAndRegister(ctx, credential, *req.File)
		if err != nil {
			kind := upload.Kind(err)
			s.log.Warn(ctx, "vault upload failed, attaching file inline",
				"kind", kind, "file_name", req.File.Name, "size", len(req.File.Data), "error", err)
			s.metrics.RecordFallback(kind)
			payload = AssembleInlinePayload(req.Fields, *req.File)
			out.StorageMode = StorageInline
			out.FallbackKind = kind
		} else {
			payload = AssembleVaultPayload(req.Fields, res.MetadataID)
			out.StorageMode = StorageVault
			out.FileRef = res.MetadataID
		}
	}

	var raw json.RawMessage
	if err := s.records.Post(ctx, credential, s.entity, payload, &raw); err != nil {
		s.log.Error(ctx, "procurement request create failed", "storage", out.StorageMode, "error", err)
		return Outcome{}, fmt.Errorf("%w: %w", ErrCreateFailed, err)
	}
	out.Response = raw
	out.RequestID = createdID(raw)
	s.log.Info(ctx, "procurement request created", "request_id", out.RequestID, "storage", out.StorageMode, "file_ref", out.FileRef)

	s.publish(ctx, credential, req, out)
	return out, nil
}

func (s *Service) publish(ctx context.Context, credential string, req Request, out Outcome) {
	if s.events == nil {
		return
	}
	login, _ := identity.ResolveLoginName(credential)
	ev := q.ProcurementSubmittedEvent{
		RequestID:    out.RequestID,
		LoginName:    login,
		Name:         stringOf(req.Fields[FieldName]),
		StorageMode:  out.StorageMode,
		FileRef:      out.FileRef,
		FallbackKind: out.FallbackKind,
		SubmittedAt:  s.now().UTC().Format(time.RFC3339),
	}
	if req.File != nil {
		ev.FileName = req.File.Name
		ev.FileSize = int64(len(req.File.Data))
	}
	// best effort: the request already exists
	if err := s.events.PublishProcurementSubmitted(context.WithoutCancel(ctx), ev); err != nil {
		s.log.Warn(ctx, "publish procurement.submitted failed", "request_id", out.RequestID, "error", err)
	}
}

func createdID(raw json.RawMessage) string {
	var v struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(raw, &v) != nil {
		return ""
	}
	return v.ID
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}
