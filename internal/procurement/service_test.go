package procurement

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/procurement-gateway/internal/logging"
	q "github.com/iliyamo/procurement-gateway/internal/queue"
	"github.com/iliyamo/procurement-gateway/internal/upload"
	"github.com/iliyamo/procurement-gateway/internal/vault"
)

type fakeUploader struct {
	res   upload.Result
	err   error
	calls int
}

func (f *fakeUploader) UploadAndRegister(_ context.Context, _ string, _ upload.File) (upload.Result, error) {
	f.calls++
	return f.res, f.err
}

type fakeRecords struct {
	path    string
	payload map[string]any
	resp    string
	err     error
}

func (f *fakeRecords) Post(_ context.Context, _ string, path string, body, result any) error {
	f.path = path
	f.payload = body.(map[string]any)
	if f.err != nil {
		return f.err
	}
	return json.Unmarshal([]byte(f.resp), result)
}

type fakeEvents struct {
	events []q.ProcurementSubmittedEvent
	err    error
}

func (f *fakeEvents) PublishProcurementSubmitted(_ context.Context, ev q.ProcurementSubmittedEvent) error {
	f.events = append(f.events, ev)
	return f.err
}

func credential() string {
	enc := base64.RawURLEncoding
	return "Bearer " + enc.EncodeToString([]byte(`{"alg":"none"}`)) + "." +
		enc.EncodeToString([]byte(`{"preferred_username":"jdoe"}`)) + ".sig"
}

func newService(u Uploader, r RecordWriter, e EventPublisher) *Service {
	s := NewService(u, r, e, nil, logging.Discard(), "")
	s.now = func() time.Time { return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC) }
	return s
}

func TestSubmit_VaultPath(t *testing.T) {
	up := &fakeUploader{res: upload.Result{MetadataID: "META1"}}
	rec := &fakeRecords{resp: `{"id":"REQ1","name":"Laptops"}`}
	ev := &fakeEvents{}
	s := newService(up, rec, ev)

	out, err := s.Submit(context.Background(), credential(), Request{
		Fields: map[string]any{FieldName: "Laptops"},
		File:   &upload.File{Name: "q.pdf", Data: []byte("abc")},
	})
	require.NoError(t, err)

	assert.Equal(t, "m_Procurement_Request", rec.path)
	assert.Equal(t, "META1", rec.payload[FieldQuote])
	assert.NotContains(t, rec.payload, FieldInlineFiles)
	assert.Equal(t, StorageVault, out.StorageMode)
	assert.Equal(t, "REQ1", out.RequestID)
	assert.Equal(t, "META1", out.FileRef)
	assert.Empty(t, out.FallbackKind)
	assert.JSONEq(t, `{"id":"REQ1","name":"Laptops"}`, string(out.Response))

	require.Len(t, ev.events, 1)
	assert.Equal(t, q.ProcurementSubmittedEvent{
		RequestID:   "REQ1",
		LoginName:   "jdoe",
		Name:        "Laptops",
		StorageMode: StorageVault,
		FileRef:     "META1",
		FileName:    "q.pdf",
		FileSize:    3,
		SubmittedAt: "2026-10-15T09:00:00Z",
	}, ev.events[0])
}

func TestSubmit_FallsBackInline(t *testing.T) {
	up := &fakeUploader{err: fmt.Errorf("begin: %w", vault.ErrVaultUnreachable)}
	rec := &fakeRecords{resp: `{"id":"REQ2"}`}
	ev := &fakeEvents{}
	s := newService(up, rec, ev)

	out, err := s.Submit(context.Background(), credential(), Request{
		Fields: map[string]any{FieldName: "Chairs"},
		File:   &upload.File{Name: "q.txt", MimeType: "text/plain", Data: []byte("hi")},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, up.calls, "no vault retry")
	assert.Equal(t, StorageInline, out.StorageMode)
	assert.Equal(t, "VaultUnreachable", out.FallbackKind)
	assert.NotContains(t, rec.payload, FieldQuote)
	files := rec.payload[FieldInlineFiles].([]InlineFile)
	require.Len(t, files, 1)
	assert.Equal(t, InlineFile{FileName: "q.txt", FileContent: "aGk=", FileType: "text/plain"}, files[0])

	require.Len(t, ev.events, 1)
	assert.Equal(t, "VaultUnreachable", ev.events[0].FallbackKind)
}

func TestSubmit_NoFile(t *testing.T) {
	up := &fakeUploader{}
	rec := &fakeRecords{resp: `{"id":"REQ3"}`}
	s := newService(up, rec, nil)

	out, err := s.Submit(context.Background(), credential(), Request{Fields: map[string]any{"name": "Desk"}})
	require.NoError(t, err)
	assert.Equal(t, 0, up.calls)
	assert.Equal(t, StorageNone, out.StorageMode)
	assert.Equal(t, map[string]any{"name": "Desk"}, rec.payload)
}

func TestSubmit_CreateFailed(t *testing.T) {
	cause := errors.New("odata 400: bad")
	rec := &fakeRecords{err: cause}
	ev := &fakeEvents{}
	s := newService(&fakeUploader{}, rec, ev)

	_, err := s.Submit(context.Background(), credential(), Request{Fields: map[string]any{"name": "Desk"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCreateFailed)
	assert.ErrorIs(t, err, cause)
	assert.Empty(t, ev.events)
}

func TestSubmit_PublishFailureIgnored(t *testing.T) {
	rec := &fakeRecords{resp: `{"id":"REQ4"}`}
	ev := &fakeEvents{err: errors.New("broker down")}
	s := newService(&fakeUploader{}, rec, ev)

	out, err := s.Submit(context.Background(), credential(), Request{Fields: map[string]any{"name": "Desk"}})
	require.NoError(t, err)
	assert.Equal(t, "REQ4", out.RequestID)
	assert.Len(t, ev.events, 1)
}
