package upload

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/procurement-gateway/internal/identity"
	"github.com/iliyamo/procurement-gateway/internal/model"
	"github.com/iliyamo/procurement-gateway/internal/odata"
	"github.com/iliyamo/procurement-gateway/internal/vault"
)

// plm fakes both the OData entity endpoint (/odata/...) and three vault
// candidate bases (/v1/, /v2/, /v3/).
type plm struct {
	mu           sync.Mutex
	vaultField   map[string]any
	beginStatus  map[string]int
	commitStatus int
	commitBody   string
	fileStatus   int
	calls        []string
	uploadFileID string
	commitBatch  []byte
	commitCT     string
	createdFile  map[string]any
}

func (p *plm) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	body, _ := io.ReadAll(r.Body)
	p.calls = append(p.calls, r.Method+" "+r.URL.Path)

	switch {
	case r.URL.Path == "/odata/User":
		_ = json.NewEncoder(w).Encode(map[string]any{"value": []any{map[string]any{"id": "U1", "login_name": "jdoe"}}})
	case r.URL.Path == "/odata/User('U1')":
		_ = json.NewEncoder(w).Encode(p.vaultField)
	case r.URL.Path == "/odata/Vault('V1')":
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "V1", "vault_url": "http://advertised/vault"})
	case r.URL.Path == "/odata/File":
		if p.fileStatus != 0 {
			w.WriteHeader(p.fileStatus)
			_, _ = w.Write([]byte(`{"error":{"code":"dup","message":"exists"}}`))
			return
		}
		_ = json.Unmarshal(body, &p.createdFile)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(body)
	case strings.HasSuffix(r.URL.Path, "vault.BeginTransaction"):
		base := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")[0]
		if s := p.beginStatus[base]; s != 0 {
			w.WriteHeader(s)
			return
		}
		_, _ = w.Write([]byte(`{"transactionId":"TX1"}`))
	case strings.HasSuffix(r.URL.Path, "vault.UploadFile"):
		p.uploadFileID = r.URL.Query().Get("fileId")
		w.WriteHeader(http.StatusOK)
	case strings.HasSuffix(r.URL.Path, "vault.CommitTransaction"):
		p.commitBatch = body
		p.commitCT = r.Header.Get("Content-Type")
		if p.commitStatus != 0 {
			w.WriteHeader(p.commitStatus)
			_, _ = w.Write([]byte(p.commitBody))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (p *plm) count(prefix string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

type memRecorder struct {
	rows []model.UploadAttempt
}

func (m *memRecorder) RecordAttempt(_ context.Context, a model.UploadAttempt) error {
	m.rows = append(m.rows, a)
	return nil
}

func credential() string {
	enc := base64.RawURLEncoding.EncodeToString
	return "Bearer " + enc([]byte(`{"alg":"none"}`)) + "." + enc([]byte(`{"preferred_username":"jdoe"}`)) + ".sig"
}

func setup(t *testing.T, p *plm) (*Orchestrator, *memRecorder, *Metrics) {
	t.Helper()
	server := httptest.NewServer(p)
	t.Cleanup(server.Close)

	od := odata.New(server.URL+"/odata", time.Second)
	vc := vault.NewClient([]string{server.URL + "/v1", server.URL + "/v2", server.URL + "/v3"}, server.Client(), nil)
	rec := &memRecorder{}
	m := NewMetrics(prometheus.NewRegistry())
	o := NewOrchestrator(identity.NewResolver(od, nil), vc, od, nil,
		WithRecorder(rec),
		WithMetrics(m),
		WithTimeout(5*time.Second),
		WithFileIDGenerator(func() string { return "FILEID0001" }),
		WithClock(func() time.Time { return time.UnixMilli(1700000000000) }),
	)
	return o, rec, m
}

func quote() File {
	return File{Name: "quote.pdf", MimeType: "application/pdf", Data: []byte("%PDF quote body")}
}

func TestUploadAndRegister_HappyPath(t *testing.T) {
	p := &plm{vaultField: map[string]any{"default_vault@aras.id": "V1"}}
	o, rec, m := setup(t, p)

	res, err := o.UploadAndRegister(context.Background(), credential(), quote())
	require.NoError(t, err)
	assert.Equal(t, "FILEID0001", res.MetadataID)
	assert.Equal(t, "FILEID0001", res.FileID)
	assert.Equal(t, "V1", res.VaultID)
	assert.Equal(t, "TX1", res.TransactionID)
	assert.Equal(t, `{"ok":true}`, res.CommitResponse)

	// same file id in upload, commit batch and metadata create
	assert.Equal(t, "FILEID0001", p.uploadFileID)
	assert.Equal(t, "multipart/mixed; boundary=batch_1700000000000", p.commitCT)
	_, batchRec, err := vault.DecodeFileCreationBatch(p.commitBatch, "batch_1700000000000")
	require.NoError(t, err)
	assert.Equal(t, "FILEID0001", batchRec.ID)
	assert.Equal(t, "V1", batchRec.Located[0].RelatedID)
	assert.Equal(t, "FILEID0001", p.createdFile["id"])
	located := p.createdFile["located"].([]any)[0].(map[string]any)
	assert.Equal(t, "FILEID0001", located["id"])
	assert.Equal(t, "V1", located["related_id"])
	assert.EqualValues(t, 1, located["file_version"])

	assert.Equal(t, 1, p.count("POST /v1/vault.BeginTransaction"))
	assert.Zero(t, p.count("POST /v2/"))

	require.Len(t, rec.rows, 1)
	row := rec.rows[0]
	assert.Equal(t, model.OutcomeRegistered, row.Outcome)
	assert.Equal(t, "committed", row.State)
	assert.Equal(t, "jdoe", row.LoginName)
	assert.Equal(t, "TX1", row.TransactionID)
	assert.Len(t, row.Digest, 64)
	assert.EqualValues(t, 15, row.SizeBytes)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.UploadsTotal.WithLabelValues("registered", "")))
}

func TestUploadAndRegister_VaultDown(t *testing.T) {
	p := &plm{
		vaultField:  map[string]any{"default_vault": "V1"},
		beginStatus: map[string]int{"v1": 503, "v2": 502, "v3": 500},
	}
	o, rec, m := setup(t, p)

	_, err := o.UploadAndRegister(context.Background(), credential(), quote())
	require.ErrorIs(t, err, vault.ErrVaultUnreachable)
	assert.Equal(t, "VaultUnreachable", Kind(err))

	var ue *vault.UnreachableError
	require.True(t, errors.As(err, &ue))
	assert.True(t, strings.HasSuffix(ue.Last().BaseURL, "/v3/"))
	assert.Zero(t, p.count("POST /odata/File"))

	require.Len(t, rec.rows, 1)
	assert.Equal(t, model.OutcomeFailed, rec.rows[0].Outcome)
	assert.Equal(t, "VaultUnreachable", rec.rows[0].ErrorKind)
	assert.Equal(t, "not_started", rec.rows[0].State)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UploadsTotal.WithLabelValues("failed", "VaultUnreachable")))
}

func TestUploadAndRegister_NoVaultConfigured(t *testing.T) {
	p := &plm{vaultField: map[string]any{}}
	o, rec, _ := setup(t, p)

	_, err := o.UploadAndRegister(context.Background(), credential(), quote())
	require.ErrorIs(t, err, identity.ErrVaultNotConfigured)
	assert.Zero(t, p.count("POST /v1/"))
	require.Len(t, rec.rows, 1)
	assert.Empty(t, rec.rows[0].FileID)
	assert.Equal(t, "VaultNotConfigured", rec.rows[0].ErrorKind)
}

func TestUploadAndRegister_CommitRejected(t *testing.T) {
	p := &plm{
		vaultField:   map[string]any{"default_vault@aras.id": "V1"},
		commitStatus: http.StatusBadRequest,
		commitBody:   `{"error":{"code":"X","message":"Y"}}`,
	}
	o, rec, _ := setup(t, p)

	_, err := o.UploadAndRegister(context.Background(), credential(), quote())
	require.ErrorIs(t, err, vault.ErrCommitFailed)

	var se *vault.StatusError
	require.True(t, errors.As(err, &se))
	require.NotNil(t, se.OData)
	assert.Equal(t, "X", se.OData.Code)
	assert.Equal(t, "Y", se.OData.Message)
	assert.Zero(t, p.count("POST /odata/File"))

	require.Len(t, rec.rows, 1)
	assert.Equal(t, "abandoned", rec.rows[0].State)
	assert.Equal(t, "TX1", rec.rows[0].TransactionID)
	assert.Equal(t, "CommitFailed", rec.rows[0].ErrorKind)
}

func TestUploadAndRegister_MetadataCreateFailed(t *testing.T) {
	p := &plm{
		vaultField: map[string]any{"default_vault@aras.id": "V1"},
		fileStatus: http.StatusConflict,
	}
	o, rec, _ := setup(t, p)

	_, err := o.UploadAndRegister(context.Background(), credential(), quote())
	require.ErrorIs(t, err, ErrMetadataCreateFailed)
	oe, ok := odata.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "dup", oe.Code)
	require.Len(t, rec.rows, 1)
	assert.Equal(t, "committed", rec.rows[0].State)
}

func TestUploadAndRegister_EmptyFile(t *testing.T) {
	p := &plm{vaultField: map[string]any{"default_vault@aras.id": "V1"}}
	o, _, _ := setup(t, p)

	_, err := o.UploadAndRegister(context.Background(), credential(), File{Name: "empty.txt"})
	assert.ErrorIs(t, err, vault.ErrEmptyFile)
	assert.Empty(t, p.calls)
}

func TestUploadAndRegister_IgnoresCallerCancellation(t *testing.T) {
	p := &plm{vaultField: map[string]any{"default_vault@aras.id": "V1"}}
	o, _, _ := setup(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := o.UploadAndRegister(ctx, credential(), quote())
	require.NoError(t, err)
}

func TestNewClientFileID(t *testing.T) {
	a, b := NewClientFileID(), NewClientFileID()
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
	assert.Equal(t, strings.ToUpper(a), a)
	assert.NotContains(t, a, "-")
}

func TestKind(t *testing.T) {
	assert.Equal(t, "", Kind(nil))
	assert.Equal(t, "MalformedCredential", Kind(identity.ErrMalformedCredential))
	assert.Equal(t, "UploadFailed", Kind(&vault.StatusError{Kind: vault.ErrUploadFailed}))
	assert.Equal(t, "Unknown", Kind(errors.New("other")))
}

func TestFinish_LongErrorKeepsRunesWhole(t *testing.T) {
	o, rec, _ := setup(t, &plm{})
	a := model.UploadAttempt{FileID: "FILEID0001", TransactionID: "T1", State: vault.StateChunkUploaded.String()}

	o.finish(context.Background(), &a, Result{}, errors.New(strings.Repeat("a", 1023)+"é"))

	require.Len(t, rec.rows, 1)
	got := rec.rows[0]
	assert.True(t, utf8.ValidString(got.ErrorMessage))
	assert.Equal(t, strings.Repeat("a", 1023), got.ErrorMessage)
	assert.Equal(t, vault.StateAbandoned.String(), got.State)
}
