// Package upload runs the vault upload for one file end to end: resolve the
// caller's vault, open a transaction, send the bytes, commit with an embedded
// File creation, then create the File record the rest of the application
// reads. Steps run strictly in order; any failure is returned to the caller,
// which decides what to do instead. Nothing here retries.
package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/procurement-gateway/internal/identity"
	"github.com/iliyamo/procurement-gateway/internal/logging"
	"github.com/iliyamo/procurement-gateway/internal/model"
	"github.com/iliyamo/procurement-gateway/internal/odata"
	"github.com/iliyamo/procurement-gateway/internal/utils"
	"github.com/iliyamo/procurement-gateway/internal/vault"
)

// File is the upload input handed over by the submission flow.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// Result is what a successful orchestration produced.
type Result struct {
	MetadataID     string
	FileID         string
	VaultID        string
	TransactionID  string
	Record         vault.FileRecord
	CommitResponse string
}

// VaultResolver maps a credential to its vault.
type VaultResolver interface {
	ResolveVault(ctx context.Context, credential string) (identity.VaultRef, error)
}

// Transactor is the vault protocol.
type Transactor interface {
	Begin(ctx context.Context, token, vaultID string) (*vault.Transaction, error)
	Upload(ctx context.Context, token string, tx *vault.Transaction, fileID string, data []byte, fileName string) error
	Commit(ctx context.Context, token string, tx *vault.Transaction, batch vault.Batch) (string, error)
}

// RecordWriter creates entities in the system of record.
type RecordWriter interface {
	Post(ctx context.Context, token, path string, body, result any) error
}

// AttemptRecorder persists one audit row per orchestration.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, a model.UploadAttempt) error
}

// Orchestrator is safe for concurrent use; every call keeps its protocol
// state on its own stack.
type Orchestrator struct {
	resolver VaultResolver
	vault    Transactor
	records  RecordWriter
	recorder AttemptRecorder
	metrics  *Metrics
	log      logging.Logger
	timeout  time.Duration
	now      func() time.Time
	newID    func() string
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder stores an audit row per attempt.
func WithRecorder(r AttemptRecorder) Option { return func(o *Orchestrator) { o.recorder = r } }

// WithMetrics records Prometheus metrics.
func WithMetrics(m *Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

// WithTimeout bounds one whole orchestration.
func WithTimeout(d time.Duration) Option { return func(o *Orchestrator) { o.timeout = d } }

// WithClock replaces time.Now, which also drives batch boundaries.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// WithFileIDGenerator replaces NewClientFileID.
func WithFileIDGenerator(f func() string) Option { return func(o *Orchestrator) { o.newID = f } }

func NewOrchestrator(resolver VaultResolver, v Transactor, records RecordWriter, log logging.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = logging.Discard()
	}
	o := &Orchestrator{
		resolver: resolver,
		vault:    v,
		records:  records,
		log:      log,
		now:      time.Now,
		newID:    NewClientFileID,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewClientFileID mints a file key: a random UUID, dashes removed, upper case.
func NewClientFileID() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// UploadAndRegister sends file to the caller's vault and registers it. The
// run is detached from ctx's cancellation: once the vault transaction is
// open, a client disconnect does not cut it short. It is bounded by the
// configured timeout instead.
func (o *Orchestrator) UploadAndRegister(ctx context.Context, credential string, file File) (res Result, err error) {
	ctx = context.WithoutCancel(ctx)
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	attempt := model.UploadAttempt{
		FileName:  file.Name,
		MimeType:  file.MimeType,
		SizeBytes: int64(len(file.Data)),
		Digest:    utils.ContentDigest(file.Data),
		State:     vault.StateNotStarted.String(),
		StartedAt: o.now().UTC(),
	}
	var tx *vault.Transaction
	defer func() {
		if tx != nil {
			attempt.State = tx.State.String()
		}
		o.finish(ctx, &attempt, res, err)
	}()

	if len(file.Data) == 0 {
		return Result{}, fmt.Errorf("%w: %w", vault.ErrUploadFailed, vault.ErrEmptyFile)
	}
	mimeType := file.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	// 1. caller's vault
	var ref identity.VaultRef
	if err := o.step("resolve_vault", func() (err error) {
		ref, err = o.resolver.ResolveVault(ctx, credential)
		return err
	}); err != nil {
		return Result{}, err
	}
	attempt.LoginName = ref.LoginName
	attempt.VaultID = ref.VaultID
	log := o.log.With("login_name", ref.LoginName, "vault_id", ref.VaultID)

	// 2. one file id for the whole attempt
	fileID := o.newID()
	attempt.FileID = fileID
	log = log.With("file_id", fileID)

	// 3. begin
	if err := o.step("begin", func() (err error) {
		tx, err = o.vault.Begin(ctx, credential, ref.VaultID)
		return err
	}); err != nil {
		return Result{}, err
	}
	attempt.TransactionID = tx.ID
	attempt.BaseURL = tx.BaseURL

	// 4. bytes
	if err := o.step("upload", func() error {
		return o.vault.Upload(ctx, credential, tx, fileID, file.Data, file.Name)
	}); err != nil {
		return Result{}, err
	}

	// 5. batch
	spec := vault.FileSpec{
		FileID:   fileID,
		FileName: file.Name,
		MimeType: mimeType,
		Size:     int64(len(file.Data)),
		VaultID:  ref.VaultID,
	}
	batch, err := vault.EncodeFileCreationBatch(spec, vault.NewBoundaries(o.now()))
	if err != nil {
		tx.Abandon()
		return Result{}, fmt.Errorf("%w: %w", vault.ErrCommitFailed, err)
	}

	// 6. commit
	var commitResp string
	if err := o.step("commit", func() (err error) {
		commitResp, err = o.vault.Commit(ctx, credential, tx, batch)
		return err
	}); err != nil {
		return Result{}, err
	}

	// 7. File record in the system of record, same id and vault as the batch
	record := vault.NewFileRecord(spec)
	var created struct {
		ID string `json:"id"`
	}
	if err := o.step("create_metadata", func() error {
		return o.records.Post(ctx, credential, "File", record, &created)
	}); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrMetadataCreateFailed, err)
	}

	// 8. id to reference from the procurement request
	metadataID := created.ID
	if metadataID == "" {
		metadataID = fileID
	}
	log.Info(ctx, "file registered", "metadata_id", metadataID, "transaction_id", tx.ID, "size", len(file.Data))

	return Result{
		MetadataID:     metadataID,
		FileID:         fileID,
		VaultID:        ref.VaultID,
		TransactionID:  tx.ID,
		Record:         record,
		CommitResponse: commitResp,
	}, nil
}

func (o *Orchestrator) step(name string, fn func() error) error {
	start := o.now()
	err := fn()
	o.metrics.ObserveStep(name, o.now().Sub(start).Seconds())
	return err
}

func (o *Orchestrator) finish(ctx context.Context, a *model.UploadAttempt, res Result, err error) {
	a.FinishedAt = o.now().UTC()
	if err != nil {
		a.Outcome = model.OutcomeFailed
		a.ErrorKind = Kind(err)
		a.ErrorMessage = utils.TruncateUTF8(err.Error(), 1024)
		if a.State != vault.StateCommitted.String() && a.TransactionID != "" {
			a.State = vault.StateAbandoned.String()
		}
		o.log.Error(ctx, "vault upload failed",
			"kind", a.ErrorKind,
			"file_id", a.FileID,
			"vault_id", a.VaultID,
			"transaction_id", a.TransactionID,
			"state", a.State,
			"error", err,
		)
		if oe, ok := odata.AsError(err); ok && oe.Structured() {
			o.log.Error(ctx, "vault upload odata error", "code", oe.Code, "message", oe.Message, "target", oe.Target)
		}
	} else {
		a.Outcome = model.OutcomeRegistered
		a.MetadataID = res.MetadataID
	}
	o.metrics.RecordUpload(a.Outcome, a.ErrorKind, int(a.SizeBytes))

	if o.recorder == nil {
		return
	}
	// the attempt may have ended on its own deadline; the audit row still goes in
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if rerr := o.recorder.RecordAttempt(rctx, *a); rerr != nil && !errors.Is(rerr, context.Canceled) {
		o.log.Warn(ctx, "record upload attempt failed", "file_id", a.FileID, "error", rerr)
	}
}
