package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/procurement-gateway/internal/model"
	"github.com/iliyamo/procurement-gateway/internal/utils"
)

// maxErrorMessage matches upload_attempts.error_message VARCHAR(1024).
const maxErrorMessage = 1024

// UploadAttemptRepo writes the vault upload audit trail.
type UploadAttemptRepo struct{ DB *sql.DB }

func NewUploadAttemptRepo(db *sql.DB) *UploadAttemptRepo { return &UploadAttemptRepo{DB: db} }

// RecordAttempt inserts one finished attempt.
func (r *UploadAttemptRepo) RecordAttempt(ctx context.Context, a model.UploadAttempt) error {
	if r == nil || r.DB == nil {
		return ErrNoDatabase
	}
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO upload_attempts
			(file_id, login_name, vault_id, transaction_id, base_url, file_name, mime_type,
			 size_bytes, digest, state, outcome, error_kind, error_message, metadata_id,
			 started_at, finished_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.FileID, a.LoginName, a.VaultID, nullIfEmpty(a.TransactionID), nullIfEmpty(a.BaseURL),
		a.FileName, a.MimeType, a.SizeBytes, a.Digest, a.State, a.Outcome,
		nullIfEmpty(a.ErrorKind), nullIfEmpty(utils.TruncateUTF8(a.ErrorMessage, maxErrorMessage)), nullIfEmpty(a.MetadataID),
		a.StartedAt.UTC(), a.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert upload attempt %s: %w", a.FileID, err)
	}
	return nil
}

// AbandonedSince lists attempts by loginName that opened a vault transaction
// but never committed it, newest first.
func (r *UploadAttemptRepo) AbandonedSince(ctx context.Context, loginName string, since time.Time, limit int) ([]model.UploadAttempt, error) {
	if r == nil || r.DB == nil {
		return nil, ErrNoDatabase
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, file_id, login_name, vault_id, transaction_id, base_url, state, error_kind, started_at
		   FROM upload_attempts
		  WHERE login_name = ? AND state = 'abandoned' AND transaction_id IS NOT NULL AND started_at >= ?
		  ORDER BY started_at DESC
		  LIMIT ?`, loginName, since.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.UploadAttempt
	for rows.Next() {
		var (
			a                model.UploadAttempt
			txID, base, kind sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.FileID, &a.LoginName, &a.VaultID, &txID, &base, &a.State, &kind, &a.StartedAt); err != nil {
			return nil, err
		}
		a.TransactionID, a.BaseURL, a.ErrorKind = txID.String, base.String, kind.String
		out = append(out, a)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
