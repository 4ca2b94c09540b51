package model

import "time"

// UploadAttempt is one run of the vault upload protocol for one file, as
// stored in the `upload_attempts` table. A row is written whether the attempt
// succeeded or not, so abandoned vault transactions can be traced.
//
// Fields:
//  ID            – primary key identifier.
//  FileID        – client file id minted for the attempt (empty if it
//                  failed before minting).
//  LoginName     – login resolved from the caller's credential.
//  VaultID       – vault the file was sent to.
//  TransactionID – vault transaction id, when one was opened.
//  BaseURL       – vault base URL that accepted BeginTransaction.
//  FileName      – original file name.
//  MimeType      – declared content type.
//  SizeBytes     – payload size.
//  Digest        – hex BLAKE2b-256 of the payload.
//  State         – last protocol state reached (not_started … committed, abandoned).
//  Outcome       – registered or failed.
//  ErrorKind     – taxonomy name of the failure (e.g. VaultUnreachable).
//  ErrorMessage  – failure text, truncated.
//  MetadataID    – id of the File record on success.
//  StartedAt     – when the attempt began.
//  FinishedAt    – when it ended.
type UploadAttempt struct {
	ID            uint64    // upload_attempts.id
	FileID        string    // upload_attempts.file_id
	LoginName     string    // upload_attempts.login_name
	VaultID       string    // upload_attempts.vault_id
	TransactionID string    // upload_attempts.transaction_id
	BaseURL       string    // upload_attempts.base_url
	FileName      string    // upload_attempts.file_name
	MimeType      string    // upload_attempts.mime_type
	SizeBytes     int64     // upload_attempts.size_bytes
	Digest        string    // upload_attempts.digest
	State         string    // upload_attempts.state
	Outcome       string    // upload_attempts.outcome
	ErrorKind     string    // upload_attempts.error_kind
	ErrorMessage  string    // upload_attempts.error_message
	MetadataID    string    // upload_attempts.metadata_id
	StartedAt     time.Time // upload_attempts.started_at
	FinishedAt    time.Time // upload_attempts.finished_at
}

const (
	OutcomeRegistered = "registered"
	OutcomeFailed     = "failed"
)
