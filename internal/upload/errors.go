package upload

import (
	"errors"

	"github.com/iliyamo/procurement-gateway/internal/identity"
	"github.com/iliyamo/procurement-gateway/internal/vault"
)

// ErrMetadataCreateFailed: the File record could not be created in the
// system of record after the vault commit.
var ErrMetadataCreateFailed = errors.New("file metadata create failed")

var kinds = []struct {
	err  error
	name string
}{
	{identity.ErrMalformedCredential, "MalformedCredential"},
	{identity.ErrIdentityNotFound, "IdentityNotFound"},
	{identity.ErrUserLookupFailed, "UserLookupFailed"},
	{identity.ErrUserNotFound, "UserNotFound"},
	{identity.ErrVaultNotConfigured, "VaultNotConfigured"},
	{vault.ErrVaultUnreachable, "VaultUnreachable"},
	{vault.ErrUploadFailed, "UploadFailed"},
	{vault.ErrCommitFailed, "CommitFailed"},
	{ErrMetadataCreateFailed, "MetadataCreateFailed"},
	{vault.ErrInvalidTransactionState, "InvalidTransactionState"},
}

// Kind names the failure class of err for logs, metrics and audit rows.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Unknown"
}
