package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/iliyamo/procurement-gateway/internal/logging"
	"github.com/iliyamo/procurement-gateway/internal/odata"
)

// VaultRef is everything the upload path needs to know about the caller's
// storage location. VaultURL is only what the PLM advertises and may be empty.
type VaultRef struct {
	LoginName string
	UserID    string
	VaultID   string
	VaultURL  string
}

// Resolver looks users and vaults up through OData.
type Resolver struct {
	client *odata.Client
	log    logging.Logger
}

func NewResolver(client *odata.Client, log logging.Logger) *Resolver {
	if log == nil {
		log = logging.Discard()
	}
	return &Resolver{client: client, log: log}
}

type userRow map[string]json.RawMessage

type userCollection struct {
	Value []userRow `json:"value"`
}

// User is a PLM user the credential was accepted for.
type User struct {
	ID        string
	LoginName string
}

// LookupUser reads the credential's own User row with the credential itself,
// so a token the PLM rejects never yields a login name.
func (r *Resolver) LookupUser(ctx context.Context, credential string) (User, error) {
	u, _, err := r.lookupUser(ctx, credential)
	return u, err
}

func (r *Resolver) lookupUser(ctx context.Context, credential string) (User, userRow, error) {
	login, err := ResolveLoginName(credential)
	if err != nil {
		return User{}, nil, err
	}
	var users userCollection
	path := odata.Resource("User",
		odata.Param{Key: "$filter", Value: "login_name eq " + odata.Literal(login)},
		odata.Param{Key: "$select", Value: "id,login_name,default_vault"},
	)
	if err := r.client.Get(ctx, credential, path, &users); err != nil {
		return User{}, nil, fmt.Errorf("%w: %w", ErrUserLookupFailed, err)
	}
	if len(users.Value) == 0 {
		return User{}, nil, fmt.Errorf("%w: %s", ErrUserNotFound, login)
	}
	first := users.Value[0]
	userID := stringField(first, "id")
	if userID == "" {
		return User{}, nil, fmt.Errorf("%w: user row for %s has no id", ErrUserLookupFailed, login)
	}
	return User{ID: userID, LoginName: login}, first, nil
}

// ResolveVault maps credential to the user's default vault. The advertised
// vault_url lookup is best effort; every other step must succeed.
func (r *Resolver) ResolveVault(ctx context.Context, credential string) (VaultRef, error) {
	user, first, err := r.lookupUser(ctx, credential)
	if err != nil {
		return VaultRef{}, err
	}
	login, userID := user.LoginName, user.ID
	log := r.log.With("login_name", login)

	var detail userRow
	if err := r.client.Get(ctx, credential,
		odata.Resource(odata.Key("User", userID), odata.Param{Key: "$select", Value: "default_vault"}),
		&detail); err != nil {
		return VaultRef{}, fmt.Errorf("%w: %w", ErrUserLookupFailed, err)
	}

	vaultID, ok := extractVaultID(detail)
	if !ok {
		// The collection read asked for the same field; use it if the keyed read
		// came back without it.
		vaultID, ok = extractVaultID(first)
	}
	if !ok {
		return VaultRef{}, fmt.Errorf("%w: user %s", ErrVaultNotConfigured, userID)
	}

	ref := VaultRef{LoginName: login, UserID: userID, VaultID: vaultID}

	var v userRow
	if err := r.client.Get(ctx, credential,
		odata.Resource(odata.Key("Vault", vaultID), odata.Param{Key: "$select", Value: "*"}),
		&v); err != nil {
		log.Warn(ctx, "vault entity lookup failed, continuing without vault_url", "vault_id", vaultID, "error", err)
	} else {
		ref.VaultURL = stringField(v, "vault_url")
	}

	log.Debug(ctx, "vault resolved", "user_id", userID, "vault_id", vaultID, "vault_url", ref.VaultURL)
	return ref, nil
}

// extractVaultID is the compatibility shim for the two shapes the PLM uses
// for a user's vault reference: the "default_vault@aras.id" annotation, or a
// plain "default_vault" that is either the id string or an expanded entity.
// The annotation wins when both are present.
func extractVaultID(row userRow) (string, bool) {
	if id := stringField(row, "default_vault@aras.id"); id != "" {
		return id, true
	}
	raw, ok := row["default_vault"]
	if !ok {
		return "", false
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		s = strings.TrimSpace(s)
		return s, s != ""
	}
	var obj struct {
		ID string `json:"id"`
	}
	if json.Unmarshal(raw, &obj) == nil && strings.TrimSpace(obj.ID) != "" {
		return strings.TrimSpace(obj.ID), true
	}
	return "", false
}

func stringField(row userRow, key string) string {
	raw, ok := row[key]
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return strings.TrimSpace(s)
}
