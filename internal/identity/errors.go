package identity

import "errors"

var (
	// ErrMalformedCredential: the bearer value is not a three-part token with
	// a decodable JSON payload.
	ErrMalformedCredential = errors.New("malformed credential")
	// ErrIdentityNotFound: the payload carries none of the login claims.
	ErrIdentityNotFound = errors.New("no login identifier in credential")
	// ErrUserLookupFailed: the user-record read did not succeed.
	ErrUserLookupFailed = errors.New("user lookup failed")
	// ErrUserNotFound: the user-record read returned no rows.
	ErrUserNotFound = errors.New("user not found")
	// ErrVaultNotConfigured: the user has no default vault.
	ErrVaultNotConfigured = errors.New("user has no default vault")
)
