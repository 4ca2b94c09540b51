// Package identity turns a caller's bearer credential into the PLM user it
// belongs to and the vault that user stores files in.
//
// The credential's signature is never checked here. The issuing identity
// provider and the OData server that receives the same token are the
// authorities; this package only reads the login name out of it.
package identity

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/procurement-gateway/internal/odata"
)

// LoginClaims lists the payload fields that may carry the login name, most
// authoritative first.
var LoginClaims = []string{
	"preferred_username",
	"username",
	"unique_name",
	"upn",
	"sub",
	"name",
	"email",
}

var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// DecodeClaims returns the unverified payload of a three-part token.
func DecodeClaims(credential string) (jwt.MapClaims, error) {
	raw := odata.StripBearer(credential)
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedCredential, len(parts))
	}
	payload, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrMalformedCredential, err)
	}
	var claims jwt.MapClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: payload json: %v", ErrMalformedCredential, err)
	}
	return claims, nil
}

// ResolveLoginName extracts the login identifier from credential, taking the
// first non-empty string claim in LoginClaims order.
func ResolveLoginName(credential string) (string, error) {
	claims, err := DecodeClaims(credential)
	if err != nil {
		return "", err
	}
	for _, k := range LoginClaims {
		if v, ok := claims[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}
	return "", ErrIdentityNotFound
}
