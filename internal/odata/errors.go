package odata

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/iliyamo/procurement-gateway/internal/utils"
)

// ErrorDetail is one entry of an OData error's "details" array.
type ErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Target  string `json:"target,omitempty"`
}

// Error is a non-2xx OData response. Code/Message/Target/Details/InnerError
// are filled when the body follows the {"error":{...}} convention; Body always
// keeps the raw text for diagnostics.
type Error struct {
	StatusCode int             `json:"-"`
	Code       string          `json:"code,omitempty"`
	Message    string          `json:"message,omitempty"`
	Target     string          `json:"target,omitempty"`
	Details    []ErrorDetail   `json:"details,omitempty"`
	InnerError json.RawMessage `json:"innererror,omitempty"`
	Body       string          `json:"-"`
}

func (e *Error) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("odata %d: %s: %s", e.StatusCode, e.Code, e.Message)
	case e.Message != "":
		return fmt.Sprintf("odata %d: %s", e.StatusCode, e.Message)
	case e.Body != "":
		return fmt.Sprintf("odata %d: %s", e.StatusCode, truncate(e.Body, 512))
	default:
		return fmt.Sprintf("odata %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
}

// Structured reports whether the body carried an OData error object.
func (e *Error) Structured() bool { return e.Code != "" || e.Message != "" }

// IsNotFound reports whether the server answered 404.
func (e *Error) IsNotFound() bool { return e.StatusCode == http.StatusNotFound }

// IsAuthError reports whether the server rejected the bearer token.
func (e *Error) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// ParseError builds an *Error from a failed response. It never fails: a body
// that is not an OData error object just leaves the structured fields empty.
func ParseError(status int, body []byte) *Error {
	e := &Error{StatusCode: status, Body: string(body)}
	var env struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(body, &env) != nil || len(env.Error) == 0 {
		return e
	}
	// Some servers send "error" as a bare string.
	var msg string
	if json.Unmarshal(env.Error, &msg) == nil {
		e.Message = msg
		return e
	}
	var parsed Error
	if json.Unmarshal(env.Error, &parsed) == nil {
		e.Code = parsed.Code
		e.Message = parsed.Message
		e.Target = parsed.Target
		e.Details = parsed.Details
		e.InnerError = parsed.InnerError
	}
	return e
}

// AsError unwraps err to an *Error if one is in the chain.
func AsError(err error) (*Error, bool) {
	var oe *Error
	if errors.As(err, &oe) {
		return oe, true
	}
	return nil, false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return utils.TruncateUTF8(s, n) + "..."
}
