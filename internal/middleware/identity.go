package middleware

// identity.go holds the context keys BearerCredential fills and the accessors
// the rest of the application reads them through.

import (
	"github.com/labstack/echo/v4"
)

const (
	ctxCredential = "credential"
	ctxLoginName  = "login_name"
)

// Credential returns the raw bearer token of the request, or "".
func Credential(c echo.Context) string {
	s, _ := c.Get(ctxCredential).(string)
	return s
}

// LoginName returns the caller's login name, or "" when unauthenticated.
func LoginName(c echo.Context) string {
	s, _ := c.Get(ctxLoginName).(string)
	return s
}

// callerKey is the unverified login name, or "anon", for opt-in rate-limit keys.
func callerKey(c echo.Context) string {
	if s := LoginName(c); s != "" {
		return s
	}
	return "anon"
}
