package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"errors"   // errors distinguishes credential failure classes
	"net/http" // HTTP status codes for responses
	"strings"  // string utilities for prefix checking and trimming

	"github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

	"github.com/iliyamo/procurement-gateway/internal/apierror"
	"github.com/iliyamo/procurement-gateway/internal/identity"
)

// BearerCredential requires an "Authorization: Bearer <token>" header and
// stores the raw token plus the login name it names in the context.  The
// token is NOT verified here: the PLM verifies it on every call the gateway
// forwards it to, so this only rejects requests that could never succeed.
// Handlers read the values back through Credential and LoginName.
func BearerCredential() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if len(auth) < 7 || !strings.EqualFold(auth[:7], "Bearer ") {
				return apierror.Write(c, http.StatusUnauthorized, "missing bearer token", nil)
			}
			raw := strings.TrimSpace(auth[7:])

			login, err := identity.ResolveLoginName(raw)
			switch {
			case errors.Is(err, identity.ErrMalformedCredential):
				return apierror.Write(c, http.StatusUnauthorized, "malformed bearer token", nil)
			case errors.Is(err, identity.ErrIdentityNotFound):
				return apierror.Write(c, http.StatusUnauthorized, "bearer token names no user", nil)
			case err != nil:
				return apierror.Write(c, http.StatusUnauthorized, "invalid bearer token", nil)
			}

			c.Set(ctxCredential, raw)
			c.Set(ctxLoginName, login)
			return next(c)
		}
	}
}
