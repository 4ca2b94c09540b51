// Package apierror renders failures in the gateway's error envelope:
//
//	{"error":{"status":502,"message":"...","details":...,"timestamp":"..."}}
package apierror

import (
	"time"

	"github.com/labstack/echo/v4"
)

type Body struct {
	Error Detail `json:"error"`
}

type Detail struct {
	Status    int    `json:"status"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Now is swapped in tests.
var Now = time.Now

// New builds an envelope stamped with the current UTC time.
func New(status int, message string, details any) Body {
	return Body{Error: Detail{
		Status:    status,
		Message:   message,
		Details:   details,
		Timestamp: Now().UTC().Format(time.RFC3339),
	}}
}

// Write sends the envelope as the response.
func Write(c echo.Context, status int, message string, details any) error {
	return c.JSON(status, New(status, message, details))
}
