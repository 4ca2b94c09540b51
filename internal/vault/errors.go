package vault

import (
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/procurement-gateway/internal/odata"
)

var (
	// ErrVaultUnreachable: no candidate base URL accepted BeginTransaction.
	ErrVaultUnreachable = errors.New("vault unreachable")
	// ErrUploadFailed: UploadFile did not succeed.
	ErrUploadFailed = errors.New("vault upload failed")
	// ErrCommitFailed: CommitTransaction did not succeed.
	ErrCommitFailed = errors.New("vault commit failed")
	// ErrInvalidTransactionState: a call was made out of protocol order.
	ErrInvalidTransactionState = errors.New("invalid vault transaction state")
	// ErrEmptyFile: zero-byte payloads cannot be described by a Content-Range.
	ErrEmptyFile = errors.New("empty file")
)

// StatusError is a non-2xx answer from a vault endpoint. Kind is
// ErrUploadFailed or ErrCommitFailed; OData is set when the body parsed as an
// OData error object.
type StatusError struct {
	Kind       error
	Op         string
	URL        string
	StatusCode int
	Body       string
	OData      *odata.Error
}

func (e *StatusError) Error() string {
	if e.OData != nil && e.OData.Structured() {
		return fmt.Sprintf("%s: %s returned %d: %s: %s", e.Kind, e.Op, e.StatusCode, e.OData.Code, e.OData.Message)
	}
	body := e.Body
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("%s: %s returned %d: %s", e.Kind, e.Op, e.StatusCode, body)
}

func (e *StatusError) Unwrap() []error {
	if e.OData != nil {
		return []error{e.Kind, e.OData}
	}
	return []error{e.Kind}
}

// UnreachableError lists every BeginTransaction attempt, in candidate order.
type UnreachableError struct {
	VaultID  string
	Attempts []Attempt
}

// Last is the final candidate tried.
func (e *UnreachableError) Last() Attempt {
	if len(e.Attempts) == 0 {
		return Attempt{}
	}
	return e.Attempts[len(e.Attempts)-1]
}

func (e *UnreachableError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("%s: vault %s: no candidate endpoints configured", ErrVaultUnreachable, e.VaultID)
	}
	tried := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		tried = append(tried, a.BaseURL)
	}
	last := e.Last()
	return fmt.Sprintf("%s: vault %s: tried %s; last error from %s: %v",
		ErrVaultUnreachable, e.VaultID, strings.Join(tried, ", "), last.BaseURL, last.Err)
}

func (e *UnreachableError) Unwrap() []error {
	if last := e.Last(); last.Err != nil {
		return []error{ErrVaultUnreachable, last.Err}
	}
	return []error{ErrVaultUnreachable}
}
