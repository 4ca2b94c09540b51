// Package repository persists gateway records in MySQL. Repositories wrap a
// *sql.DB and translate driver failures into errors callers can inspect.
package repository

import "errors"

// ErrNoDatabase is returned when a repository was built without a
// connection. Callers that treat the audit as optional check for it.
var ErrNoDatabase = errors.New("repository: no database configured")
