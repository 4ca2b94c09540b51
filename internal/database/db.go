// Package database opens the MySQL connection used for the upload audit and
// creates its table on startup.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Params names the MySQL server and schema to connect to.
type Params struct {
	User, Pass, Host, Port, Name string
}

// DSN builds the driver connection string.
func (p Params) DSN() string {
	c := mysql.NewConfig()
	c.User = p.User
	c.Passwd = p.Pass
	c.Net = "tcp"
	c.Addr = p.Host + ":" + p.Port
	c.DBName = p.Name
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	c.ParseTime = true
	c.Loc = time.UTC
	c.Params = map[string]string{"charset": "utf8mb4"}
	return c.FormatDSN()
}

// Open connects to MySQL and verifies the connection.
func Open(ctx context.Context, p Params) (*sql.DB, error) {
	db, err := sql.Open("mysql", p.DSN())
	if err != nil {
		return nil, err
	}

	// The audit writes one row per upload; a small pool is plenty.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql %s: %w", p.Host, err)
	}
	return db, nil
}

const uploadAttemptsDDL = `CREATE TABLE IF NOT EXISTS upload_attempts (
	id             BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
	file_id        CHAR(32)      NOT NULL,
	login_name     VARCHAR(255)  NOT NULL,
	vault_id       VARCHAR(64)   NOT NULL,
	transaction_id VARCHAR(128)  NULL,
	base_url       VARCHAR(512)  NULL,
	file_name      VARCHAR(255)  NOT NULL,
	mime_type      VARCHAR(255)  NOT NULL,
	size_bytes     BIGINT        NOT NULL,
	digest         CHAR(64)      NOT NULL,
	state          VARCHAR(32)   NOT NULL,
	outcome        VARCHAR(16)   NOT NULL,
	error_kind     VARCHAR(64)   NULL,
	error_message  VARCHAR(1024) NULL,
	metadata_id    VARCHAR(64)   NULL,
	started_at     DATETIME(3)   NOT NULL,
	finished_at    DATETIME(3)   NOT NULL,
	KEY idx_upload_attempts_file (file_id),
	KEY idx_upload_attempts_state (state, started_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// EnsureSchema creates the audit table if it does not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, uploadAttemptsDDL); err != nil {
		return fmt.Errorf("create upload_attempts: %w", err)
	}
	return nil
}
