package config // package config loads application configuration from environment variables

import (
	"errors"  // errors reports aggregated configuration problems
	"fmt"     // fmt formats validation messages
	"log"     // log is used to report configuration errors and halt execution
	"net/url" // net/url derives vault candidates from the OData base
	"os"      // os provides access to environment variables
	"strings" // strings splits list-valued variables
	"time"    // time parses timeouts
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Everything the upload path talks to is configured
// here and handed to the components explicitly.
type Config struct {
	Env      string // application environment (e.g. "dev", "prod")
	Port     string // HTTP port to listen on
	LogLevel string // debug, info, warn or error

	ODataBaseURL      string        // base URL of the PLM OData service, with trailing slash
	VaultBaseURLs     []string      // ordered vault candidate base URLs
	ODataTimeout      time.Duration // per-request timeout for OData calls
	VaultTimeout      time.Duration // per-request timeout for vault calls
	UploadTimeout     time.Duration // bound on one whole upload orchestration
	MaxUploadBytes    int64         // largest accepted quote attachment
	ProcurementEntity string        // entity set procurement requests are created in

	DBUser string // audit database username
	DBPass string // audit database password (optional)
	DBHost string // audit database host; empty disables the audit
	DBPort string // audit database port number
	DBName string // audit database name

	RabbitMQURL      string // broker URL; empty disables events
	SubmissionLogDir string // directory the submission consumer writes to
}

// AuditEnabled reports whether upload attempts should be stored in MySQL.
func (c Config) AuditEnabled() bool { return c.DBHost != "" }

// Load reads configuration values from environment variables and returns a
// Config.  Missing or invalid values cause the program to exit with a fatal
// log message.
func Load() Config {
	cfg, err := FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return cfg
}

// FromEnv is Load without the exit, for callers that handle errors themselves.
func FromEnv() (Config, error) {
	var errs []error
	required := func(key string) string {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			errs = append(errs, fmt.Errorf("missing required env var: %s", key))
		}
		return v
	}
	duration := func(key string, def time.Duration) time.Duration {
		v := os.Getenv(key)
		if v == "" {
			return def
		}
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("invalid duration for %s: %q", key, v))
			return def
		}
		return d
	}

	cfg := Config{
		Env:      envStr("APP_ENV", "dev"),    // environment (dev/test/prod)
		Port:     envStr("APP_PORT", "8080"),  // port to bind the HTTP server
		LogLevel: envStr("LOG_LEVEL", "info"), // minimum log level

		ODataBaseURL:      withSlash(required("ODATA_BASE_URL")),
		ODataTimeout:      duration("ODATA_TIMEOUT", 30*time.Second),
		VaultTimeout:      duration("VAULT_TIMEOUT", 120*time.Second),
		UploadTimeout:     duration("UPLOAD_TIMEOUT", 5*time.Minute),
		MaxUploadBytes:    int64(envInt("MAX_UPLOAD_BYTES", 25<<20)),
		ProcurementEntity: envStr("PROCUREMENT_ENTITY", "m_Procurement_Request"),

		DBUser: os.Getenv("DB_USER"),
		DBPass: os.Getenv("DB_PASS"), // empty allowed
		DBHost: os.Getenv("DB_HOST"),
		DBPort: envStr("DB_PORT", "3306"),
		DBName: os.Getenv("DB_NAME"),

		RabbitMQURL:      os.Getenv("RABBITMQ_URL"),
		SubmissionLogDir: envStr("SUBMISSION_LOG_DIR", "logs"),
	}

	if cfg.ODataBaseURL != "" {
		if u, err := url.Parse(cfg.ODataBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("invalid ODATA_BASE_URL: %q", cfg.ODataBaseURL))
		}
	}
	if list := os.Getenv("VAULT_BASE_URLS"); list != "" {
		cfg.VaultBaseURLs = splitList(list)
	} else if cfg.ODataBaseURL != "" {
		cfg.VaultBaseURLs = DefaultVaultCandidates(cfg.ODataBaseURL)
	}
	if cfg.ODataBaseURL != "" && len(cfg.VaultBaseURLs) == 0 {
		errs = append(errs, errors.New("VAULT_BASE_URLS has no usable entries"))
	}
	if cfg.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("invalid MAX_UPLOAD_BYTES: %d", cfg.MaxUploadBytes))
	}
	if cfg.AuditEnabled() && (cfg.DBUser == "" || cfg.DBName == "") {
		errs = append(errs, errors.New("DB_HOST is set but DB_USER or DB_NAME is missing"))
	}
	return cfg, errors.Join(errs...)
}

// DefaultVaultCandidates lists where vault endpoints usually live relative to
// an OData base: the OData base itself, then the dedicated vault server paths
// on the same origin.
func DefaultVaultCandidates(odataBase string) []string {
	u, err := url.Parse(odataBase)
	if err != nil || u.Host == "" {
		return nil
	}
	origin := u.Scheme + "://" + u.Host
	return []string{
		withSlash(odataBase),
		origin + "/vault/odata/",
		origin + "/vaultserver/odata/",
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, withSlash(p))
		}
	}
	return out
}

func withSlash(s string) string {
	if s == "" || strings.HasSuffix(s, "/") {
		return s
	}
	return s + "/"
}
