package internal

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/cdot/Squirrel-sub002/internal/vault"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Cloud backends.
const (
	CloudNone   = "none"
	CloudFS     = "fs"
	CloudSQLite = "sqlite"
	CloudHTTP   = "http"
)

var httpURL = regexp.MustCompile(`^https?://[^/]+`)

// Duration is a time.Duration written as "90s" or "1h" in config files.
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText renders the duration in Go syntax.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app" json:"app"`
	Local  LocalConfig       `yaml:"local" json:"local"`
	Cloud  CloudConfig       `yaml:"cloud" json:"cloud"`
	Store  StoreConfig       `yaml:"store" json:"store"`
	Sync   SyncConfig        `yaml:"sync" json:"sync"`
	Alarms AlarmsConfig      `yaml:"alarms" json:"alarms"`
	Auth   AuthConfig        `yaml:"auth" json:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Local.Validate(); err != nil {
		return err
	}
	if err := c.Cloud.Validate(); err != nil {
		return err
	}
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	if err := c.Alarms.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level" json:"log_level"`
	HTTP     HTTPConfig `yaml:"http" json:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port" json:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// LocalConfig locates this replica's hoard document.
type LocalConfig struct {
	Path     string `yaml:"path" json:"path"`
	Document string `yaml:"document" json:"document"`
}

// Validate validates the local store configuration.
func (c *LocalConfig) Validate() error {
	if c.Document == "" {
		c.Document = vault.DefaultDocument
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// CloudConfig selects the shared store replicas reconcile through.
//
// Backend is one of:
//   - "none" (default): no reconciliation.
//   - "fs": a directory, typically a mounted or synced share; Path is required.
//   - "sqlite": a database file; Path is required.
//   - "http": another instance's /api/store endpoints; URL is required.
type CloudConfig struct {
	Backend  string `yaml:"backend" json:"backend"`
	Path     string `yaml:"path" json:"path"`
	URL      string `yaml:"url" json:"url"`
	Token    string `yaml:"token" json:"token"`
	Document string `yaml:"document" json:"document"`
}

// Validate validates the cloud configuration.
func (c *CloudConfig) Validate() error {
	if c.Backend == "" {
		c.Backend = CloudNone
	}
	if c.Document == "" {
		c.Document = vault.DefaultDocument
	}
	needsPath := c.Backend == CloudFS || c.Backend == CloudSQLite
	return validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(CloudNone, CloudFS, CloudSQLite, CloudHTTP)),
		validation.Field(&c.Path, validation.When(needsPath, validation.Required)),
		validation.Field(&c.URL, validation.When(c.Backend == CloudHTTP, validation.Required, validation.Match(httpURL))),
	)
}

// Enabled reports whether a cloud backend is configured.
func (c *CloudConfig) Enabled() bool {
	return c.Backend != "" && c.Backend != CloudNone
}

// StoreConfig optionally serves a directory as the blob store other
// replicas use through the "http" cloud backend. Empty Path disables it.
type StoreConfig struct {
	Path string `yaml:"path" json:"path"`
}

// SyncConfig controls periodic reconciliation. Zero disables it.
type SyncConfig struct {
	Interval Duration `yaml:"interval" json:"interval"`
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Interval, validation.Min(Duration(0))),
	)
}

// AlarmsConfig controls the alarm scan period.
type AlarmsConfig struct {
	Interval Duration `yaml:"interval" json:"interval"`
}

// Validate validates the alarm configuration.
func (c *AlarmsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Interval, validation.Required, validation.Min(Duration(time.Second))),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode" json:"mode"`
	Token string `yaml:"token" json:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Local: LocalConfig{
			Path:     "./data",
			Document: vault.DefaultDocument,
		},
		Cloud: CloudConfig{
			Backend:  CloudNone,
			Document: vault.DefaultDocument,
		},
		Alarms: AlarmsConfig{
			Interval: Duration(time.Minute),
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
