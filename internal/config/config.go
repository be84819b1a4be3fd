package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete duo configuration
type Config struct {
	Store        StoreConfig        `mapstructure:"store"`
	Coordination CoordinationConfig `mapstructure:"coordination"`
	Agents       AgentsConfig       `mapstructure:"agents"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
}

// StoreConfig selects and configures the session store backend
type StoreConfig struct {
	// Backend is the storage backend.
	// Options: "file", "sqlite", "mysql", "memory"
	Backend string `mapstructure:"backend"`
	// Dir is the root directory for the file store, the default SQLite
	// database and the debug log (default: ".duo")
	Dir string `mapstructure:"dir"`
	// SQLitePath overrides the SQLite database location (default: <dir>/sessions.db)
	SQLitePath string `mapstructure:"sqlite_path"`
	// MySQLDSN is the go-sql-driver/mysql data source name
	MySQLDSN string `mapstructure:"mysql_dsn"`
	// KeepVersions prunes file-store history to the newest N versions (0 = keep all, otherwise >= 2)
	KeepVersions int `mapstructure:"keep_versions"`
}

// CoordinationConfig controls the optimistic-concurrency loop and waits
type CoordinationConfig struct {
	// PollInterval is how often waits reload the session (default: 500ms)
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// MaxConflictRetries bounds the reload-and-retry loop on version conflicts (default: 5)
	MaxConflictRetries int `mapstructure:"max_conflict_retries"`
	// DefaultTimeout is used by waits when no timeout is given (default: 10m)
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
	// WatchFilesystem enables fsnotify wake-ups for waits on the file store (default: true)
	WatchFilesystem bool `mapstructure:"watch_filesystem"`
}

// AgentsConfig selects which agent plays each role
type AgentsConfig struct {
	// Submitter is the agent that produces code. Options: "claude", "codex"
	Submitter string `mapstructure:"submitter"`
	// Reviewer is the agent that reviews code. Options: "claude", "codex"
	Reviewer string `mapstructure:"reviewer"`
	// MaxRounds stops `duo run` after this many rounds (0 = unlimited)
	MaxRounds int `mapstructure:"max_rounds"`

	Claude ClaudeConfig `mapstructure:"claude"`
	Codex  CodexConfig  `mapstructure:"codex"`
}

// ClaudeConfig configures the Claude CLI agent
type ClaudeConfig struct {
	// Command is the executable to run (default: "claude")
	Command string `mapstructure:"command"`
	// SkipPermissions passes --dangerously-skip-permissions (default: true)
	SkipPermissions bool `mapstructure:"skip_permissions"`
}

// CodexConfig configures the Codex CLI agent
type CodexConfig struct {
	// Command is the executable to run (default: "codex")
	Command string `mapstructure:"command"`
	// ApprovalMode controls Codex approval flags.
	// Options: "bypass", "full-auto", "default"
	ApprovalMode string `mapstructure:"approval_mode"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether debug logging is active (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level sets the minimum log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// MaxSizeMB is the maximum log file size before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
}

// MetricsConfig controls Prometheus metrics export
type MetricsConfig struct {
	// Textfile is written in Prometheus text format after each command (empty = disabled)
	Textfile string `mapstructure:"textfile"`
}

// TracingConfig controls OpenTelemetry trace export
type TracingConfig struct {
	// OTLPEndpoint is the OTLP/HTTP collector host:port (empty = tracing disabled)
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	// Insecure disables TLS for the exporter
	Insecure bool `mapstructure:"insecure"`
}

// ResolveDir returns the store directory with ~ expanded.
// Relative paths are left relative to the working directory.
func (s *StoreConfig) ResolveDir() string {
	path := s.Dir
	if path == "" {
		path = DefaultStoreDir
	}

	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = home
		}
	}
	return path
}

// ResolveSQLitePath returns the SQLite database path, defaulting to
// sessions.db inside the store directory.
func (s *StoreConfig) ResolveSQLitePath() string {
	if s.SQLitePath != "" {
		return s.SQLitePath
	}
	return filepath.Join(s.ResolveDir(), "sessions.db")
}

// LogFile returns the debug log path inside the store directory.
func (s *StoreConfig) LogFile() string {
	return filepath.Join(s.ResolveDir(), "debug.log")
}

// DefaultStoreDir is the store directory used when none is configured.
const DefaultStoreDir = ".duo"

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend:      "file",
			Dir:          DefaultStoreDir,
			SQLitePath:   "",
			MySQLDSN:     "",
			KeepVersions: 0,
		},
		Coordination: CoordinationConfig{
			PollInterval:       500 * time.Millisecond,
			MaxConflictRetries: 5,
			DefaultTimeout:     10 * time.Minute,
			WatchFilesystem:    true,
		},
		Agents: AgentsConfig{
			Submitter: "claude",
			Reviewer:  "codex",
			MaxRounds: 10,
			Claude: ClaudeConfig{
				Command:         "claude",
				SkipPermissions: true,
			},
			Codex: CodexConfig{
				Command:      "codex",
				ApprovalMode: "full-auto",
			},
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Metrics: MetricsConfig{
			Textfile: "",
		},
		Tracing: TracingConfig{
			OTLPEndpoint: "",
			Insecure:     false,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Store defaults
	viper.SetDefault("store.backend", defaults.Store.Backend)
	viper.SetDefault("store.dir", defaults.Store.Dir)
	viper.SetDefault("store.sqlite_path", defaults.Store.SQLitePath)
	viper.SetDefault("store.mysql_dsn", defaults.Store.MySQLDSN)
	viper.SetDefault("store.keep_versions", defaults.Store.KeepVersions)

	// Coordination defaults
	viper.SetDefault("coordination.poll_interval", defaults.Coordination.PollInterval)
	viper.SetDefault("coordination.max_conflict_retries", defaults.Coordination.MaxConflictRetries)
	viper.SetDefault("coordination.default_timeout", defaults.Coordination.DefaultTimeout)
	viper.SetDefault("coordination.watch_filesystem", defaults.Coordination.WatchFilesystem)

	// Agent defaults
	viper.SetDefault("agents.submitter", defaults.Agents.Submitter)
	viper.SetDefault("agents.reviewer", defaults.Agents.Reviewer)
	viper.SetDefault("agents.max_rounds", defaults.Agents.MaxRounds)
	viper.SetDefault("agents.claude.command", defaults.Agents.Claude.Command)
	viper.SetDefault("agents.claude.skip_permissions", defaults.Agents.Claude.SkipPermissions)
	viper.SetDefault("agents.codex.command", defaults.Agents.Codex.Command)
	viper.SetDefault("agents.codex.approval_mode", defaults.Agents.Codex.ApprovalMode)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)

	// Observability defaults
	viper.SetDefault("metrics.textfile", defaults.Metrics.Textfile)
	viper.SetDefault("tracing.otlp_endpoint", defaults.Tracing.OTLPEndpoint)
	viper.SetDefault("tracing.insecure", defaults.Tracing.Insecure)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "duo")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".duo"
	}
	return filepath.Join(home, ".config", "duo")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidBackends returns the list of valid store backends
func ValidBackends() []string {
	return []string{"file", "sqlite", "mysql", "memory"}
}

// ValidAgents returns the list of valid agent names
func ValidAgents() []string {
	return []string{"claude", "codex"}
}

// ValidApprovalModes returns the list of valid Codex approval modes
func ValidApprovalModes() []string {
	return []string{"bypass", "full-auto", "default"}
}
