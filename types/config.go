package types

import "time"

// AppConfig is the unified application configuration, populated by Viper from
// the config file, environment variables, and flags.
type AppConfig struct {
	Config  string `mapstructure:"config"`
	Verbose bool   `mapstructure:"verbose"`

	API       APIConfig       `mapstructure:"api"`
	Polling   PollingConfig   `mapstructure:"polling"`
	Data      DataConfig      `mapstructure:"data"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// APIConfig locates the remote generation service.
type APIConfig struct {
	BaseURL string        `mapstructure:"baseUrl" validate:"required,url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// PollingConfig controls the two progress-polling loops and the stall watchdog.
type PollingConfig struct {
	// ContentInterval is the delay between full-content polls.
	ContentInterval time.Duration `mapstructure:"contentInterval" validate:"required"`
	// SectionInterval is the delay between section-progress polls.
	SectionInterval time.Duration `mapstructure:"sectionInterval" validate:"required"`
	// MaxBackoff caps the exponential backoff applied to failed content polls.
	MaxBackoff time.Duration `mapstructure:"maxBackoff"`
	// StallTimeout fails the run when no progress is observed for this long.
	// Zero disables the watchdog.
	StallTimeout time.Duration `mapstructure:"stallTimeout"`
}

// DataConfig describes where local state lives.
type DataConfig struct {
	// Dir is the base directory for session, history, and telemetry state.
	Dir string `mapstructure:"dir"`
	// SessionFile is the session file name inside Dir.
	SessionFile string `mapstructure:"sessionFile"`
	// SessionFormat is "json" or "yaml".
	SessionFormat string `mapstructure:"sessionFormat" validate:"omitempty,oneof=json yaml"`
	// HistoryFile is the SQLite database file name inside Dir.
	HistoryFile string `mapstructure:"historyFile"`
}

// TelemetryConfig controls anonymous usage reporting. Disabled by default.
type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	APIKey   string `mapstructure:"apiKey"`
	Endpoint string `mapstructure:"endpoint"`
}
