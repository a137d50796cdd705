// Package telemetry manages anonymous usage telemetry for hyperknow.
// Disabled unless the user configures an API key and opts in.
package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ConfigFileName is the name of the telemetry state file inside the data dir.
const ConfigFileName = "telemetry.json"

// Config holds the telemetry state and the anonymous id.
type Config struct {
	// Enabled indicates whether telemetry is currently enabled.
	Enabled bool `json:"enabled"`

	// AnonymousID is a random UUID generated once on first load. It is not
	// tied to the backend account in any way.
	AnonymousID string `json:"anonymous_id"`
}

// LoadConfig reads the telemetry state from dataDir. A missing file yields a
// disabled config with a freshly generated anonymous id.
func LoadConfig(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, ConfigFileName)
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.AnonymousID = uuid.New().String()
			return cfg, nil
		}
		return nil, fmt.Errorf("read telemetry config: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse telemetry config: %w", err)
	}
	if cfg.AnonymousID == "" {
		cfg.AnonymousID = uuid.New().String()
	}
	return cfg, nil
}

// Save writes the telemetry state into dataDir with owner-only permissions.
func (c *Config) Save(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal telemetry config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, ConfigFileName), data, 0o600); err != nil {
		return fmt.Errorf("write telemetry config: %w", err)
	}
	return nil
}

// IsEnabled returns true if telemetry is currently enabled.
func (c *Config) IsEnabled() bool {
	return c.Enabled
}
