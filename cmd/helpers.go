package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperknow/hyperknow/client"
	"github.com/hyperknow/hyperknow/internal/history"
	"github.com/hyperknow/hyperknow/internal/telemetry"
	"github.com/hyperknow/hyperknow/store"
)

// newClient builds the backend client from the active configuration.
func newClient() *client.Client {
	config := GetConfig()
	return client.New(config.API.BaseURL, config.API.Timeout)
}

// sessionStore opens the session store in the data directory.
func sessionStore() (*store.SessionStore, error) {
	config := GetConfig()
	path := filepath.Join(config.Data.Dir, config.Data.SessionFile)
	return store.NewSessionStore(path, config.Data.SessionFormat)
}

// currentSession loads the stored session or fails with a hint to log in.
func currentSession() (store.Session, error) {
	ss, err := sessionStore()
	if err != nil {
		return store.Session{}, err
	}
	return ss.Load()
}

// openHistory opens the local article history database.
func openHistory() (*history.Store, error) {
	config := GetConfig()
	return history.Open(filepath.Join(config.Data.Dir, config.Data.HistoryFile))
}

// newTelemetry builds the telemetry client. Any failure degrades to the
// no-op client; telemetry must never break a command.
func newTelemetry() telemetry.Client {
	config := GetConfig()
	if !config.Telemetry.Enabled || config.Telemetry.APIKey == "" {
		return telemetry.NewNoopClient()
	}
	tcfg, err := telemetry.LoadConfig(config.Data.Dir)
	if err != nil {
		return telemetry.NewNoopClient()
	}
	tcfg.Enabled = true
	_ = tcfg.Save(config.Data.Dir)
	c, err := telemetry.NewPostHogClient(telemetry.ClientConfig{
		APIKey:   config.Telemetry.APIKey,
		Version:  version,
		Config:   tcfg,
		Endpoint: config.Telemetry.Endpoint,
	})
	if err != nil {
		return telemetry.NewNoopClient()
	}
	return c
}

// verbosef prints to stderr only when verbose output is enabled.
func verbosef(format string, args ...any) {
	if GetConfig().Verbose {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
