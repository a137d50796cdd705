package telemetry

import (
	"runtime"
	"sync"
	"testing"

	"github.com/posthog/posthog-go"
)

// mockEnqueuer captures events for testing.
type mockEnqueuer struct {
	mu     sync.Mutex
	events []posthog.Capture
	closed bool
}

func (m *mockEnqueuer) Enqueue(msg posthog.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if capture, ok := msg.(posthog.Capture); ok {
		m.events = append(m.events, capture)
	}
	return nil
}

func (m *mockEnqueuer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockEnqueuer) getEvents() []posthog.Capture {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]posthog.Capture, len(m.events))
	copy(result, m.events)
	return result
}

func (m *mockEnqueuer) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func newTestClient(cfg *Config, version string) (*PostHogClient, *mockEnqueuer) {
	mock := &mockEnqueuer{}
	return newPostHogClientWithEnqueuer(mock, cfg, version), mock
}

func TestPostHogClientTrackWhenEnabled(t *testing.T) {
	cfg := &Config{Enabled: true, AnonymousID: "anon-123"}
	client, mock := newTestClient(cfg, "0.3.0")

	client.Track("ask_completed", Properties{"plain": true})

	events := mock.getEvents()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	event := events[0]
	if event.Event != "ask_completed" {
		t.Errorf("event name = %q", event.Event)
	}
	if event.DistinctId != "anon-123" {
		t.Errorf("distinct_id = %q", event.DistinctId)
	}
	if event.Properties["plain"] != true {
		t.Errorf("plain = %v", event.Properties["plain"])
	}
	if event.Properties["os"] != runtime.GOOS {
		t.Errorf("os = %v", event.Properties["os"])
	}
	if event.Properties["cli_version"] != "0.3.0" {
		t.Errorf("cli_version = %v", event.Properties["cli_version"])
	}
	if event.Properties["$process_person_profile"] != false {
		t.Error("person profile processing not disabled")
	}
}

func TestPostHogClientTrackWhenDisabled(t *testing.T) {
	cfg := &Config{Enabled: false, AnonymousID: "anon-123"}
	client, mock := newTestClient(cfg, "0.3.0")

	client.Track("ask_completed", nil)

	if got := len(mock.getEvents()); got != 0 {
		t.Errorf("disabled client sent %d events", got)
	}
}

func TestPostHogClientClose(t *testing.T) {
	cfg := &Config{Enabled: true, AnonymousID: "anon-123"}
	client, mock := newTestClient(cfg, "0.3.0")

	if err := client.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !mock.isClosed() {
		t.Error("underlying client not closed")
	}
}

func TestUninitializedClientIsSilent(t *testing.T) {
	client, err := NewPostHogClient(ClientConfig{})
	if err != nil {
		t.Fatalf("NewPostHogClient: %v", err)
	}
	client.Track("anything", nil)
	if err := client.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestNoopClient(t *testing.T) {
	c := NewNoopClient()
	c.Track("anything", Properties{"k": "v"})
	if err := c.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Enabled {
		t.Error("fresh config should be disabled")
	}
	if cfg.AnonymousID == "" {
		t.Fatal("no anonymous id generated")
	}

	cfg.Enabled = true
	if err := cfg.Save(dir); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := LoadConfig(dir)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !reloaded.Enabled {
		t.Error("enabled flag lost")
	}
	if reloaded.AnonymousID != cfg.AnonymousID {
		t.Error("anonymous id changed between loads")
	}
}
