package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	yaml "gopkg.in/yaml.v3"
)

const (
	defaultSessionFile = "session.json"
	formatJSON         = "json"
	formatYAML         = "yaml"
	checksumSuffix     = ".checksum"
)

// Session is the durable local state of a signed-in user: who they are and
// which conversation they last started, so an interrupted run can be resumed.
type Session struct {
	UserID         string    `json:"userId" yaml:"userId"`
	Email          string    `json:"email" yaml:"email"`
	ConversationID string    `json:"conversationId,omitempty" yaml:"conversationId,omitempty"`
	Query          string    `json:"query,omitempty" yaml:"query,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt" yaml:"updatedAt"`
}

// SessionStore persists the session to a single file with file-level locking
// and a checksum sidecar guarding against partial writes.
type SessionStore struct {
	filePath string
	format   string
	flk      *flock.Flock
}

// NewSessionStore opens (or prepares) the session file at path. Format is
// "json" or "yaml"; empty defaults to json. The parent directory is created
// if needed.
func NewSessionStore(path, format string) (*SessionStore, error) {
	if path == "" {
		path = defaultSessionFile
	}
	switch strings.ToLower(format) {
	case "", formatJSON:
		format = formatJSON
	case formatYAML:
		format = formatYAML
	default:
		return nil, fmt.Errorf("unsupported session format: %s. Supported formats are json, yaml", format)
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return &SessionStore{
		filePath: path,
		format:   format,
		flk:      flock.New(path),
	}, nil
}

// ErrNoSession is returned by Load when no session has been saved yet.
var ErrNoSession = errors.New("no session saved; run 'hyperknow login' first")

// Load reads the stored session, verifying the checksum sidecar when present.
func (s *SessionStore) Load() (Session, error) {
	if err := s.flk.Lock(); err != nil {
		return Session{}, fmt.Errorf("could not lock session file: %w", err)
	}
	defer func() { _ = s.flk.Unlock() }()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Session{}, ErrNoSession
		}
		return Session{}, fmt.Errorf("failed to read session file %s: %w", s.filePath, err)
	}
	if len(data) == 0 {
		return Session{}, ErrNoSession
	}

	checksumPath := s.filePath + checksumSuffix
	if expected, readErr := os.ReadFile(checksumPath); readErr == nil {
		want := strings.TrimSpace(string(expected))
		if got := calculateChecksum(data); got != want {
			return Session{}, fmt.Errorf("checksum mismatch for %s - expected %s, got %s - file is corrupt or tampered", s.filePath, want, got)
		}
	} else if !errors.Is(readErr, fs.ErrNotExist) {
		return Session{}, fmt.Errorf("error reading checksum file %s: %w", checksumPath, readErr)
	}

	var sess Session
	switch s.format {
	case formatJSON:
		if err := json.Unmarshal(data, &sess); err != nil {
			return Session{}, fmt.Errorf("failed to unmarshal session from %s: %w", s.filePath, err)
		}
	case formatYAML:
		if err := yaml.Unmarshal(data, &sess); err != nil {
			return Session{}, fmt.Errorf("failed to unmarshal session from %s: %w", s.filePath, err)
		}
	}
	if sess.UserID == "" {
		return Session{}, ErrNoSession
	}
	return sess, nil
}

// Save writes the session atomically: temp file, checksum sidecar, then
// renames both into place.
func (s *SessionStore) Save(sess Session) error {
	if err := s.flk.Lock(); err != nil {
		return fmt.Errorf("could not lock session file: %w", err)
	}
	defer func() { _ = s.flk.Unlock() }()

	sess.UpdatedAt = time.Now()

	var data []byte
	var err error
	switch s.format {
	case formatJSON:
		data, err = json.MarshalIndent(sess, "", "  ")
	case formatYAML:
		data, err = yaml.Marshal(sess)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal session to %s: %w", s.format, err)
	}

	tempPath := s.filePath + ".tmp"
	checksumPath := s.filePath + checksumSuffix
	tempChecksumPath := checksumPath + ".tmp"
	defer func() { _ = os.Remove(tempPath) }()
	defer func() { _ = os.Remove(tempChecksumPath) }()

	if err := os.WriteFile(tempPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temporary session file %s: %w", tempPath, err)
	}
	if err := os.WriteFile(tempChecksumPath, []byte(calculateChecksum(data)), 0o600); err != nil {
		return fmt.Errorf("failed to write temporary checksum file %s: %w", tempChecksumPath, err)
	}
	if err := os.Rename(tempPath, s.filePath); err != nil {
		return fmt.Errorf("failed to rename temporary session file %s to %s: %w", tempPath, s.filePath, err)
	}
	if err := os.Rename(tempChecksumPath, checksumPath); err != nil {
		return fmt.Errorf("session file %s updated, but failed to update checksum file %s: %w - store may be inconsistent", s.filePath, checksumPath, err)
	}
	return nil
}

// SetConversation records the active conversation on the stored session.
func (s *SessionStore) SetConversation(conversationID, query string) error {
	sess, err := s.Load()
	if err != nil {
		return err
	}
	sess.ConversationID = conversationID
	sess.Query = query
	return s.Save(sess)
}

// Clear removes the stored session and its checksum.
func (s *SessionStore) Clear() error {
	if err := s.flk.Lock(); err != nil {
		return fmt.Errorf("could not lock session file: %w", err)
	}
	defer func() { _ = s.flk.Unlock() }()
	if err := os.Remove(s.filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove session file %s: %w", s.filePath, err)
	}
	_ = os.Remove(s.filePath + checksumSuffix)
	return nil
}

// calculateChecksum computes the SHA256 checksum of the given data.
func calculateChecksum(data []byte) string {
	hasher := sha256.New()
	hasher.Write(data)
	return hex.EncodeToString(hasher.Sum(nil))
}
