package pipeline

import (
	"fmt"
	"strings"

	"github.com/hyperknow/hyperknow/models"
)

// The backend announces phase changes as human-readable stream messages. A
// marker is matched by substring so surrounding text on the line is ignored.
const (
	markerSearch  = "Starting Google search and content collection for user '%s' in conversation '%s'"
	markerOutline = "Starting Outline generation for user '%s' in conversation '%s'"
	markerWriting = "Starting Article writing for user '%s' in conversation '%s'"
)

// PhaseMachine reduces raw stream messages into the current generation phase.
// Transitions are monotonic: a message for an earlier phase never moves the
// machine backwards, and unrecognized messages leave it unchanged. Completion
// is not stream-driven; it is set by the content poller via Complete.
type PhaseMachine struct {
	phase   models.Phase
	search  string
	outline string
	writing string
}

// NewPhaseMachine builds a machine for one run. The markers embed the user and
// conversation ids, so messages from other runs on a shared stream are ignored.
func NewPhaseMachine(userID, conversationID string) *PhaseMachine {
	return &PhaseMachine{
		phase:   models.PhaseIdle,
		search:  fmt.Sprintf(markerSearch, userID, conversationID),
		outline: fmt.Sprintf(markerOutline, userID, conversationID),
		writing: fmt.Sprintf(markerWriting, userID, conversationID),
	}
}

// Phase returns the current phase.
func (m *PhaseMachine) Phase() models.Phase {
	return m.phase
}

// Apply consumes one stream message and returns the resulting phase along
// with whether it changed.
func (m *PhaseMachine) Apply(message string) (models.Phase, bool) {
	next := m.phase
	switch {
	case strings.Contains(message, m.search):
		next = models.PhaseSourceCollecting
	case strings.Contains(message, m.outline):
		next = models.PhaseOutlineGenerating
	case strings.Contains(message, m.writing):
		// Section writing and article streaming run concurrently; the
		// writing marker is what starts both pollers.
		next = models.PhaseStreaming
	default:
		return m.phase, false
	}
	if next.Rank() <= m.phase.Rank() {
		return m.phase, false
	}
	m.phase = next
	return m.phase, true
}

// Complete moves the machine to its terminal phase. Only the content poller
// calls this, on observing the backend's completion flag.
func (m *PhaseMachine) Complete() (models.Phase, bool) {
	if m.phase == models.PhaseComplete {
		return m.phase, false
	}
	m.phase = models.PhaseComplete
	return m.phase, true
}
