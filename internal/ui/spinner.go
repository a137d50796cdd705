package ui

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// Spinner is a plain line spinner for commands that block on a single remote
// call and have no TUI around them. It draws to stderr so command output on
// stdout stays clean.
type Spinner struct {
	frames  []string
	message string

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup
}

// NewSpinner returns a spinner with the given status message.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		frames:  []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		message: message,
	}
}

// Start begins drawing. Starting an already-running spinner does nothing.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.spin(s.stop)
}

func (s *Spinner) spin(stop <-chan struct{}) {
	defer s.wg.Done()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	frame := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			fmt.Fprintf(os.Stderr, "\r%s %s", StylePrimary.Render(s.frames[frame]), s.message)
			frame = (frame + 1) % len(s.frames)
		}
	}
}

// Stop halts drawing and clears the line. Safe to call when not running.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
	fmt.Fprint(os.Stderr, "\r\033[K")
}
