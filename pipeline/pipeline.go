package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/hyperknow/hyperknow/models"
	"github.com/hyperknow/hyperknow/types"
)

// Fetcher is the slice of the backend client the pipeline needs. Narrowed to
// an interface so tests can drive the pollers with a fake.
type Fetcher interface {
	FetchProgress(ctx context.Context, userID, conversationID string) (models.ContentSnapshot, error)
	FetchSectionProgress(ctx context.Context, userID, conversationID string) (models.SectionProgress, error)
}

// UpdateKind discriminates pipeline updates.
type UpdateKind int

const (
	// UpdatePhase reports a phase transition.
	UpdatePhase UpdateKind = iota
	// UpdateContent carries a new full content snapshot.
	UpdateContent
	// UpdateSections carries the reconciled section view.
	UpdateSections
	// UpdateWarning carries a recoverable background error. The run goes on.
	UpdateWarning
	// UpdateStalled reports the stall watchdog firing. The run is over; the
	// last snapshot remains valid.
	UpdateStalled
	// UpdateDone reports completion. It is the last update before the
	// channel closes.
	UpdateDone
)

// Update is one event on the pipeline's output channel.
type Update struct {
	Kind     UpdateKind
	Phase    models.Phase
	Content  models.ContentSnapshot
	Sections []models.Section
	Err      error
}

// Options configures one pipeline run.
type Options struct {
	UserID         string
	ConversationID string

	// ContentInterval is the base delay between content polls.
	ContentInterval time.Duration
	// SectionInterval is the flat delay between section polls.
	SectionInterval time.Duration
	// MaxBackoff caps the content poller's error backoff.
	MaxBackoff time.Duration
	// StallTimeout aborts the run when nothing observable happens for this
	// long. Zero disables the watchdog.
	StallTimeout time.Duration
}

// Pipeline owns the stream reducer and the two pollers for one generation run.
// All output flows through Updates(); the channel closes when the run ends,
// whether by completion, stall, or cancellation.
type Pipeline struct {
	fetcher Fetcher
	opts    Options

	phases  *PhaseMachine
	tracker *SectionTracker

	mu           sync.Mutex
	snapshot     models.ContentSnapshot
	lastProgress time.Time

	updates chan Update
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started sync.Once
}

// New builds a pipeline for one run. Zero intervals get the defaults the
// product uses (content 5s, sections 3s, backoff cap 60s).
func New(fetcher Fetcher, opts Options) *Pipeline {
	if opts.ContentInterval <= 0 {
		opts.ContentInterval = 5 * time.Second
	}
	if opts.SectionInterval <= 0 {
		opts.SectionInterval = 3 * time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 60 * time.Second
	}
	return &Pipeline{
		fetcher: fetcher,
		opts:    opts,
		phases:  NewPhaseMachine(opts.UserID, opts.ConversationID),
		tracker: NewSectionTracker(),
		updates: make(chan Update, 64),
	}
}

// Updates returns the pipeline's output channel.
func (p *Pipeline) Updates() <-chan Update {
	return p.updates
}

// Snapshot returns the latest content snapshot.
func (p *Pipeline) Snapshot() models.ContentSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot
}

// Start runs the pipeline against a live event stream. Messages are reduced
// into phases; the pollers start when the writing phase is reached. Start
// returns immediately; cancel ctx or call Stop to tear the run down.
func (p *Pipeline) Start(ctx context.Context, messages <-chan string) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.touch()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					// Stream over. The pollers, if running, see the
					// run through to completion.
					return
				}
				p.mu.Lock()
				phase, changed := p.phases.Apply(msg)
				p.mu.Unlock()
				if !changed {
					continue
				}
				p.touch()
				p.emit(ctx, Update{Kind: UpdatePhase, Phase: phase})
				if phase == models.PhaseStreaming {
					p.startPollers(ctx)
				}
			}
		}
	}()

	if p.opts.StallTimeout > 0 {
		p.wg.Add(1)
		go p.watchStall(ctx)
	}
	go p.closeWhenDone()
}

// Resume re-attaches the pollers to an already-running generation, with no
// event stream available. The phase is taken to be streaming.
func (p *Pipeline) Resume(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.touch()

	p.forcePhase(models.PhaseStreaming)
	p.emit(ctx, Update{Kind: UpdatePhase, Phase: models.PhaseStreaming})
	p.startPollers(ctx)

	if p.opts.StallTimeout > 0 {
		p.wg.Add(1)
		go p.watchStall(ctx)
	}
	go p.closeWhenDone()
}

// RunArchive serves a finished article's section view: a single fetch, no
// polling, then done.
func (p *Pipeline) RunArchive(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		progress, err := p.fetcher.FetchSectionProgress(ctx, p.opts.UserID, p.opts.ConversationID)
		if err != nil {
			p.emit(ctx, Update{Kind: UpdateWarning, Err: err})
		} else if p.tracker.Apply(progress) {
			p.emit(ctx, Update{Kind: UpdateSections, Sections: p.tracker.Sections()})
		}
		p.emit(ctx, Update{Kind: UpdateDone, Phase: models.PhaseComplete})
	}()
	go p.closeWhenDone()
}

// Stop cancels the run. The updates channel closes once the workers exit.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Pipeline) startPollers(ctx context.Context) {
	p.started.Do(func() {
		p.wg.Add(2)
		go p.pollContent(ctx)
		go p.pollSections(ctx)
	})
}

// pollSections drives the section tracker on a flat interval. Errors are
// surfaced as warnings and the next tick retries; the loop ends when the
// backend reports the sections complete.
func (p *Pipeline) pollSections(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.opts.SectionInterval)
	defer ticker.Stop()

	for {
		progress, err := p.fetcher.FetchSectionProgress(ctx, p.opts.UserID, p.opts.ConversationID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.emit(ctx, Update{Kind: UpdateWarning, Err: err})
		} else {
			if p.tracker.Apply(progress) {
				p.touch()
				p.emit(ctx, Update{Kind: UpdateSections, Sections: p.tracker.Sections()})
			}
			if p.tracker.IsComplete() {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *Pipeline) watchStall(ctx context.Context) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		deadline := p.lastProgress.Add(p.opts.StallTimeout)
		p.mu.Unlock()

		wait := time.Until(deadline)
		if wait <= 0 {
			p.emit(ctx, Update{Kind: UpdateStalled, Err: types.NewStalledError("no generation progress observed")})
			p.cancel()
			return
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (p *Pipeline) forcePhase(phase models.Phase) {
	p.mu.Lock()
	p.phases.phase = phase
	p.mu.Unlock()
}

// touch records observable progress for the stall watchdog.
func (p *Pipeline) touch() {
	p.mu.Lock()
	p.lastProgress = time.Now()
	p.mu.Unlock()
}

func (p *Pipeline) emit(ctx context.Context, u Update) {
	select {
	case p.updates <- u:
	case <-ctx.Done():
		// Stalled and done updates must not be lost to a racing cancel;
		// the buffer usually has room, so try once more without blocking.
		select {
		case p.updates <- u:
		default:
		}
	}
}

func (p *Pipeline) closeWhenDone() {
	p.wg.Wait()
	close(p.updates)
}
