package pipeline

import (
	"context"
	"time"

	"github.com/hyperknow/hyperknow/models"
)

// pollContent drives the full-content poller. Every successful fetch replaces
// the snapshot wholesale; partial or append-style updates do not exist at this
// layer. The loop ends permanently once the backend reports completion.
//
// Failed fetches do not kill the loop: the poller emits a warning and retries
// with exponential backoff, starting at the poll interval and capped at
// MaxBackoff. A success resets the backoff.
func (p *Pipeline) pollContent(ctx context.Context) {
	defer p.wg.Done()

	delay := p.opts.ContentInterval
	for {
		snapshot, err := p.fetcher.FetchProgress(ctx, p.opts.UserID, p.opts.ConversationID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.emit(ctx, Update{Kind: UpdateWarning, Err: err})
			delay *= 2
			if delay > p.opts.MaxBackoff {
				delay = p.opts.MaxBackoff
			}
		} else {
			delay = p.opts.ContentInterval
			if p.replaceSnapshot(snapshot) {
				p.touch()
				p.emit(ctx, Update{Kind: UpdateContent, Content: snapshot})
			}
			if snapshot.IsComplete {
				p.mu.Lock()
				_, changed := p.phases.Complete()
				p.mu.Unlock()
				if changed {
					p.emit(ctx, Update{Kind: UpdatePhase, Phase: models.PhaseComplete})
				}
				p.emit(ctx, Update{Kind: UpdateDone, Phase: models.PhaseComplete, Content: snapshot})
				p.cancel()
				return
			}
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// replaceSnapshot installs the new snapshot and reports whether it differs
// from the previous one.
func (p *Pipeline) replaceSnapshot(s models.ContentSnapshot) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s == p.snapshot {
		return false
	}
	p.snapshot = s
	return true
}
