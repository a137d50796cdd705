package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hyperknow/hyperknow/models"
	"github.com/hyperknow/hyperknow/types"
)

// EventStream is an open server-sent-events connection for one generation run.
// Messages are delivered on Messages() until the stream ends; after the channel
// closes, Err reports how it ended. Streams are never reconnected: a dropped
// stream surfaces as a StreamError and the run's pollers carry on without it.
type EventStream struct {
	messages chan string
	cancel   context.CancelFunc
	body     io.ReadCloser

	err  error
	done chan struct{}
}

// Messages returns the channel of raw event payloads. It is closed when the
// stream ends for any reason.
func (s *EventStream) Messages() <-chan string {
	return s.messages
}

// Err returns the terminal error of the stream, or nil for a clean end of
// stream. It must only be called after Messages() has closed.
func (s *EventStream) Err() error {
	<-s.done
	return s.err
}

// Close tears the connection down. Safe to call more than once.
func (s *EventStream) Close() {
	s.cancel()
	_ = s.body.Close()
}

// OpenEventStream connects to the generation event stream for a run. The
// returned stream delivers each "data:" payload as one message.
func (c *Client) OpenEventStream(ctx context.Context, job models.Job) (*EventStream, error) {
	q := url.Values{}
	q.Set("query", job.Query)
	q.Set("user_id", job.UserID)
	q.Set("conversation_id", job.ConversationID)
	q.Set("book_ids", strings.Join(job.BookIDs, bookIDSeparator))
	q.Set("websearch", fmt.Sprintf("%t", job.WebSearch))

	ctx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/generate?"+q.Encode(), nil)
	if err != nil {
		cancel()
		return nil, types.NewStreamError("building stream request", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamer.Do(req)
	if err != nil {
		cancel()
		return nil, types.NewStreamError("opening event stream", err)
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		cancel()
		return nil, types.NewStreamError(fmt.Sprintf("event stream: %s: %s", resp.Status, strings.TrimSpace(string(b))), nil)
	}

	s := &EventStream{
		messages: make(chan string),
		cancel:   cancel,
		body:     resp.Body,
		done:     make(chan struct{}),
	}
	go s.read(ctx)
	return s, nil
}

func (s *EventStream) read(ctx context.Context) {
	defer close(s.done)
	defer close(s.messages)

	scanner := bufio.NewScanner(s.body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		select {
		case s.messages <- data:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		s.err = types.NewStreamError("reading event stream", err)
	}
}
