package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/pithecene-io/dossier/types"
)

// Stream buffer limits. Every event carries a full run document, so lines
// can grow well past bufio's default.
const (
	streamBufferSize  = 64 * 1024
	maxStreamLineSize = 16 * 1024 * 1024
)

// Subscription is a live handle to one run's event feed.
//
// Events are delivered in server emission order on Events(). The channel
// closes when a terminal event has been delivered, when the transport
// fails, or when Close is called. A transport failure is delivered once
// as an error event without payload before the channel closes; the
// subscription does not reconnect.
type Subscription struct {
	events chan types.StreamEvent
	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once

	mu  sync.Mutex
	err error
}

// Subscribe opens the live event feed for a run. The feed stays open until
// a terminal event arrives, the transport fails, the context is canceled,
// or Close is called.
func (c *Client) Subscribe(ctx context.Context, runID string) (*Subscription, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	req, err := c.newRequest(streamCtx, http.MethodGet, c.runURL(runID)+"/events", nil)
	if err != nil {
		cancel()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streaming.Do(req)
	if err != nil {
		cancel()
		return nil, &APIError{Kind: ErrUnavailable, Op: "subscribe", RunID: runID, Err: err}
	}
	if err := classifyStatus("subscribe", runID, resp.StatusCode); err != nil {
		discardBody(resp)
		cancel()
		return nil, err
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		discardBody(resp)
		cancel()
		return nil, &APIError{Kind: ErrUnavailable, Op: "subscribe", RunID: runID,
			StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected content type %q", ct)}
	}

	sub := &Subscription{
		events: make(chan types.StreamEvent),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go sub.read(streamCtx, resp)
	return sub, nil
}

// Events returns the delivery channel. It is closed when the feed ends for
// any reason; after closure, Err reports a transport error if one occurred.
func (s *Subscription) Events() <-chan types.StreamEvent {
	return s.events
}

// Err returns the transport error that ended the feed, or nil if the feed
// ended with a terminal event or was closed deliberately. Meaningful only
// after Events is closed.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the subscription. Idempotent and safe to call at any time,
// including after natural termination. When Close returns, no further
// event will be delivered.
func (s *Subscription) Close() error {
	s.closeOnce.Do(s.cancel)
	<-s.done
	return nil
}

// read is the feed reader goroutine. It owns the response body and the
// events channel.
func (s *Subscription) read(ctx context.Context, resp *http.Response) {
	defer close(s.done)
	defer close(s.events)
	defer discardBody(resp)
	// The server may hold the connection open after a terminal event.
	// Cancel severs the body first so the drain cannot block closure.
	defer s.cancel()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, streamBufferSize), maxStreamLineSize)

	var eventName string
	var data strings.Builder

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")

		switch {
		case line == "":
			if data.Len() > 0 || eventName != "" {
				terminal := s.dispatch(ctx, eventName, data.String())
				eventName = ""
				data.Reset()
				if terminal {
					return
				}
			}
		case strings.HasPrefix(line, ":"):
			// Comment / keep-alive.
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// id:, retry:, and unknown fields are irrelevant here.
		}
	}

	// The transport ended without a terminal event. Deliberate closure is
	// silent; anything else is reported upward exactly once, with no
	// payload, so the caller can distinguish it from a pipeline failure.
	if ctx.Err() != nil {
		return
	}
	err := scanner.Err()
	if err == nil {
		err = fmt.Errorf("event stream ended without a terminal event")
	}
	s.mu.Lock()
	s.err = &APIError{Kind: ErrStreamClosed, Op: "subscribe", Err: err}
	s.mu.Unlock()

	s.deliver(ctx, types.StreamEvent{Type: types.StreamEventError})
}

// dispatch decodes and delivers one feed event.
// Returns true when the event is terminal and the feed should close.
func (s *Subscription) dispatch(ctx context.Context, name, data string) bool {
	eventType := types.StreamEventType(name)
	switch eventType {
	case types.StreamEventUpdate, types.StreamEventComplete:
		var run types.Run
		if err := json.Unmarshal([]byte(data), &run); err != nil {
			// A malformed frame is dropped; the next full document
			// supersedes anything it carried.
			return false
		}
		s.deliver(ctx, types.StreamEvent{Type: eventType, Run: &run})
		return eventType.IsTerminal()

	case types.StreamEventError:
		s.deliver(ctx, types.StreamEvent{Type: eventType, Run: decodeErrorPayload(data)})
		return true

	default:
		// Unknown event names are tolerated and ignored.
		return false
	}
}

// decodeErrorPayload interprets an error event body. The engine sends
// either a full run document with failed status, or a bare
// {"message": "..."} for feed-level failures; both are folded into a run
// document so one merge path handles them.
func decodeErrorPayload(data string) *types.Run {
	var peek struct {
		RunID   string `json:"run_id"`
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(data), &peek); err != nil {
		return nil
	}

	if peek.Status != "" || peek.RunID != "" {
		var run types.Run
		if err := json.Unmarshal([]byte(data), &run); err != nil {
			return nil
		}
		if run.Error == "" {
			run.Error = peek.Message
		}
		if !run.Status.IsTerminal() {
			run.Status = types.RunStatusFailed
		}
		return &run
	}
	if peek.Message != "" {
		return &types.Run{Status: types.RunStatusFailed, Error: peek.Message}
	}
	return nil
}

// deliver sends an event unless the subscription is being torn down.
func (s *Subscription) deliver(ctx context.Context, ev types.StreamEvent) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	}
}
