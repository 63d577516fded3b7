package client_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pithecene-io/dossier/client"
	"github.com/pithecene-io/dossier/types"
)

// sseHandler writes the given SSE frames and then behaves per mode:
// "close" drops the connection, "hang" keeps it open until the client
// disconnects.
func sseHandler(t *testing.T, frames []string, mode string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("response writer must support flushing")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()
		for _, frame := range frames {
			fmt.Fprint(w, frame)
			flusher.Flush()
		}
		if mode == "hang" {
			<-r.Context().Done()
		}
	}
}

func mustSubscribe(t *testing.T, c *client.Client, runID string) *client.Subscription {
	t.Helper()
	sub, err := c.Subscribe(context.Background(), runID)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	t.Cleanup(func() { _ = sub.Close() })
	return sub
}

func recvEvent(t *testing.T, sub *client.Subscription) types.StreamEvent {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("events channel closed while expecting an event")
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for stream event")
	}
	return types.StreamEvent{}
}

func expectClosed(t *testing.T, sub *client.Subscription) {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if ok {
			t.Fatalf("expected closed channel, got event %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestSubscribe_UpdateThenComplete(t *testing.T) {
	frames := []string{
		"event: update\ndata: {\"run_id\": \"r1\", \"status\": \"running\", \"current_step\": \"clarifier\"}\n\n",
		": keep-alive\n\n",
		"event: complete\ndata: {\"run_id\": \"r1\", \"status\": \"completed\", \"final_report\": {\"recommendation\": \"GO\"}}\n\n",
	}
	srv := httptest.NewServer(sseHandler(t, frames, "hang"))
	defer srv.Close()

	sub := mustSubscribe(t, mustNewClient(t, srv.URL), "r1")

	first := recvEvent(t, sub)
	if first.Type != types.StreamEventUpdate || first.Run.CurrentStage != "clarifier" {
		t.Errorf("first event = %+v", first)
	}

	second := recvEvent(t, sub)
	if second.Type != types.StreamEventComplete || second.Run.Status != types.RunStatusCompleted {
		t.Errorf("second event = %+v", second)
	}

	// The subscription closes itself after a terminal event.
	expectClosed(t, sub)
	if sub.Err() != nil {
		t.Errorf("terminal event must not record a transport error, got %v", sub.Err())
	}
}

func TestSubscribe_PipelineErrorEvent(t *testing.T) {
	frames := []string{
		"event: error\ndata: {\"run_id\": \"r1\", \"status\": \"failed\", \"current_step\": \"finance\", \"error\": \"budget model diverged\"}\n\n",
	}
	srv := httptest.NewServer(sseHandler(t, frames, "hang"))
	defer srv.Close()

	sub := mustSubscribe(t, mustNewClient(t, srv.URL), "r1")

	ev := recvEvent(t, sub)
	if !ev.PipelineFailure() {
		t.Fatalf("expected pipeline failure, got %+v", ev)
	}
	if ev.Run.Error != "budget model diverged" {
		t.Errorf("error message = %q, want verbatim", ev.Run.Error)
	}
	expectClosed(t, sub)
}

func TestSubscribe_MessageOnlyErrorEvent(t *testing.T) {
	frames := []string{
		"event: error\ndata: {\"message\": \"Run not found\"}\n\n",
	}
	srv := httptest.NewServer(sseHandler(t, frames, "hang"))
	defer srv.Close()

	sub := mustSubscribe(t, mustNewClient(t, srv.URL), "r1")

	ev := recvEvent(t, sub)
	if !ev.PipelineFailure() {
		t.Fatalf("message-bearing error is a reported failure, got %+v", ev)
	}
	if ev.Run.Status != types.RunStatusFailed || ev.Run.Error != "Run not found" {
		t.Errorf("synthesized run = %+v", ev.Run)
	}
}

func TestSubscribe_TransportDrop(t *testing.T) {
	frames := []string{
		"event: update\ndata: {\"run_id\": \"r1\", \"status\": \"running\", \"current_step\": \"strategy\"}\n\n",
	}
	srv := httptest.NewServer(sseHandler(t, frames, "close"))
	defer srv.Close()

	sub := mustSubscribe(t, mustNewClient(t, srv.URL), "r1")

	first := recvEvent(t, sub)
	if first.Type != types.StreamEventUpdate {
		t.Fatalf("first event = %+v", first)
	}

	// Connection drops without a terminal event: exactly one payload-less
	// error event, then closure.
	dropped := recvEvent(t, sub)
	if dropped.Type != types.StreamEventError || dropped.Run != nil {
		t.Errorf("expected payload-less error event, got %+v", dropped)
	}
	if dropped.PipelineFailure() {
		t.Error("transport drop must not read as a pipeline failure")
	}
	expectClosed(t, sub)

	if !errors.Is(sub.Err(), client.ErrStreamClosed) {
		t.Errorf("Err() = %v, want ErrStreamClosed", sub.Err())
	}
}

func TestSubscribe_UnknownEventsIgnored(t *testing.T) {
	frames := []string{
		"event: heartbeat\ndata: {}\n\n",
		"event: complete\ndata: {\"run_id\": \"r1\", \"status\": \"completed\"}\n\n",
	}
	srv := httptest.NewServer(sseHandler(t, frames, "hang"))
	defer srv.Close()

	sub := mustSubscribe(t, mustNewClient(t, srv.URL), "r1")

	ev := recvEvent(t, sub)
	if ev.Type != types.StreamEventComplete {
		t.Errorf("unknown events should be skipped, got %+v", ev)
	}
}

func TestSubscribe_CloseIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, nil, "hang"))
	defer srv.Close()

	sub := mustSubscribe(t, mustNewClient(t, srv.URL), "r1")

	if err := sub.Close(); err != nil {
		t.Errorf("first Close: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	// No events after Close returns; deliberate closure records no error.
	expectClosed(t, sub)
	if sub.Err() != nil {
		t.Errorf("deliberate close must not record an error, got %v", sub.Err())
	}
}

func TestSubscribe_CloseAfterNaturalTermination(t *testing.T) {
	frames := []string{
		"event: complete\ndata: {\"run_id\": \"r1\", \"status\": \"completed\"}\n\n",
	}
	srv := httptest.NewServer(sseHandler(t, frames, "hang"))
	defer srv.Close()

	sub := mustSubscribe(t, mustNewClient(t, srv.URL), "r1")
	recvEvent(t, sub)
	expectClosed(t, sub)

	if err := sub.Close(); err != nil {
		t.Errorf("Close after natural termination: %v", err)
	}
}

func TestSubscribe_TerminalEventClosesHeldOpenStream(t *testing.T) {
	// The server emits the terminal event but never closes the
	// connection. The subscription must still close itself.
	frames := []string{
		"event: complete\ndata: {\"run_id\": \"r1\", \"status\": \"completed\"}\n\n",
	}
	srv := httptest.NewServer(sseHandler(t, frames, "hang"))
	defer srv.Close()

	sub := mustSubscribe(t, mustNewClient(t, srv.URL), "r1")

	ev := recvEvent(t, sub)
	if ev.Type != types.StreamEventComplete {
		t.Fatalf("event = %+v", ev)
	}
	expectClosed(t, sub)
	if sub.Err() != nil {
		t.Errorf("self-close after terminal event must not record an error, got %v", sub.Err())
	}
}

func TestSubscribe_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such run", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := mustNewClient(t, srv.URL).Subscribe(context.Background(), "missing")
	if !errors.Is(err, client.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
