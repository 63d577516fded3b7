package types

// StreamEventType names the events delivered on a run's live feed.
type StreamEventType string

// Stream event constants, matching the engine's SSE event names.
// StreamEventSnapshot never appears on the wire feed; it tags payloads
// that arrived through the pull path so both origins share one shape.
const (
	// StreamEventSnapshot carries a one-shot pull of the run document.
	StreamEventSnapshot StreamEventType = "snapshot"
	// StreamEventUpdate carries a non-terminal partial run document.
	StreamEventUpdate StreamEventType = "update"
	// StreamEventComplete carries the final document of a completed run.
	// Delivered at most once; the feed closes immediately after.
	StreamEventComplete StreamEventType = "complete"
	// StreamEventError carries either a terminal failed document or, when
	// Run is nil, signals a transport-level failure with no payload.
	StreamEventError StreamEventType = "error"
)

// IsTerminal returns true if no further events follow this one.
func (e StreamEventType) IsTerminal() bool {
	return e == StreamEventComplete || e == StreamEventError
}

// StreamEvent is one delivery from the run event feed.
type StreamEvent struct {
	// Type is the event discriminator.
	Type StreamEventType
	// Run is the carried document. Nil only for transport-failure errors,
	// where the connection dropped without a terminal payload.
	Run *Run
}

// PipelineFailure reports whether this is a server-reported pipeline
// failure, as opposed to a dropped connection. The distinction drives
// the retry affordance: pipeline failures are final, transport failures
// are reconnectable.
func (e StreamEvent) PipelineFailure() bool {
	return e.Type == StreamEventError && e.Run != nil
}
