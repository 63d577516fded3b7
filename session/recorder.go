package session

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pithecene-io/dossier/types"
)

// Recorder appends accepted payloads to a session log. Its Observe method
// fits the watcher's Observer hook. Safe for single-writer use; writes
// after the first failure are dropped and the error is reported by Close.
type Recorder struct {
	mu  sync.Mutex
	f   *os.File
	buf *bufio.Writer
	err error
}

// NewRecorder creates (or truncates) a session log at path.
func NewRecorder(path string) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create session log: %w", err)
	}
	return &Recorder{f: f, buf: bufio.NewWriter(f)}, nil
}

// Observe records one accepted payload. Errors are sticky and surface at
// Close; recording must never disturb a live watch.
func (r *Recorder) Observe(ev types.StreamEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}

	var doc []byte
	if ev.Run != nil {
		var err error
		doc, err = json.Marshal(ev.Run)
		if err != nil {
			r.err = fmt.Errorf("record payload: %w", err)
			return
		}
	}

	frame := &Frame{
		Version: types.Version,
		Event:   string(ev.Type),
		At:      time.Now().UTC().Format(time.RFC3339Nano),
		Doc:     doc,
	}
	if err := EncodeFrame(r.buf, frame); err != nil {
		r.err = err
	}
}

// Close flushes and closes the log, reporting any write error seen during
// the session.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	flushErr := r.buf.Flush()
	closeErr := r.f.Close()
	switch {
	case r.err != nil:
		return r.err
	case flushErr != nil:
		return fmt.Errorf("flush session log: %w", flushErr)
	case closeErr != nil:
		return fmt.Errorf("close session log: %w", closeErr)
	}
	return nil
}

// Replay reads a session log and calls fn for every frame in order,
// reconstructing the run document for frames that carry one. Replay stops
// at the first fn error or malformed frame.
func Replay(r io.Reader, fn func(*Frame, *types.Run) error) error {
	br := bufio.NewReader(r)
	for {
		frame, err := DecodeFrame(br)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		var run *types.Run
		if len(frame.Doc) > 0 {
			run = &types.Run{}
			if err := json.Unmarshal(frame.Doc, run); err != nil {
				return fmt.Errorf("replay frame: %w", err)
			}
		}
		if err := fn(frame, run); err != nil {
			return err
		}
	}
}

// ReplayFile is Replay over a file path.
func ReplayFile(path string, fn func(*Frame, *types.Run) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open session log: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Replay(f, fn)
}
