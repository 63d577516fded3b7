// Package session records and replays run observation sessions.
//
// A session log is a sequence of length-prefixed msgpack frames, one per
// payload the watcher accepted. Replaying a log drives the same
// merge/derive path as a live watch, which makes reconciliation bugs
// reproducible offline.
package session

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (16 MiB), including prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// ErrFrameTooLarge indicates a frame exceeding MaxFrameSize.
var ErrFrameTooLarge = errors.New("session frame too large")

// Frame is one recorded payload delivery.
type Frame struct {
	// Version is the session log format version (types.Version at write).
	Version string `msgpack:"version"`
	// Event is the payload origin: snapshot, update, complete, error.
	Event string `msgpack:"event"`
	// At is the receipt timestamp in ISO 8601 UTC format.
	At string `msgpack:"at"`
	// Doc is the run document as JSON bytes. Empty for payload-less
	// transport failures.
	Doc []byte `msgpack:"doc"`
}

// EncodeFrame writes one frame: a 4-byte big-endian length prefix
// followed by the msgpack payload.
func EncodeFrame(w io.Writer, f *Frame) error {
	payload, err := msgpack.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode session frame: %w", err)
	}
	if len(payload) > MaxFrameSize-LengthPrefixSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}

	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("write frame prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// DecodeFrame reads one frame. Returns io.EOF at a clean end of stream;
// a truncated frame yields io.ErrUnexpectedEOF.
func DecodeFrame(r io.Reader) (*Frame, error) {
	var prefix [LengthPrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame prefix: %w", err)
	}

	size := binary.BigEndian.Uint32(prefix[:])
	if size > MaxFrameSize-LengthPrefixSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read frame payload: %w", err)
	}

	var f Frame
	if err := msgpack.Unmarshal(payload, &f); err != nil {
		return nil, fmt.Errorf("decode session frame: %w", err)
	}
	return &f, nil
}
