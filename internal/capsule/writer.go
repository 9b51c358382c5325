package capsule

import (
	"fmt"
	"io"
	"sync"
)

// Writer writes capsules to a stream. Safe for concurrent use: the control
// stream is shared between the session's read and write goroutines.
type Writer struct {
	w  io.Writer
	mu sync.Mutex
}

// NewWriter creates a new Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteCapsule writes a capsule to the stream.
func (cw *Writer) WriteCapsule(cap *Capsule) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	encoded, err := Encode(cap)
	if err != nil {
		return fmt.Errorf("encode capsule: %w", err)
	}

	if _, err := cw.w.Write(encoded); err != nil {
		return fmt.Errorf("write capsule: %w", err)
	}

	return nil
}
