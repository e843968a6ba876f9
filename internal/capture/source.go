package capture

import (
	"errors"
	"time"

	"gocv.io/x/gocv"
)

// ErrSourceClosed is returned by Read after the source has been released.
var ErrSourceClosed = errors.New("capture: source closed")

// Frame is one captured image plus its capture timestamp. Frames are
// ephemeral: whoever holds the frame last must call Close to release the
// underlying pixel buffer.
type Frame struct {
	Img       *gocv.Mat
	Timestamp time.Time
}

// Close releases the frame's pixel buffer. Safe to call more than once and on
// frames that never carried an image.
func (f *Frame) Close() {
	if f == nil || f.Img == nil {
		return
	}
	_ = f.Img.Close()
	f.Img = nil
}

// Source abstracts a frame producer. Implementations are opened once by the
// capture stage, read in a loop, and released unconditionally on shutdown.
type Source interface {
	// Open acquires the underlying device. An error here is fatal to the
	// pipeline.
	Open() error
	// Read returns the next frame. Transient failures return a nil frame and
	// a non-nil error; the caller pauses briefly and retries.
	Read() (*Frame, error)
	// Close releases the device. Idempotent.
	Close() error
}
