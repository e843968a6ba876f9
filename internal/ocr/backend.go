package ocr

import "context"

// Candidate is one backend's unverified text extraction for a single frame.
// An empty Text means the backend saw nothing usable.
type Candidate struct {
	Text       string
	Confidence float64
	Backend    string
}

// Empty reports whether the candidate carries no text.
func (c Candidate) Empty() bool { return c.Text == "" }

// Image is a preprocessed single-channel frame handed to backends.
type Image struct {
	PNG    []byte
	Width  int
	Height int
}

// Backend abstracts one OCR implementation. Backends are independent and
// optional: an error from one must never affect another, and the recognition
// stage treats any error as "no candidate".
type Backend interface {
	Name() string
	Recognize(ctx context.Context, img Image) (Candidate, error)
}
