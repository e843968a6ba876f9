package protocol

import "time"

// Detection is an accepted recognition result broadcast for outer surfaces
// (dashboard, loggers). The core never consumes these itself.
type Detection struct {
	RunID      string    `json:"run_id"`
	Text       string    `json:"text"`
	Backend    string    `json:"backend"`
	Confidence float64   `json:"confidence,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Utterance reports that a detection was spoken (or dropped).
type Utterance struct {
	RunID     string    `json:"run_id"`
	Text      string    `json:"text"`
	Dropped   bool      `json:"dropped,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectDetection = "vision.text.final"
	SubjectUtterance = "speech.utterance"
)
