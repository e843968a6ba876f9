package pipeline

import "time"

// HistoryEntry records one accepted detection.
type HistoryEntry struct {
	Timestamp  time.Time `json:"ts"`
	Text       string    `json:"text"`
	Backend    string    `json:"backend"`
	Confidence float64   `json:"confidence"`
}

// History is an insertion-ordered ring bounded by max entries; the oldest
// entry is evicted when capacity is exceeded. Not safe for concurrent use:
// callers hold the pipeline lock.
type History struct {
	entries []HistoryEntry
	max     int
}

func NewHistory(max int) *History {
	return &History{max: max}
}

func (h *History) Append(e HistoryEntry) {
	h.entries = append(h.entries, e)
	if len(h.entries) > h.max {
		h.entries = h.entries[len(h.entries)-h.max:]
	}
}

func (h *History) Len() int {
	return len(h.entries)
}

// Snapshot returns the entries newest first.
func (h *History) Snapshot() []HistoryEntry {
	out := make([]HistoryEntry, len(h.entries))
	for i, e := range h.entries {
		out[len(h.entries)-1-i] = e
	}
	return out
}
