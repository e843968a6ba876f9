package tts

import "context"

// Request contains parameters to synthesize speech.
type Request struct {
	Text  string
	Voice string
	Speed float64
}

// Result is what a synthesizer produced: either a decoded sample buffer or a
// reference to an audio file on disk. Playback consumes both uniformly.
type Result struct {
	// PCM holds signed 16-bit little-endian samples when the synthesizer
	// returned raw audio.
	PCM        []byte
	SampleRate int
	Channels   int

	// Path references an audio artifact when the synthesizer wrote a file
	// instead.
	Path string
}

// IsFile reports whether the result references an on-disk artifact.
func (r Result) IsFile() bool { return r.Path != "" }

// Synthesizer is the contract for the primary speech backend.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (Result, error)
}

// Fallback is the secondary OS-level backend. It plays as a side effect and
// reports only whether the attempt failed.
type Fallback interface {
	Say(ctx context.Context, text string, speed, volume float64, voice string) error
}

// Sink plays a synthesis result. Implementations block until playback ends.
type Sink interface {
	Play(ctx context.Context, res Result) error
}
