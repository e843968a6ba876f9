package tts

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/visperlabs/visper-core/internal/config"
)

// ErrUtteranceDropped reports that neither the primary nor the secondary
// backend managed to produce audible output. The utterance is never retried.
var ErrUtteranceDropped = errors.New("tts: utterance dropped")

// Speaker turns text into audible speech. It serializes every call, so two
// utterances never overlap regardless of which path requested them. The
// primary synthesizer is optional; its absence or any failure falls back to
// the secondary OS-level backend.
type Speaker struct {
	cfg      config.TTSConfig
	primary  Synthesizer
	fallback Fallback
	sink     Sink
	log      *slog.Logger

	mu sync.Mutex
}

func NewSpeaker(cfg config.TTSConfig, primary Synthesizer, fallback Fallback, sink Sink, log *slog.Logger) *Speaker {
	return &Speaker{
		cfg:      cfg,
		primary:  primary,
		fallback: fallback,
		sink:     sink,
		log:      log.With(slog.String("component", "speaker")),
	}
}

// Speak synthesizes and plays text, blocking until the utterance finished or
// was dropped. Returns ErrUtteranceDropped when all paths failed; the caller
// must not retry.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.primary != nil {
		res, err := s.primary.Synthesize(ctx, Request{
			Text:  text,
			Voice: s.cfg.Voice,
			Speed: s.cfg.Speed,
		})
		if err == nil {
			if playErr := s.sink.Play(ctx, res); playErr != nil {
				// Synthesis succeeded but no playback path worked; the
				// utterance is lost, not re-synthesized.
				s.log.Warn("playback failed, utterance dropped",
					slog.String("error", playErr.Error()))
				return ErrUtteranceDropped
			}
			return nil
		}
		s.log.Warn("primary synthesis failed, falling back",
			slog.String("error", err.Error()))
	}

	if s.fallback == nil {
		s.log.Warn("no speech backend available, utterance dropped")
		return ErrUtteranceDropped
	}
	if err := s.fallback.Say(ctx, text, s.cfg.Speed, s.cfg.Volume, s.cfg.Voice); err != nil {
		s.log.Warn("fallback synthesis failed, utterance dropped",
			slog.String("error", err.Error()))
		return ErrUtteranceDropped
	}
	return nil
}
