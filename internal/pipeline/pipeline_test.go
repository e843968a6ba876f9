package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/visperlabs/visper-core/internal/capture"
	"github.com/visperlabs/visper-core/internal/config"
	"github.com/visperlabs/visper-core/internal/ocr"
)

type speechRecorder struct {
	mu         sync.Mutex
	texts      []string
	err        error
	delay      time.Duration
	inFlight   int
	overlapped bool
}

func (s *speechRecorder) Speak(ctx context.Context, text string) error {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > 1 {
		s.overlapped = true
	}
	s.mu.Unlock()

	if s.delay > 0 {
		time.Sleep(s.delay)
	}

	s.mu.Lock()
	s.inFlight--
	s.texts = append(s.texts, text)
	err := s.err
	s.mu.Unlock()
	return err
}

func (s *speechRecorder) spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.texts))
	copy(out, s.texts)
	return out
}

func testOCRConfig() config.OCRConfig {
	return config.OCRConfig{
		Backends:      []string{"mock"},
		MinConfidence: 0.4,
		MinTextLen:    2,
		DebounceMS:    1500,
		MaxHistory:    10,
		CropMaxPx:     1920,
		ScaleMinPx:    400,
	}
}

func newTestPipeline(t *testing.T, cfg config.OCRConfig, source capture.Source, speech Speech, backends ...ocr.Backend) *Pipeline {
	t.Helper()
	p, err := New(Options{
		Config:   cfg,
		Source:   source,
		Backends: backends,
		Speech:   speech,
		Log:      slog.Default(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Recognition tests feed synthetic frames with no image data, so skip
	// the real image path.
	p.preprocess = func(*capture.Frame) (ocr.Image, bool) {
		return ocr.Image{PNG: []byte("png"), Width: 640, Height: 480}, true
	}
	return p
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestProcessFrameFusesLongestText(t *testing.T) {
	rec := &speechRecorder{}
	p := newTestPipeline(t, testOCRConfig(), &capture.FakeSource{}, rec,
		&ocr.MockBackend{BackendName: "short", Script: []ocr.Candidate{{Text: "hi", Confidence: 0.99}}},
		&ocr.MockBackend{BackendName: "long", Script: []ocr.Candidate{{Text: "hello world", Confidence: 0.5}}},
	)
	p.texts = NewTextQueue()

	p.processFrame(context.Background(), &capture.Frame{Timestamp: time.Now()})

	hist := p.History()
	if len(hist) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(hist))
	}
	if hist[0].Text != "hello world" || hist[0].Backend != "long" {
		t.Fatalf("longer candidate should win fusion, got %+v", hist[0])
	}
	if got, ok := p.texts.Pop(context.Background(), 10*time.Millisecond); !ok || got != "hello world" {
		t.Fatalf("expected winning text queued for speech, got %q ok=%v", got, ok)
	}
}

func TestProcessFrameRejectsBelowThresholds(t *testing.T) {
	cfg := testOCRConfig()
	cfg.MinConfidence = 0.8
	p := newTestPipeline(t, cfg, &capture.FakeSource{}, &speechRecorder{},
		&ocr.MockBackend{Script: []ocr.Candidate{{Text: "plausible text", Confidence: 0.5}}},
	)
	p.texts = NewTextQueue()

	p.processFrame(context.Background(), &capture.Frame{})

	if len(p.History()) != 0 {
		t.Fatal("low-confidence detection must not be accepted")
	}
	if p.texts.Len() != 0 {
		t.Fatal("rejected detection must not reach the speech queue")
	}
}

func TestProcessFrameMinTextLenCountsCharacters(t *testing.T) {
	cfg := testOCRConfig()
	cfg.MinTextLen = 3
	p := newTestPipeline(t, cfg, &capture.FakeSource{}, &speechRecorder{},
		&ocr.MockBackend{Script: []ocr.Candidate{
			// 2 characters, 6 bytes: below the threshold.
			{Text: "कख", Confidence: 0.9},
			// 5 characters: accepted.
			{Text: "निकास", Confidence: 0.9},
		}},
	)
	p.texts = NewTextQueue()

	p.processFrame(context.Background(), &capture.Frame{})
	if len(p.History()) != 0 {
		t.Fatal("text below the character threshold must be rejected")
	}

	p.processFrame(context.Background(), &capture.Frame{})
	hist := p.History()
	if len(hist) != 1 || hist[0].Text != "निकास" {
		t.Fatalf("expected the 5-character text accepted, got %+v", hist)
	}
}

func TestProcessFrameIgnoresFailedBackend(t *testing.T) {
	p := newTestPipeline(t, testOCRConfig(), &capture.FakeSource{}, &speechRecorder{},
		&ocr.MockBackend{BackendName: "broken", Err: context.DeadlineExceeded},
		&ocr.MockBackend{BackendName: "ok", Script: []ocr.Candidate{{Text: "readable", Confidence: 0.9}}},
	)
	p.texts = NewTextQueue()

	p.processFrame(context.Background(), &capture.Frame{})

	hist := p.History()
	if len(hist) != 1 || hist[0].Backend != "ok" {
		t.Fatalf("surviving backend should supply the detection, got %+v", hist)
	}
}

func TestProcessFrameDebouncesRepeatedText(t *testing.T) {
	p := newTestPipeline(t, testOCRConfig(), &capture.FakeSource{}, &speechRecorder{},
		&ocr.MockBackend{Script: []ocr.Candidate{
			{Text: "same text", Confidence: 0.9},
			{Text: "same text", Confidence: 0.9},
			{Text: "same text", Confidence: 0.9},
		}},
	)
	p.texts = NewTextQueue()

	p.processFrame(context.Background(), &capture.Frame{})
	p.processFrame(context.Background(), &capture.Frame{})

	if len(p.History()) != 1 {
		t.Fatalf("repeat within the debounce window must be suppressed, got %d entries", len(p.History()))
	}
	if p.texts.Len() != 1 {
		t.Fatalf("expected exactly 1 queued text, got %d", p.texts.Len())
	}

	// Age the last acceptance past the window: the same text is news again.
	p.mu.Lock()
	p.lastAccepted = time.Now().Add(-2 * time.Second)
	p.mu.Unlock()

	p.processFrame(context.Background(), &capture.Frame{})
	if len(p.History()) != 2 {
		t.Fatalf("repeat after the window should be accepted, got %d entries", len(p.History()))
	}
}

func TestProcessFrameAcceptsDifferentTextImmediately(t *testing.T) {
	p := newTestPipeline(t, testOCRConfig(), &capture.FakeSource{}, &speechRecorder{},
		&ocr.MockBackend{Script: []ocr.Candidate{
			{Text: "first line", Confidence: 0.9},
			{Text: "second line", Confidence: 0.9},
		}},
	)
	p.texts = NewTextQueue()

	p.processFrame(context.Background(), &capture.Frame{})
	p.processFrame(context.Background(), &capture.Frame{})

	if len(p.History()) != 2 {
		t.Fatalf("distinct texts are never debounced, got %d entries", len(p.History()))
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	source := &capture.FakeSource{}
	source.QueueFrame(&capture.Frame{})

	rec := &speechRecorder{}
	p := newTestPipeline(t, testOCRConfig(), source, rec,
		&ocr.MockBackend{Script: []ocr.Candidate{{Text: "exit ahead", Confidence: 0.9}}},
	)

	p.Start()
	defer p.Stop()

	waitFor(t, 2*time.Second, func() bool {
		return len(rec.spoken()) == 1
	})
	if got := rec.spoken()[0]; got != "exit ahead" {
		t.Fatalf("expected detection spoken verbatim, got %q", got)
	}

	st := p.Status()
	if !st.Running {
		t.Fatal("pipeline should report running")
	}
	if st.LastText != "exit ahead" || st.HistoryCount != 1 {
		t.Fatalf("unexpected status: %+v", st)
	}

	p.Stop()
	if p.Status().Running {
		t.Fatal("pipeline should report stopped")
	}
	if source.Closed() == 0 {
		t.Fatal("capture source must be closed on shutdown")
	}
}

func TestPipelineStartIsIdempotent(t *testing.T) {
	source := &capture.FakeSource{}
	p := newTestPipeline(t, testOCRConfig(), source, &speechRecorder{})

	p.Start()
	p.Start()
	defer p.Stop()

	waitFor(t, time.Second, func() bool { return source.Opened() == 1 })
	time.Sleep(20 * time.Millisecond)
	if source.Opened() != 1 {
		t.Fatalf("second Start must be a no-op, source opened %d times", source.Opened())
	}
}

func TestPipelineRestartReopensSource(t *testing.T) {
	source := &capture.FakeSource{}
	p := newTestPipeline(t, testOCRConfig(), source, &speechRecorder{})

	p.Start()
	waitFor(t, time.Second, func() bool { return source.Opened() == 1 })
	p.Stop()

	p.Start()
	defer p.Stop()

	waitFor(t, time.Second, func() bool { return source.Opened() == 2 })
	if !p.Status().Running {
		t.Fatal("restarted pipeline should report running")
	}
}

func TestPipelineStopWhileStoppedIsNoop(t *testing.T) {
	p := newTestPipeline(t, testOCRConfig(), &capture.FakeSource{}, &speechRecorder{})
	p.Stop()
	p.Stop()
	if p.Status().Running {
		t.Fatal("never-started pipeline must not report running")
	}
}

func TestCaptureOpenFailureStopsAllStages(t *testing.T) {
	source := &capture.FakeSource{OpenErr: context.DeadlineExceeded}
	p := newTestPipeline(t, testOCRConfig(), source, &speechRecorder{})

	p.Start()
	defer p.Stop()

	waitFor(t, time.Second, func() bool { return !p.Status().Running })
}

func TestSpeechStaysSerializedAndOrdered(t *testing.T) {
	rec := &speechRecorder{delay: 30 * time.Millisecond}
	p := newTestPipeline(t, testOCRConfig(), &capture.FakeSource{}, rec)

	p.Start()
	defer p.Stop()

	p.texts.Push("first utterance")
	p.texts.Push("second utterance")

	waitFor(t, 2*time.Second, func() bool { return len(rec.spoken()) == 2 })

	got := rec.spoken()
	if got[0] != "first utterance" || got[1] != "second utterance" {
		t.Fatalf("utterances out of order: %v", got)
	}
	if rec.overlapped {
		t.Fatal("speech calls must never overlap")
	}
}

func TestDirectSpeakUsesSpeechPath(t *testing.T) {
	rec := &speechRecorder{}
	p := newTestPipeline(t, testOCRConfig(), &capture.FakeSource{}, rec)

	if err := p.Speak(context.Background(), "manual announcement"); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if got := rec.spoken(); len(got) != 1 || got[0] != "manual announcement" {
		t.Fatalf("expected direct speak recorded, got %v", got)
	}
}
