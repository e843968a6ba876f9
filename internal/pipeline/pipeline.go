package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/visperlabs/visper-core/internal/capture"
	"github.com/visperlabs/visper-core/internal/config"
	"github.com/visperlabs/visper-core/internal/journal"
	"github.com/visperlabs/visper-core/internal/ocr"
	"github.com/visperlabs/visper-core/internal/protocol"
)

// State is the pipeline lifecycle state.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const (
	frameWait   = 300 * time.Millisecond
	textWait    = 500 * time.Millisecond
	readRetry   = 10 * time.Millisecond
	joinTimeout = 3 * time.Second
)

// Speech abstracts the serialized speak path (tts.Speaker in production).
type Speech interface {
	Speak(ctx context.Context, text string) error
}

// Publisher abstracts the optional event bus (bus.Client in production).
type Publisher interface {
	Publish(subject string, payload []byte) error
}

// Status is a derived, read-only view of the pipeline.
type Status struct {
	Running      bool   `json:"running"`
	LastText     string `json:"last_text"`
	HistoryCount int    `json:"history_count"`
}

// Options assembles a pipeline's collaborators. Source and Speech are
// required; Journal and Publisher may be nil.
type Options struct {
	Config    config.OCRConfig
	Source    capture.Source
	Backends  []ocr.Backend
	Speech    Speech
	Journal   *journal.Journal
	Publisher Publisher
	Log       *slog.Logger
}

// Pipeline is the three-stage streaming core: Capture → Recognition/Fusion →
// Speech. It is a value owned by the caller; a configuration change builds a
// new Pipeline and swaps the reference rather than mutating a running one.
type Pipeline struct {
	cfg      config.OCRConfig
	source   capture.Source
	backends []ocr.Backend
	speech   Speech
	journal  *journal.Journal
	pub      Publisher
	log      *slog.Logger
	met      *metrics

	preprocess func(*capture.Frame) (ocr.Image, bool)

	mu           sync.Mutex
	state        State
	runID        string
	runCtx       context.Context
	runCancel    context.CancelFunc
	runWG        *sync.WaitGroup
	frames       *FrameSlot
	texts        *TextQueue
	history      *History
	lastText     string
	lastAccepted time.Time
}

func New(opts Options) (*Pipeline, error) {
	if opts.Source == nil {
		return nil, errors.New("pipeline: source is required")
	}
	if opts.Speech == nil {
		return nil, errors.New("pipeline: speech is required")
	}
	if opts.Log == nil {
		return nil, errors.New("pipeline: logger is required")
	}

	met, err := newMetrics()
	if err != nil {
		return nil, fmt.Errorf("init pipeline metrics: %w", err)
	}

	pre := ocr.PreprocessOptions{
		CropMaxPx:  opts.Config.CropMaxPx,
		ScaleMinPx: opts.Config.ScaleMinPx,
	}
	return &Pipeline{
		cfg:      opts.Config,
		source:   opts.Source,
		backends: opts.Backends,
		speech:   opts.Speech,
		journal:  opts.Journal,
		pub:      opts.Publisher,
		log:      opts.Log.With(slog.String("component", "pipeline")),
		met:      met,
		preprocess: func(f *capture.Frame) (ocr.Image, bool) {
			return ocr.Preprocess(f, pre)
		},
		history: NewHistory(opts.Config.MaxHistory),
	}, nil
}

// Start spawns the three stage workers. Idempotent: a pipeline that is
// already starting, running, or stopping is left alone.
func (p *Pipeline) Start() {
	p.mu.Lock()
	if p.state != StateStopped {
		p.mu.Unlock()
		return
	}
	p.state = StateStarting

	ctx, cancel := context.WithCancel(context.Background())
	p.runCtx = ctx
	p.runCancel = cancel
	p.runID = uuid.NewString()
	p.frames = NewFrameSlot()
	p.texts = NewTextQueue()

	wg := &sync.WaitGroup{}
	p.runWG = wg
	wg.Add(3)
	go p.captureLoop(ctx, wg)
	go p.recognizeLoop(ctx, wg)
	go p.speechLoop(ctx, wg)

	p.state = StateRunning
	runID := p.runID
	p.mu.Unlock()

	p.log.Info("pipeline started", slog.String("run_id", runID))
}

// Stop cancels the shared run context — which doubles as the sentinel that
// unblocks every parked receive — and joins the workers with a bounded
// timeout. A straggler is abandoned, not forcibly terminated. Calling Stop on
// a stopped pipeline is a no-op.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	if p.state != StateRunning {
		p.mu.Unlock()
		return
	}
	p.state = StateStopping
	cancel := p.runCancel
	wg := p.runWG
	frames := p.frames
	p.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(joinTimeout):
		p.log.Warn("pipeline worker did not stop in time")
	}

	frames.Drain()

	p.mu.Lock()
	p.state = StateStopped
	p.mu.Unlock()

	p.log.Info("pipeline stopped")
}

// Status reads the derived view under the shared lock: no torn reads.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	running := p.state == StateRunning && p.runCtx != nil && p.runCtx.Err() == nil
	return Status{
		Running:      running,
		LastText:     p.lastText,
		HistoryCount: p.history.Len(),
	}
}

// History returns accepted detections, newest first.
func (p *Pipeline) History() []HistoryEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.history.Snapshot()
}

// Speak synthesizes text directly, bypassing the detection path. It shares
// the serialized speak path, so it cannot overlap pipeline speech.
func (p *Pipeline) Speak(ctx context.Context, text string) error {
	return p.speech.Speak(ctx, text)
}

// fail cancels the run: every stage observes the shared context and exits.
func (p *Pipeline) fail() {
	p.mu.Lock()
	cancel := p.runCancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (p *Pipeline) captureLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	if err := p.source.Open(); err != nil {
		// Fatal: signal pipeline-wide failure so recognition and speech do
		// not idle forever.
		p.log.Error("capture source open failed", slog.String("error", err.Error()))
		p.fail()
		return
	}
	defer func() {
		if err := p.source.Close(); err != nil {
			p.log.Warn("capture source close failed", slog.String("error", err.Error()))
		}
	}()

	interval := p.cfg.CaptureInterval()
	var lastPush time.Time

	for ctx.Err() == nil {
		frame, err := p.source.Read()
		if err != nil {
			if errors.Is(err, capture.ErrSourceClosed) {
				return
			}
			p.met.add(p.met.readErrors, 1)
			select {
			case <-ctx.Done():
				return
			case <-time.After(readRetry):
			}
			continue
		}

		if time.Since(lastPush) < interval {
			frame.Close()
			continue
		}
		lastPush = time.Now()

		before := p.frames.Drops()
		p.frames.Put(frame)
		if after := p.frames.Drops(); after > before {
			p.met.add(p.met.framesDropped, int64(after-before))
		}
		p.met.add(p.met.framesCaptured, 1)
	}
}

func (p *Pipeline) recognizeLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for ctx.Err() == nil {
		frame, ok := p.frames.Take(ctx, frameWait)
		if !ok {
			continue
		}
		p.processFrame(ctx, frame)
	}
}

func (p *Pipeline) processFrame(ctx context.Context, frame *capture.Frame) {
	defer frame.Close()

	img, ok := p.preprocess(frame)
	if !ok {
		return
	}

	candidates := make([]ocr.Candidate, 0, len(p.backends))
	for _, backend := range p.backends {
		cand, err := recognizeOne(ctx, backend, img)
		if err != nil {
			p.log.Debug("ocr backend failed",
				slog.String("backend", backend.Name()),
				slog.String("error", err.Error()))
			continue
		}
		cand.Text = strings.TrimSpace(cand.Text)
		if cand.Empty() || !ocr.Plausible(cand.Text, p.cfg.MinTextLen) {
			continue
		}
		candidates = append(candidates, cand)
	}
	p.met.add(p.met.candidates, int64(len(candidates)))

	best, ok := ocr.Fuse(candidates)
	if !ok {
		return
	}
	if best.Confidence < p.cfg.MinConfidence || utf8.RuneCountInString(best.Text) < p.cfg.MinTextLen {
		return
	}

	now := time.Now()
	p.mu.Lock()
	if best.Text == p.lastText && now.Sub(p.lastAccepted) < p.cfg.DebounceWindow() {
		p.mu.Unlock()
		p.met.add(p.met.debounced, 1)
		return
	}
	p.history.Append(HistoryEntry{
		Timestamp:  now,
		Text:       best.Text,
		Backend:    best.Backend,
		Confidence: best.Confidence,
	})
	p.lastText = best.Text
	p.lastAccepted = now
	runID := p.runID
	p.mu.Unlock()

	p.met.add(p.met.accepted, 1)
	p.recordDetection(ctx, runID, best, now)
	p.texts.Push(best.Text)
}

// recognizeOne shields the stage from a misbehaving backend: an error or a
// panic becomes "no candidate" from that backend only.
func recognizeOne(ctx context.Context, backend ocr.Backend, img ocr.Image) (cand ocr.Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			cand = ocr.Candidate{}
			err = fmt.Errorf("backend panic: %v", r)
		}
	}()
	return backend.Recognize(ctx, img)
}

// recordDetection persists and publishes an acceptance. Both paths are best
// effort: failures are logged and never reach the stage.
func (p *Pipeline) recordDetection(ctx context.Context, runID string, best ocr.Candidate, at time.Time) {
	if p.journal != nil {
		jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		err := p.journal.Append(jctx, journal.Detection{
			RunID:      runID,
			Text:       best.Text,
			Backend:    best.Backend,
			Confidence: best.Confidence,
			CreatedAt:  at.UTC(),
		})
		cancel()
		if err != nil {
			p.log.Warn("journal append failed", slog.String("error", err.Error()))
		}
	}
	if p.pub != nil {
		msg := protocol.Detection{
			RunID:      runID,
			Text:       best.Text,
			Backend:    best.Backend,
			Confidence: best.Confidence,
			Timestamp:  at.UTC(),
		}
		if data, err := json.Marshal(msg); err == nil {
			if err := p.pub.Publish(protocol.SubjectDetection, data); err != nil {
				p.log.Warn("detection publish failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (p *Pipeline) speechLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for ctx.Err() == nil {
		text, ok := p.texts.Pop(ctx, textWait)
		if !ok {
			continue
		}

		// Blocking call: speech stays strictly FIFO and never overlaps.
		err := p.speech.Speak(ctx, text)
		if err != nil {
			p.met.add(p.met.speechFailures, 1)
			p.log.Warn("utterance dropped", slog.String("error", err.Error()))
		} else {
			p.met.add(p.met.spoken, 1)
		}
		p.publishUtterance(text, err != nil)
	}
}

func (p *Pipeline) publishUtterance(text string, dropped bool) {
	if p.pub == nil {
		return
	}
	p.mu.Lock()
	runID := p.runID
	p.mu.Unlock()

	msg := protocol.Utterance{
		RunID:     runID,
		Text:      text,
		Dropped:   dropped,
		Timestamp: time.Now().UTC(),
	}
	if data, err := json.Marshal(msg); err == nil {
		if err := p.pub.Publish(protocol.SubjectUtterance, data); err != nil {
			p.log.Warn("utterance publish failed", slog.String("error", err.Error()))
		}
	}
}
