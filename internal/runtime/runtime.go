package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/visperlabs/visper-core/internal/bus"
	"github.com/visperlabs/visper-core/internal/capture"
	"github.com/visperlabs/visper-core/internal/config"
	"github.com/visperlabs/visper-core/internal/journal"
	"github.com/visperlabs/visper-core/internal/natsserver"
	"github.com/visperlabs/visper-core/internal/ocr"
	"github.com/visperlabs/visper-core/internal/pipeline"
	"github.com/visperlabs/visper-core/internal/tts"
)

// Runtime wires the process together: telemetry, ops HTTP, the optional
// message bus, the detection journal, and the capture→OCR→speech pipeline.
// A config file change builds a fresh pipeline and swaps it in; the old one
// is stopped after the swap, never mutated in place.
type Runtime struct {
	cfg        config.Config
	cfgPath    string
	logger     *slog.Logger
	httpServer *http.Server

	tracerClose func(context.Context) error
	embedded    *natsserver.EmbeddedServer
	busClient   *bus.Client
	jrnl        *journal.Journal

	pipe  atomic.Pointer[pipeline.Pipeline]
	ready atomic.Bool
	wg    sync.WaitGroup
}

func New(cfg config.Config, cfgPath string, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:     cfg,
		cfgPath: cfgPath,
		logger:  logger,
	}
}

// Start runs the process until ctx is cancelled, then shuts everything down
// in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	if r.cfg.Bus.Enabled {
		if r.cfg.Bus.Embedded {
			srv, err := natsserver.Start(r.cfg.Bus, r.logger)
			if err != nil {
				return fmt.Errorf("failed to start embedded bus: %w", err)
			}
			r.embedded = srv
		}
		client, err := bus.Connect(r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to bus: %w", err)
		}
		r.busClient = client
	}

	jrnl, err := journal.Open(ctx, r.cfg.Journal, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open detection journal: %w", err)
	}
	r.jrnl = jrnl

	pipe, err := r.buildPipeline(r.cfg)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}
	pipe.Start()
	r.pipe.Store(pipe)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricHandler != nil {
		mux.Handle("/metrics", metricHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	watcher, err := newConfigWatcher(r.cfgPath, r.logger, r.reload)
	if err != nil {
		r.logger.Warn("config watcher disabled", slog.String("error", err.Error()))
	} else {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			watcher.run(ctx)
		}()
	}

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if p := r.pipe.Swap(nil); p != nil {
		p.Stop()
	}
	if r.busClient != nil {
		r.busClient.Close()
	}
	if r.embedded != nil {
		r.embedded.Shutdown()
	}
	if err := r.jrnl.Close(); err != nil {
		r.logger.Error("journal close error", slog.String("error", err.Error()))
	}
	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// Pipeline returns the live pipeline, or nil before Start.
func (r *Runtime) Pipeline() *pipeline.Pipeline {
	return r.pipe.Load()
}

// buildPipeline assembles a pipeline from config: capture source, available
// OCR backends, and the speech path with its fallback.
func (r *Runtime) buildPipeline(cfg config.Config) (*pipeline.Pipeline, error) {
	source := capture.NewCameraSource(cfg.Camera)

	registry := ocr.NewRegistry(r.logger)
	registry.Register("tesseract", func() (ocr.Backend, error) {
		return ocr.NewTesseractBackend(cfg.OCR.Language)
	})
	if cfg.OCR.Command != "" {
		registry.Register("exec", func() (ocr.Backend, error) {
			return ocr.NewExecBackend(cfg.OCR.Command, cfg.OCR.Language)
		})
	}
	backends := registry.Enabled(cfg.OCR.Backends)
	if len(backends) == 0 {
		r.logger.Warn("no ocr backend available, pipeline will not produce detections")
	}

	var primary tts.Synthesizer
	switch cfg.TTS.Mode {
	case "mock":
		primary = tts.NewMockSynth(cfg.TTS.SampleRate, cfg.TTS.Channels)
	default:
		if cfg.TTS.Command != "" {
			synth, err := tts.NewExecSynth(cfg.TTS.Command, cfg.TTS.SampleRate, cfg.TTS.Channels)
			if err != nil {
				r.logger.Warn("primary tts unavailable", slog.String("error", err.Error()))
			} else {
				primary = synth
			}
		}
	}

	var fallback tts.Fallback
	if cfg.TTS.FallbackCommand != "" {
		espeak, err := tts.NewEspeak(cfg.TTS.FallbackCommand)
		if err != nil {
			r.logger.Warn("fallback tts unavailable", slog.String("error", err.Error()))
		} else {
			fallback = espeak
		}
	}

	speaker := tts.NewSpeaker(cfg.TTS, primary, fallback, tts.NewPlayer(r.logger), r.logger)

	var pub pipeline.Publisher
	if r.busClient != nil {
		pub = r.busClient
	}

	return pipeline.New(pipeline.Options{
		Config:    cfg.OCR,
		Source:    source,
		Backends:  backends,
		Speech:    speaker,
		Journal:   r.jrnl,
		Publisher: pub,
		Log:       r.logger,
	})
}

// reload applies a changed config file: build the replacement pipeline first,
// swap the pointer, then stop the old one. A config that fails to load or
// build leaves the running pipeline untouched.
func (r *Runtime) reload() {
	cfg, err := config.Load(r.cfgPath)
	if err != nil {
		r.logger.Warn("config reload rejected", slog.String("error", err.Error()))
		return
	}

	if stale := restartOnlySections(r.cfg, cfg); len(stale) > 0 {
		r.logger.Warn("config sections changed that only apply on restart",
			slog.String("sections", strings.Join(stale, ",")))
	}

	next, err := r.buildPipeline(cfg)
	if err != nil {
		r.logger.Warn("config reload rejected", slog.String("error", err.Error()))
		return
	}
	next.Start()

	prev := r.pipe.Swap(next)
	if prev != nil {
		prev.Stop()
	}
	r.cfg.OCR = cfg.OCR
	r.cfg.Camera = cfg.Camera
	r.cfg.TTS = cfg.TTS
	r.logger.Info("pipeline reloaded from config change")
}

// restartOnlySections names the changed config sections that reload does not
// apply: those are wired at Start and keep their old values until the process
// restarts.
func restartOnlySections(old, next config.Config) []string {
	var stale []string
	if !reflect.DeepEqual(old.HTTP, next.HTTP) {
		stale = append(stale, "http")
	}
	if !reflect.DeepEqual(old.Telemetry, next.Telemetry) {
		stale = append(stale, "telemetry")
	}
	if !reflect.DeepEqual(old.Bus, next.Bus) {
		stale = append(stale, "bus")
	}
	if !reflect.DeepEqual(old.Journal, next.Journal) {
		stale = append(stale, "journal")
	}
	if old.RuntimeName != next.RuntimeName || old.Environment != next.Environment {
		stale = append(stale, "runtime")
	}
	return stale
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
