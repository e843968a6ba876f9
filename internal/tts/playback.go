package tts

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Player renders synthesis results on the default playback device. When no
// device is available it writes the audio to a recoverable WAV artifact and
// hands it to the platform's default opener; a failure there is logged and
// the utterance is dropped.
type Player struct {
	log *slog.Logger
}

func NewPlayer(log *slog.Logger) *Player {
	return &Player{log: log.With(slog.String("component", "playback"))}
}

func (p *Player) Play(ctx context.Context, res Result) error {
	pcm := res.PCM
	rate := res.SampleRate
	channels := res.Channels

	if res.IsFile() {
		var err error
		pcm, rate, channels, err = decodeWav(res.Path)
		if err != nil {
			return fmt.Errorf("decode audio artifact: %w", err)
		}
	}
	if len(pcm) == 0 {
		return nil
	}

	if err := p.playPCM(ctx, pcm, rate, channels); err != nil {
		p.log.Warn("playback device unavailable", slog.String("error", err.Error()))
		return p.openArtifact(res, pcm, rate, channels)
	}
	return nil
}

func (p *Player) playPCM(ctx context.Context, pcm []byte, rate, channels int) error {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	cfg := malgo.DefaultDeviceConfig(malgo.Playback)
	cfg.Playback.Format = malgo.FormatS16
	cfg.Playback.Channels = uint32(channels)
	cfg.SampleRate = uint32(rate)

	var (
		offset int
		once   sync.Once
		done   = make(chan struct{})
	)
	onData := func(out, _ []byte, _ uint32) {
		n := copy(out, pcm[offset:])
		offset += n
		if n < len(out) {
			for i := n; i < len(out); i++ {
				out[i] = 0
			}
			once.Do(func() { close(done) })
		}
	}

	device, err := malgo.InitDevice(mctx.Context, cfg, malgo.DeviceCallbacks{Data: onData})
	if err != nil {
		return fmt.Errorf("init playback device: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("start playback: %w", err)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// openArtifact is the last-resort path: make sure the audio exists as a WAV
// file and let the platform handle it.
func (p *Player) openArtifact(res Result, pcm []byte, rate, channels int) error {
	path := res.Path
	if path == "" {
		path = filepath.Join(os.TempDir(), "visper_last_audio.wav")
		if err := writeWav(path, pcm, rate, channels); err != nil {
			p.log.Warn("failed to write audio artifact", slog.String("error", err.Error()))
			return err
		}
	}
	if err := openWithDefaultHandler(path); err != nil {
		p.log.Warn("failed to open audio artifact",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return err
	}
	p.log.Info("audio routed to artifact", slog.String("path", path))
	return nil
}

func openWithDefaultHandler(path string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", path).Start()
	case "windows":
		return exec.Command("cmd", "/c", "start", "", path).Start()
	default:
		return exec.Command("xdg-open", path).Start()
	}
}

func writeWav(path string, pcm []byte, rate, channels int) error {
	if len(pcm)%2 != 0 {
		return fmt.Errorf("pcm payload not aligned")
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	defer file.Close()

	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:   samples,
	}

	enc := wav.NewEncoder(file, rate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

func decodeWav(path string) ([]byte, int, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer file.Close()

	dec := wav.NewDecoder(file)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("read wav: %w", err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, 0, 0, fmt.Errorf("wav carries no samples")
	}

	shift := uint(0)
	if dec.BitDepth > 16 {
		shift = uint(dec.BitDepth - 16)
	}
	pcm := make([]byte, len(buf.Data)*2)
	for i, s := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(s>>shift)))
	}
	return pcm, buf.Format.SampleRate, buf.Format.NumChannels, nil
}
