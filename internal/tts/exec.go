package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// ExecSynth runs an external synthesis engine (piper, a coqui wrapper, ...).
// The engine receives one JSON request on stdin and answers one JSON line on
// stdout carrying either base64 PCM or the path of an audio file it wrote.
type ExecSynth struct {
	cmd        []string
	sampleRate int
	channels   int
	mu         sync.Mutex
}

type execRequest struct {
	Text       string  `json:"text"`
	Voice      string  `json:"voice"`
	Speed      float64 `json:"speed"`
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
}

type execResponse struct {
	PCMBase64 string `json:"pcm_base64,omitempty"`
	Path      string `json:"path,omitempty"`
}

func NewExecSynth(command string, sampleRate, channels int) (*ExecSynth, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command is empty")
	}
	return &ExecSynth{cmd: args, sampleRate: sampleRate, channels: channels}, nil
}

func (e *ExecSynth) Synthesize(ctx context.Context, req Request) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	payload, err := json.Marshal(execRequest{
		Text:       req.Text,
		Voice:      req.Voice,
		Speed:      req.Speed,
		SampleRate: e.sampleRate,
		Channels:   e.channels,
	})
	if err != nil {
		return Result{}, err
	}

	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start tts command: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 32*1024*1024)
	var resp execResponse
	decoded := false
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := json.Unmarshal(line, &resp); err != nil {
			_ = cmd.Wait()
			return Result{}, fmt.Errorf("decode tts response: %w", err)
		}
		decoded = true
		break
	}
	if err := cmd.Wait(); err != nil {
		return Result{}, fmt.Errorf("tts command failed: %w: %s", err, stderr.String())
	}
	if !decoded {
		return Result{}, fmt.Errorf("tts command produced no response")
	}

	if resp.Path != "" {
		return Result{Path: resp.Path}, nil
	}
	pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
	if err != nil {
		return Result{}, fmt.Errorf("decode pcm: %w", err)
	}
	if len(pcm) == 0 {
		return Result{}, fmt.Errorf("tts command returned empty audio")
	}
	return Result{PCM: pcm, SampleRate: e.sampleRate, Channels: e.channels}, nil
}
