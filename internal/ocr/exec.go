package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// ExecBackend shells out to an external recognition engine (a PaddleOCR or
// EasyOCR wrapper, typically). The engine receives the frame as a PNG file
// and answers one JSON object on stdout: {"text": ..., "confidence": ...}.
type ExecBackend struct {
	cmd      []string
	language string
	mu       sync.Mutex
}

type execOutput struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func NewExecBackend(command, language string) (Backend, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse ocr command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("ocr command is empty")
	}
	return &ExecBackend{cmd: args, language: language}, nil
}

func (e *ExecBackend) Name() string { return "exec" }

func (e *ExecBackend) Recognize(ctx context.Context, img Image) (Candidate, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	file, err := os.CreateTemp("", "visper_ocr_*.png")
	if err != nil {
		return Candidate{}, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())

	if _, err := file.Write(img.PNG); err != nil {
		file.Close()
		return Candidate{}, fmt.Errorf("write frame: %w", err)
	}
	if err := file.Close(); err != nil {
		return Candidate{}, fmt.Errorf("close frame file: %w", err)
	}

	args := append([]string{}, e.cmd[1:]...)
	args = append(args, "--image", file.Name())
	if e.language != "" {
		args = append(args, "--language", e.language)
	}

	command := exec.CommandContext(ctx, e.cmd[0], args...)
	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return Candidate{}, fmt.Errorf("ocr command failed: %w: %s", err, stderr.String())
	}

	var out execOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return Candidate{}, fmt.Errorf("decode ocr response: %w", err)
	}
	return Candidate{Text: out.Text, Confidence: out.Confidence, Backend: e.Name()}, nil
}
