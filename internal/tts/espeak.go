package tts

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/mattn/go-shellwords"
)

// Espeak drives espeak-ng (or a compatible command) as the secondary speech
// backend. It plays audio as a side effect of the process and carries no
// decoded samples back.
type Espeak struct {
	cmd []string
}

func NewEspeak(command string) (*Espeak, error) {
	if command == "" {
		command = "espeak-ng"
	}
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse fallback command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("fallback command is empty")
	}
	return &Espeak{cmd: args}, nil
}

// Say speaks the text. Speed 1.0 maps to espeak's default 150 words per
// minute; volume maps onto the 0..200 amplitude range.
func (e *Espeak) Say(ctx context.Context, text string, speed, volume float64, voice string) error {
	if speed <= 0 {
		speed = 1.0
	}
	args := append([]string{}, e.cmd[1:]...)
	args = append(args,
		fmt.Sprintf("-s%d", int(150*speed)),
		fmt.Sprintf("-a%d", clampInt(int(volume*200), 0, 200)),
	)
	if voice != "" {
		args = append(args, "-v", voice)
	}
	args = append(args, text)

	cmd := exec.CommandContext(ctx, e.cmd[0], args...)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("espeak failed: %w", err)
	}
	return nil
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
