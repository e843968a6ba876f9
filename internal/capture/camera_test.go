package capture

import (
	"errors"
	"testing"

	"github.com/visperlabs/visper-core/internal/config"
)

func TestCameraSourceOpenAfterCloseReattempts(t *testing.T) {
	src := NewCameraSource(config.CameraConfig{
		SourceType: "device",
		DeviceID:   -1,
		Width:      64,
		Height:     48,
	})

	if err := src.Close(); err != nil {
		t.Fatalf("Close before Open: %v", err)
	}

	// Reopening must reach the device again, whether or not one exists.
	if err := src.Open(); errors.Is(err, ErrSourceClosed) {
		t.Fatal("Open after Close must attempt a fresh device open")
	}
	_ = src.Close()
}

func TestCameraSourceReadAfterClose(t *testing.T) {
	src := NewCameraSource(config.CameraConfig{SourceType: "device", DeviceID: -1})

	if _, err := src.Read(); !errors.Is(err, ErrSourceClosed) {
		t.Fatalf("Read without an open device should report closed, got %v", err)
	}
}
