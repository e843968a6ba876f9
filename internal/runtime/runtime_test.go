package runtime

import (
	"testing"

	"github.com/visperlabs/visper-core/internal/config"
)

func TestRestartOnlySections(t *testing.T) {
	old := config.Default()
	next := config.Default()

	if got := restartOnlySections(old, next); len(got) != 0 {
		t.Fatalf("identical configs should report nothing, got %v", got)
	}

	next.Journal.RetentionDays = 7
	next.Bus.Enabled = true
	next.HTTP.Port = 9090

	got := restartOnlySections(old, next)
	want := map[string]bool{"http": true, "bus": true, "journal": true}
	if len(got) != len(want) {
		t.Fatalf("expected %d stale sections, got %v", len(want), got)
	}
	for _, s := range got {
		if !want[s] {
			t.Fatalf("unexpected stale section %q in %v", s, got)
		}
	}
}

func TestRestartOnlySectionsIgnoresReloadable(t *testing.T) {
	old := config.Default()
	next := config.Default()

	next.OCR.DebounceMS = 3000
	next.Camera.DeviceID = 1
	next.TTS.Voice = "en+f3"

	if got := restartOnlySections(old, next); len(got) != 0 {
		t.Fatalf("pipeline sections are applied by reload, got %v", got)
	}
}
