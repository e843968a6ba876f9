package journal

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/visperlabs/visper-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	cfg := config.JournalConfig{RetentionMode: "ephemeral"}
	j, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })

	if err := j.Append(context.Background(), Detection{RunID: "r", Text: "exit"}); err != nil {
		t.Fatalf("ephemeral append: %v", err)
	}
	out, err := j.ListRecent(context.Background(), 10)
	if err != nil || out != nil {
		t.Fatalf("ephemeral journal must stay empty, got %v, %v", out, err)
	}
}

func TestAppendAndListNewestFirst(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.JournalConfig{Path: filepath.Join(tmp, "detections.db"), RetentionMode: "persistent"}
	j, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, text := range []string{"first", "second", "third"} {
		d := Detection{RunID: "run-1", Text: text, Backend: "tesseract", Confidence: 0.8, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := j.Append(context.Background(), d); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	out, err := j.ListRecent(context.Background(), 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 detections, got %d", len(out))
	}
	if out[0].Text != "third" || out[1].Text != "second" {
		t.Fatalf("expected newest first, got %q then %q", out[0].Text, out[1].Text)
	}
}

func TestPruneByDaysAndCap(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.JournalConfig{
		Path:          filepath.Join(tmp, "detections.db"),
		RetentionMode: "persistent",
		RetentionDays: 1,
		MaxDetections: 2,
	}
	j, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })

	j.clock = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	if err := j.Append(context.Background(), Detection{RunID: "r", Text: "stale"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	j.clock = func() time.Time { return time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC) }
	for _, text := range []string{"a", "b", "c"} {
		if err := j.Append(context.Background(), Detection{RunID: "r", Text: text}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := j.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	out, err := j.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected cap of 2 after prune, got %d", len(out))
	}
	for _, d := range out {
		if d.Text == "stale" {
			t.Fatal("expected stale detection pruned by age")
		}
	}
	if out[0].Text != "c" || out[1].Text != "b" {
		t.Fatalf("expected newest retained, got %q, %q", out[0].Text, out[1].Text)
	}
}
