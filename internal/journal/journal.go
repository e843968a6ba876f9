package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/visperlabs/visper-core/internal/config"
	_ "modernc.org/sqlite"
)

// Detection is one persisted recognition acceptance.
type Detection struct {
	ID         int64
	RunID      string
	Text       string
	Backend    string
	Confidence float64
	CreatedAt  time.Time
}

// Journal is a SQLite-backed log of accepted detections. In ephemeral mode
// every operation is a no-op so the pipeline never has to care whether
// persistence is on.
type Journal struct {
	db    *sql.DB
	cfg   config.JournalConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the journal according to config.
func Open(ctx context.Context, cfg config.JournalConfig, log *slog.Logger) (*Journal, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Journal{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	j := &Journal{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := j.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if _, err := db.ExecContext(ctx, "VACUUM"); err != nil {
			log.Warn("journal vacuum failed", slog.String("error", err.Error()))
		}
	}
	if err := j.Prune(ctx); err != nil {
		log.Warn("journal prune on start failed", slog.String("error", err.Error()))
	}

	return j, nil
}

func (j *Journal) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS detections (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    text TEXT NOT NULL,
    backend TEXT,
    confidence REAL,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_detections_created ON detections(created_at);
`
	_, err := j.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Append writes one detection. Best effort by contract: callers log the
// returned error and keep going.
func (j *Journal) Append(ctx context.Context, d Detection) error {
	if j.db == nil {
		return nil
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = j.clock().UTC()
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO detections(run_id, text, backend, confidence, created_at)
		 VALUES(?, ?, ?, ?, ?)`,
		d.RunID, d.Text, d.Backend, d.Confidence, d.CreatedAt)
	return err
}

// ListRecent returns up to limit detections, newest first.
func (j *Journal) ListRecent(ctx context.Context, limit int) ([]Detection, error) {
	if j.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, run_id, text, backend, confidence, created_at
		 FROM detections ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Detection
	for rows.Next() {
		var d Detection
		var created string
		if err := rows.Scan(&d.ID, &d.RunID, &d.Text, &d.Backend, &d.Confidence, &created); err != nil {
			return nil, err
		}
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			d.CreatedAt = ts
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Prune applies retention: drop detections older than retention_days, then
// cap the table at max_detections keeping the newest.
func (j *Journal) Prune(ctx context.Context) error {
	if j.db == nil {
		return nil
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if j.cfg.RetentionDays > 0 {
		cutoff := j.clock().Add(-time.Duration(j.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM detections WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if j.cfg.MaxDetections > 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM detections WHERE id IN (
			SELECT id FROM detections ORDER BY created_at DESC, id DESC LIMIT -1 OFFSET ?
		)`, j.cfg.MaxDetections)
		if err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
