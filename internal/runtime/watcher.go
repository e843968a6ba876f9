package runtime

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// configWatcher watches the config file and invokes onChange after writes
// settle. Editors replace files with rename+create, so the parent directory
// is watched and events are filtered by name.
type configWatcher struct {
	path     string
	fw       *fsnotify.Watcher
	log      *slog.Logger
	onChange func()
}

const settleDelay = 250 * time.Millisecond

func newConfigWatcher(path string, log *slog.Logger, onChange func()) (*configWatcher, error) {
	if path == "" {
		return nil, errors.New("no config path to watch")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, err
	}

	return &configWatcher{
		path:     abs,
		fw:       fw,
		log:      log.With(slog.String("component", "config-watcher")),
		onChange: onChange,
	}, nil
}

func (w *configWatcher) run(ctx context.Context) {
	defer w.fw.Close()

	var settle *time.Timer
	pending := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if settle != nil {
				settle.Stop()
			}
			settle = time.AfterFunc(settleDelay, func() {
				select {
				case pending <- struct{}{}:
				default:
				}
			})
		case <-pending:
			w.log.Info("config file changed, reloading")
			w.onChange()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("config watch error", slog.String("error", err.Error()))
		}
	}
}
