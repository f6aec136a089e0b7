// Package watchdir watches a local drop folder and uploads contract
// documents written into it. It is the CLI counterpart of the upload form:
// drop a .json or .txt file in the directory and it becomes a contract.
package watchdir

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/contractdesk/contractdesk/internal/contract"
)

const defaultSettleDelay = 250 * time.Millisecond

// Uploader is the gateway slice the watcher drives.
type Uploader interface {
	Upload(ctx context.Context, filename string, data []byte) (contract.Contract, error)
}

// Store receives the created record. The watcher is its own caller, so it
// performs the caller-side insert that Upload deliberately leaves out.
type Store interface {
	UpsertOne(contract.Contract)
}

type Options struct {
	// SettleDelay is how long a file must stay quiet after its last write
	// event before it is read and uploaded.
	SettleDelay time.Duration
	Logger      *slog.Logger
}

type Watcher struct {
	dir         string
	uploader    Uploader
	store       Store
	settleDelay time.Duration
	logger      *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

func New(dir string, uploader Uploader, store Store, opts Options) (*Watcher, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("watch directory is required")
	}
	if uploader == nil {
		return nil, fmt.Errorf("uploader is required")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}
	settleDelay := opts.SettleDelay
	if settleDelay <= 0 {
		settleDelay = defaultSettleDelay
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:         dir,
		uploader:    uploader,
		store:       store,
		settleDelay: settleDelay,
		logger:      logger,
		pending:     map[string]*time.Timer{},
	}, nil
}

// Run watches the directory until ctx is done. Create and write events on
// eligible files are debounced per path; everything else is ignored.
func (w *Watcher) Run(ctx context.Context) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsWatcher.Close()
	if err := fsWatcher.Add(w.dir); err != nil {
		return err
	}
	w.logger.Info("watching for contract documents", slog.String("dir", w.dir))

	for {
		select {
		case <-ctx.Done():
			w.cancelPending()
			return ctx.Err()
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) {
				continue
			}
			if contract.CheckUploadName(event.Name) != nil {
				continue
			}
			w.schedule(ctx, event.Name)
		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", slog.Any("err", err))
		}
	}
}

// schedule arms (or re-arms) the settle timer for path.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.settleDelay)
		return
	}
	w.pending[path] = time.AfterFunc(w.settleDelay, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		w.uploadFile(ctx, path)
	})
}

func (w *Watcher) uploadFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("read upload candidate failed", slog.String("file", path), slog.Any("err", err))
		return
	}
	created, err := w.uploader.Upload(ctx, filepath.Base(path), data)
	if err != nil {
		// The gateway already notified; the file stays in place for a retry.
		w.logger.Warn("upload failed", slog.String("file", path), slog.Any("err", err))
		return
	}
	if w.store != nil {
		w.store.UpsertOne(created)
	}
	w.logger.Info("contract uploaded",
		slog.String("file", path),
		slog.Int64("id", created.ID),
		slog.String("title", created.Title))
}

func (w *Watcher) cancelPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
}
