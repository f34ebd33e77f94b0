// Package ingest picks up episodes dropped into a watched directory and runs
// them through the upload pipeline.
package ingest

import (
	"context"
	"errors"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/snarg/podcheck/internal/audio"
	"github.com/snarg/podcheck/internal/pipeline"
)

// DefaultDebounce is how long a file must be quiet before it is processed.
const DefaultDebounce = 500 * time.Millisecond

// Processor runs one upload. *pipeline.Service satisfies it.
type Processor interface {
	Process(ctx context.Context, up pipeline.Upload) (*pipeline.Result, error)
}

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	Dir       string
	Email     string // recipient for every report built from this folder
	Processor Processor
	Debounce  time.Duration
	Log       zerolog.Logger
}

// Status is a snapshot of the watcher for the health endpoint.
type Status struct {
	Status         string `json:"status"`
	WatchDir       string `json:"watch_dir"`
	FilesProcessed int64  `json:"files_processed"`
	FilesFailed    int64  `json:"files_failed"`
}

// Watcher monitors a directory tree for new .mp3/.mp4 files.
type Watcher struct {
	dir       string
	email     string
	processor Processor
	debounce  time.Duration
	log       zerolog.Logger

	watcher  *fsnotify.Watcher
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	inFlight sync.WaitGroup

	// Debounce: coalesce rapid Create+Write events on the same file.
	debounceMu     sync.Mutex
	debounceTimers map[string]*time.Timer
	// size and mtime of files already handled, so a touch without new
	// content does not produce a second report
	seen map[string]fileStamp

	filesProcessed atomic.Int64
	filesFailed    atomic.Int64
	status         atomic.Value // string: "starting", "watching", "stopped"
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

// NewWatcher creates a Watcher. Call Start to begin watching.
func NewWatcher(opts WatcherOptions) *Watcher {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	w := &Watcher{
		dir:            opts.Dir,
		email:          opts.Email,
		processor:      opts.Processor,
		debounce:       opts.Debounce,
		log:            opts.Log.With().Str("component", "watcher").Logger(),
		debounceTimers: make(map[string]*time.Timer),
		seen:           make(map[string]fileStamp),
		done:           make(chan struct{}),
	}
	w.status.Store("starting")
	return w
}

// Start adds the directory tree to fsnotify and begins handling events.
// Files already present are left alone.
func (w *Watcher) Start(ctx context.Context) error {
	if w.email == "" {
		return errors.New("watch email is required")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = fw

	dirCount := 0
	err = filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.log.Warn().Err(err).Str("path", path).Msg("error walking directory")
			return nil
		}
		if d.IsDir() {
			if addErr := fw.Add(path); addErr != nil {
				w.log.Warn().Err(addErr).Str("path", path).Msg("failed to watch directory")
			} else {
				dirCount++
			}
		}
		return nil
	})
	if err == nil && dirCount == 0 {
		err = errors.New("no watchable directory at " + w.dir)
	}
	if err != nil {
		fw.Close()
		return err
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.status.Store("watching")
	w.log.Info().
		Int("directories", dirCount).
		Str("watch_dir", w.dir).
		Msg("file watcher initialized")

	go w.watchLoop()
	return nil
}

// Stop closes the fsnotify watcher and waits for files being processed.
func (w *Watcher) Stop() {
	if w.watcher == nil {
		return
	}
	w.status.Store("stopped")
	w.cancel()
	w.watcher.Close()
	<-w.done

	w.debounceMu.Lock()
	for path, t := range w.debounceTimers {
		if t.Stop() {
			delete(w.debounceTimers, path)
			w.inFlight.Done()
		}
	}
	w.debounceMu.Unlock()
	w.inFlight.Wait()

	w.log.Info().
		Int64("files_processed", w.filesProcessed.Load()).
		Int64("files_failed", w.filesFailed.Load()).
		Msg("file watcher stopped")
}

// Status returns the current watcher state.
func (w *Watcher) Status() Status {
	s, _ := w.status.Load().(string)
	return Status{
		Status:         s,
		WatchDir:       w.dir,
		FilesProcessed: w.filesProcessed.Load(),
		FilesFailed:    w.filesFailed.Load(),
	}
}

func (w *Watcher) watchLoop() {
	defer close(w.done)
	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}

			// New subdirectory: watch it too.
			if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
				if err := w.watcher.Add(event.Name); err != nil {
					w.log.Warn().Err(err).Str("path", event.Name).Msg("failed to watch new directory")
				} else {
					w.log.Debug().Str("path", event.Name).Msg("watching new directory")
				}
				continue
			}

			if !audio.IsCandidate(event.Name) {
				continue
			}
			w.scheduleProcess(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("fsnotify error")
		}
	}
}

// scheduleProcess waits until the file has been quiet for the debounce
// interval, so a file still being copied in is not read half-written.
func (w *Watcher) scheduleProcess(path string) {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	// A timer that already fired is left to finish and replaced.
	if t, ok := w.debounceTimers[path]; ok && t.Stop() {
		t.Reset(w.debounce)
		return
	}

	w.inFlight.Add(1)
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		defer w.inFlight.Done()
		w.debounceMu.Lock()
		if w.debounceTimers[path] == t {
			delete(w.debounceTimers, path)
		}
		w.debounceMu.Unlock()

		w.processFile(path)
	})
	w.debounceTimers[path] = t
}

func (w *Watcher) processFile(path string) {
	if w.ctx.Err() != nil {
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		w.log.Debug().Err(err).Str("path", path).Msg("file vanished before processing")
		return
	}
	stamp := fileStamp{size: info.Size(), modTime: info.ModTime()}
	w.debounceMu.Lock()
	prev, dup := w.seen[path]
	w.debounceMu.Unlock()
	if dup && prev == stamp {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		w.log.Warn().Err(err).Str("path", path).Msg("failed to read audio file")
		w.filesFailed.Add(1)
		return
	}

	w.debounceMu.Lock()
	w.seen[path] = stamp
	w.debounceMu.Unlock()

	res, err := w.processor.Process(w.ctx, pipeline.Upload{
		Filename:    filepath.Base(path),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Data:        data,
		Email:       w.email,
		Source:      "watch",
	})
	if err != nil {
		w.log.Warn().Err(err).Str("path", path).Msg("failed to process watched file")
		w.filesFailed.Add(1)
		return
	}

	w.filesProcessed.Add(1)
	w.log.Info().
		Str("path", path).
		Str("report_id", res.ReportID).
		Int("risk_score", res.Report.RiskScore).
		Msg("watched file processed")
}
