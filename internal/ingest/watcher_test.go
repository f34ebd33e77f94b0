package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snarg/podcheck/internal/pipeline"
	"github.com/snarg/podcheck/internal/report"
)

type fakeProcessor struct {
	mu   sync.Mutex
	got  []pipeline.Upload
	fail bool
}

func (f *fakeProcessor) Process(ctx context.Context, up pipeline.Upload) (*pipeline.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, up)
	if f.fail {
		return nil, errors.New("transcription failed")
	}
	return &pipeline.Result{ReportID: "r1", Report: &report.Report{RiskScore: 10}}, nil
}

func (f *fakeProcessor) uploads() []pipeline.Upload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]pipeline.Upload(nil), f.got...)
}

func startWatcher(t *testing.T, dir string, p Processor) *Watcher {
	t.Helper()
	w := NewWatcher(WatcherOptions{
		Dir:       dir,
		Email:     "drop@example.com",
		Processor: p,
		Debounce:  20 * time.Millisecond,
		Log:       zerolog.Nop(),
	})
	require.NoError(t, w.Start(context.Background()))
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_ProcessesNewAudio(t *testing.T) {
	dir := t.TempDir()
	p := &fakeProcessor{}
	w := startWatcher(t, dir, p)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ep1.mp3"), []byte("ID3 audio"), 0o644))

	require.Eventually(t, func() bool { return len(p.uploads()) == 1 }, 2*time.Second, 10*time.Millisecond)

	up := p.uploads()[0]
	assert.Equal(t, "ep1.mp3", up.Filename)
	assert.Equal(t, "drop@example.com", up.Email)
	assert.Equal(t, "watch", up.Source)
	assert.Equal(t, []byte("ID3 audio"), up.Data)

	require.Eventually(t, func() bool { return w.Status().FilesProcessed == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, "watching", w.Status().Status)
	assert.Equal(t, dir, w.Status().WatchDir)
}

func TestWatcher_NewSubdirectory(t *testing.T) {
	dir := t.TempDir()
	p := &fakeProcessor{}
	startWatcher(t, dir, p)

	sub := filepath.Join(dir, "2025-03-09")
	require.NoError(t, os.Mkdir(sub, 0o755))
	// give the loop a moment to add the new directory
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "ep2.mp4"), []byte("data"), 0o644))

	require.Eventually(t, func() bool { return len(p.uploads()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "ep2.mp4", p.uploads()[0].Filename)
}

func TestWatcher_CountsFailures(t *testing.T) {
	dir := t.TempDir()
	p := &fakeProcessor{fail: true}
	w := startWatcher(t, dir, p)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.mp3"), []byte("x"), 0o644))
	require.Eventually(t, func() bool { return w.Status().FilesFailed == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(0), w.Status().FilesProcessed)
}

func TestWatcher_StartErrors(t *testing.T) {
	t.Run("missing_email", func(t *testing.T) {
		w := NewWatcher(WatcherOptions{Dir: t.TempDir(), Processor: &fakeProcessor{}, Log: zerolog.Nop()})
		require.Error(t, w.Start(context.Background()))
	})

	t.Run("missing_directory", func(t *testing.T) {
		w := NewWatcher(WatcherOptions{
			Dir:       filepath.Join(t.TempDir(), "nope"),
			Email:     "a@example.com",
			Processor: &fakeProcessor{},
			Log:       zerolog.Nop(),
		})
		require.Error(t, w.Start(context.Background()))
	})
}

func TestWatcher_StopWithoutStart(t *testing.T) {
	w := NewWatcher(WatcherOptions{Log: zerolog.Nop()})
	w.Stop()
	assert.Equal(t, "starting", w.Status().Status)
}
