// File: feed/filefeed.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Telescope status published as a YAML file, reloaded when it changes.

package feed

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/momentics/guppi-status/api"
	"github.com/momentics/guppi-status/internal/logging"
)

// FileFeed serves the last successfully parsed status file.
type FileFeed struct {
	path string
	log  *zap.Logger

	mu      sync.RWMutex
	status  api.TelescopeStatus
	loadErr error
	reloads int

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

var _ api.TelescopeFeed = (*FileFeed)(nil)

// NewFileFeed loads path once. Call Watch to follow later rewrites.
func NewFileFeed(path string, log *zap.Logger) (*FileFeed, error) {
	f := &FileFeed{
		path: path,
		log:  logging.OrNop(log).Named(logging.CompFeed),
		done: make(chan struct{}),
	}
	if err := f.reload(); err != nil {
		return nil, unavailable("file", err)
	}
	return f, nil
}

func (f *FileFeed) reload() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		f.setErr(err)
		return err
	}
	var raw rawStatus
	if err := yaml.Unmarshal(data, &raw); err != nil {
		err = fmt.Errorf("parse %s: %w", f.path, err)
		f.setErr(err)
		return err
	}
	st, err := raw.normalize(time.Now())
	if err != nil {
		f.setErr(err)
		return err
	}
	f.mu.Lock()
	f.status, f.loadErr = st, nil
	f.reloads++
	f.mu.Unlock()
	return nil
}

func (f *FileFeed) setErr(err error) {
	f.mu.Lock()
	f.loadErr = err
	f.mu.Unlock()
}

// Read implements api.TelescopeFeed. A file that failed its latest parse
// is reported unavailable rather than serving the previous status.
func (f *FileFeed) Read(ctx context.Context) (api.TelescopeStatus, error) {
	if err := ctx.Err(); err != nil {
		return api.TelescopeStatus{}, unavailable("file", err)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.loadErr != nil {
		return api.TelescopeStatus{}, unavailable("file", f.loadErr)
	}
	return f.status, nil
}

// Reloads returns how many successful loads happened.
func (f *FileFeed) Reloads() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.reloads
}

// Watch follows writes to the status file until Close.
func (f *FileFeed) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	// Editors and publishers often replace the file, so watch the directory.
	if err := w.Add(filepath.Dir(f.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watching %s: %w", filepath.Dir(f.path), err)
	}
	f.watcher = w
	f.wg.Add(1)
	go f.loop()
	return nil
}

func (f *FileFeed) loop() {
	defer f.wg.Done()
	target := filepath.Clean(f.path)
	for {
		select {
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := f.reload(); err != nil {
				f.log.Warn("status file reload failed", zap.String("path", f.path), zap.Error(err))
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.log.Warn("status file watcher error", zap.Error(err))
		case <-f.done:
			return
		}
	}
}

// Close stops watching.
func (f *FileFeed) Close() error {
	select {
	case <-f.done:
		return nil
	default:
		close(f.done)
	}
	var err error
	if f.watcher != nil {
		err = f.watcher.Close()
	}
	f.wg.Wait()
	return err
}
