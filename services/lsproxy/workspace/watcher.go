// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/karrick/godirwalk"
)

// FileOp is the kind of filesystem change.
type FileOp int

const (
	FileOpCreate FileOp = iota
	FileOpWrite
	FileOpRemove
	FileOpRename
)

// String returns the operation name.
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "create"
	case FileOpWrite:
		return "write"
	case FileOpRemove:
		return "remove"
	case FileOpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// FileChange is one observed change, path relative to the root.
type FileChange struct {
	Path string
	Op   FileOp
	Time time.Time
}

// WatchOptions configures Watch.
type WatchOptions struct {
	// Debounce is how long to wait for more changes before rescanning.
	// Default: 200ms
	Debounce time.Duration

	// BufferSize bounds queued changes. Default: 1000
	BufferSize int

	// OnRefresh, if set, receives the detected languages after each
	// rescan triggered by the watcher.
	OnRefresh func(languages []string)
}

// Watcher keeps a Workspace's file listing current.
//
// # Thread Safety
//
// Stop is safe to call concurrently and more than once.
type Watcher struct {
	ws        *Workspace
	fsw       *fsnotify.Watcher
	debounce  time.Duration
	onRefresh func([]string)
	logger    *slog.Logger

	changes  chan FileChange
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Watch scans the workspace, then watches every non-excluded directory
// and rescans after creates, removes and renames settle.
//
// Description:
//
//	While the watcher runs DetectedLanguages serves the cached scan.
//	Writes to existing files do not change the listing and are ignored;
//	file content is always read fresh at request time.
//
// Outputs:
//
//	*Watcher - Running watcher. Call Stop to release it.
//	error - Non-nil if the initial scan or watch registration failed.
func (w *Workspace) Watch(ctx context.Context, opts WatchOptions) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = 200 * time.Millisecond
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}

	if err := w.Refresh(ctx); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	wt := &Watcher{
		ws:        w,
		fsw:       fsw,
		debounce:  opts.Debounce,
		onRefresh: opts.OnRefresh,
		logger:    w.logger.With(slog.String("subsystem", "watcher")),
		changes:   make(chan FileChange, opts.BufferSize),
		done:      make(chan struct{}),
	}
	if err := wt.addRecursive(w.root); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	w.mu.Lock()
	w.watching = true
	w.mu.Unlock()

	wt.wg.Add(2)
	go wt.processEvents(ctx)
	go wt.debounceLoop(ctx)

	// The cache is only trusted while the loops run.
	go func() {
		select {
		case <-ctx.Done():
			wt.Stop()
		case <-wt.done:
		}
	}()

	wt.logger.Info("watching workspace", slog.String("root", w.root))
	return wt, nil
}

// Stop ends watching. Later DetectedLanguages calls rescan on demand.
// Canceling the context passed to Watch has the same effect.
func (wt *Watcher) Stop() {
	wt.stopOnce.Do(func() {
		close(wt.done)
		_ = wt.fsw.Close()
		wt.wg.Wait()

		wt.ws.mu.Lock()
		wt.ws.watching = false
		wt.ws.mu.Unlock()
	})
}

func (wt *Watcher) addRecursive(dir string) error {
	return godirwalk.Walk(dir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if !de.IsDir() {
				return nil
			}
			if rel, ok := wt.relative(osPathname); ok && rel != "." && wt.ws.exclude.Match(rel, true) {
				return filepath.SkipDir
			}
			if err := wt.fsw.Add(osPathname); err != nil {
				wt.logger.Debug("cannot watch directory",
					slog.String("path", osPathname),
					slog.String("error", err.Error()),
				)
			}
			return nil
		},
		ErrorCallback: func(string, error) godirwalk.ErrorAction {
			return godirwalk.SkipNode
		},
	})
}

func (wt *Watcher) relative(abs string) (string, bool) {
	rel, err := filepath.Rel(wt.ws.root, abs)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (wt *Watcher) processEvents(ctx context.Context) {
	defer wt.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-wt.done:
			return
		case event, ok := <-wt.fsw.Events:
			if !ok {
				return
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			rel, ok := wt.relative(event.Name)
			if !ok {
				continue
			}

			isDir := false
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					isDir = true
				}
			}
			if wt.ws.exclude.Match(rel, isDir) {
				continue
			}
			if isDir {
				if err := wt.addRecursive(event.Name); err != nil {
					wt.logger.Debug("cannot watch new directory", slog.String("path", rel))
				}
			}

			change := FileChange{Path: rel, Op: convertOp(event.Op), Time: time.Now()}
			select {
			case wt.changes <- change:
			default:
				wt.logger.Debug("change buffer full, dropping event", slog.String("path", rel))
			}

		case err, ok := <-wt.fsw.Errors:
			if !ok {
				return
			}
			wt.logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

func convertOp(op fsnotify.Op) FileOp {
	switch {
	case op.Has(fsnotify.Create):
		return FileOpCreate
	case op.Has(fsnotify.Remove):
		return FileOpRemove
	case op.Has(fsnotify.Rename):
		return FileOpRename
	default:
		return FileOpWrite
	}
}

func (wt *Watcher) debounceLoop(ctx context.Context) {
	defer wt.wg.Done()

	var batch []FileChange
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if len(batch) > 0 {
			wt.apply(ctx, dedupe(batch))
			batch = batch[:0]
		}
		if timer != nil {
			timer.Stop()
			timer, timerC = nil, nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-wt.done:
			return
		case change := <-wt.changes:
			batch = append(batch, change)
			if timer == nil {
				timer = time.NewTimer(wt.debounce)
				timerC = timer.C
			} else {
				timer.Reset(wt.debounce)
			}
		case <-timerC:
			flush()
		}
	}
}

// apply rescans when the batch can change the listing.
func (wt *Watcher) apply(ctx context.Context, changes []FileChange) {
	structural := false
	for _, c := range changes {
		if c.Op != FileOpWrite {
			structural = true
			break
		}
	}
	if !structural {
		return
	}

	if err := wt.ws.Refresh(ctx); err != nil {
		wt.logger.Warn("workspace rescan failed", slog.String("error", err.Error()))
		return
	}
	wt.logger.Debug("workspace rescanned", slog.Int("changes", len(changes)))

	if wt.onRefresh != nil {
		wt.ws.mu.RLock()
		langs := append([]string(nil), wt.ws.languages...)
		wt.ws.mu.RUnlock()
		wt.onRefresh(langs)
	}
}

// dedupe keeps the latest change per path, in first-seen order.
func dedupe(changes []FileChange) []FileChange {
	seen := make(map[string]int)
	result := make([]FileChange, 0, len(changes))
	for _, c := range changes {
		if i, ok := seen[c.Path]; ok {
			// A create followed by a write is still a create.
			if result[i].Op == FileOpCreate && c.Op == FileOpWrite {
				continue
			}
			result[i] = c
			continue
		}
		seen[c.Path] = len(result)
		result = append(result, c)
	}
	return result
}
