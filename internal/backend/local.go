package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/grinsted/keeweb/internal/common"
)

// Local is the filesystem storage backend. Its revision is
// the file's mtime and size combined, which is cheap to Stat without
// reading the file and changes whenever another process rewrites it.
type Local struct {
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	watches map[string][]func()
}

// NewLocal starts the backend's fsnotify watcher. Callers must call Close
// when done to release the underlying file descriptor.
func NewLocal() (*Local, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("local backend: %w", err)
	}
	l := &Local{
		watcher: w,
		watches: make(map[string][]func()),
	}
	go l.dispatch()
	return l, nil
}

func (l *Local) Close() error {
	return l.watcher.Close()
}

func (l *Local) dispatch() {
	for event := range l.watcher.Events {
		if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
			continue
		}
		l.mu.Lock()
		cbs := append([]func(){}, l.watches[event.Name]...)
		l.mu.Unlock()
		for _, cb := range cbs {
			cb()
		}
	}
}

// GetPathForName implements PathNamer: local files are named by their
// path directly, so this is the identity function.
func (l *Local) GetPathForName(name string) string { return name }

func (l *Local) Load(_ context.Context, path string, _ map[string]string) ([]byte, Stat, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Stat{}, &Error{Kind: KindNotFound, Op: "local load", Path: path, Err: common.ErrNotFound}
		}
		return nil, Stat{}, &Error{Kind: KindOther, Op: "local load", Path: path, Err: err}
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, Stat{}, &Error{Kind: KindOther, Op: "local load", Path: path, Err: err}
	}
	return data, Stat{Rev: localRev(st), Path: path}, nil
}

// Save writes data to path, refusing the write if expectedRev is non-empty
// and the file on disk has moved on since it was last observed.
func (l *Local) Save(_ context.Context, path string, _ map[string]string, data []byte, expectedRev string) (Stat, error) {
	if expectedRev != "" {
		if st, err := os.Stat(path); err == nil {
			if localRev(st) != expectedRev {
				return Stat{}, &Error{Kind: KindRevConflict, Op: "local save", Path: path, Err: common.ErrRevConflict}
			}
		} else if !os.IsNotExist(err) {
			return Stat{}, &Error{Kind: KindOther, Op: "local save", Path: path, Err: err}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o770); err != nil {
		return Stat{}, &Error{Kind: KindOther, Op: "local save", Path: path, Err: err}
	}
	if err := os.WriteFile(path, data, 0o660); err != nil {
		return Stat{}, &Error{Kind: KindOther, Op: "local save", Path: path, Err: err}
	}
	st, err := os.Stat(path)
	if err != nil {
		return Stat{}, &Error{Kind: KindOther, Op: "local save", Path: path, Err: err}
	}
	return Stat{Rev: localRev(st), Path: path}, nil
}

// Stat implements StatCapable without reading the file's bytes.
func (l *Local) Stat(_ context.Context, path string, _ map[string]string) (Stat, error) {
	st, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Stat{}, &Error{Kind: KindNotFound, Op: "local stat", Path: path, Err: common.ErrNotFound}
		}
		return Stat{}, &Error{Kind: KindOther, Op: "local stat", Path: path, Err: err}
	}
	return Stat{Rev: localRev(st), Path: path}, nil
}

// Watch implements WatchCapable by registering path with the shared
// fsnotify watcher and invoking callback on every write/create/rename
// event. Debouncing belongs to the caller.
func (l *Local) Watch(path string, callback func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.watches[path]; !ok {
		if err := l.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
	}
	l.watches[path] = append(l.watches[path], callback)
	return nil
}

// Unwatch removes all callbacks registered for path and stops watching it.
func (l *Local) Unwatch(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.watches, path)
	if err := l.watcher.Remove(path); err != nil {
		return fmt.Errorf("unwatch %s: %w", path, err)
	}
	return nil
}

func localRev(st os.FileInfo) string {
	return fmt.Sprintf("%d-%d", st.ModTime().UnixNano(), st.Size())
}
