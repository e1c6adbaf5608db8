// Package syncengine implements the Sync State Machine:
// the core reconciliation loop that compares a File against its backend
// and cache using rev comparison, remote-load-and-merge, and
// conflict-triggered retry.
package syncengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/grinsted/keeweb/internal/backend"
	"github.com/grinsted/keeweb/internal/common"
	"github.com/grinsted/keeweb/internal/events"
	"github.com/grinsted/keeweb/internal/fileinfo"
	"github.com/grinsted/keeweb/internal/vaultfile"
)

// Options overrides the effective storage/path/opts for this sync cycle —
// e.g. a "save as" to a new backend — and may supply a remote key for
// merge.
type Options struct {
	Storage   string
	Path      string
	Opts      map[string]string
	RemoteKey []byte
}

// Engine drives sync cycles for Files against a backend.Registry, an
// always-present cache, and the fileinfo.Registry that records terminal
// state.
type Engine struct {
	Registry fileinfo.Registry
	Backends *backend.Registry
	Cache    *backend.Cache
	Events   *events.Port

	// MaxLoadMergeAttempts bounds the load+merge retry loop. Zero uses the default of 3.
	MaxLoadMergeAttempts int
}

// New builds an Engine. Callers set Registry/Backends/Cache/Events
// directly, or use the struct literal form.
func New(reg fileinfo.Registry, backends *backend.Registry, cache *backend.Cache, port *events.Port) *Engine {
	return &Engine{Registry: reg, Backends: backends, Cache: cache, Events: port}
}

func (e *Engine) maxAttempts() int {
	if e.MaxLoadMergeAttempts > 0 {
		return e.MaxLoadMergeAttempts
	}
	return 3
}

// demoFile is implemented by Files that can report demo status.
type demoFile interface {
	IsDemo() bool
}

// Sync runs one reconciliation cycle for file, honoring opts overrides.
func (e *Engine) Sync(ctx context.Context, file vaultfile.File, opts Options) error {
	if d, ok := file.(demoFile); ok && d.IsDemo() {
		return nil
	}
	if file.Syncing() {
		return common.ErrSyncInProgress
	}

	info, hasInfo := e.lookupInfo(ctx, file)
	if !hasInfo {
		info = fileinfo.Info{ID: cacheIDOf(file), Path: file.Path(), Opts: file.Opts()}
	}

	storage := firstNonEmpty(opts.Storage, info.Storage)
	path := firstNonEmpty(opts.Path, info.Path)
	fopts := opts.Opts
	if fopts == nil {
		fopts = info.Opts
	}
	if fopts == nil {
		fopts = file.Opts()
	}

	switchingBackend := opts.Storage != "" && opts.Storage != info.Storage
	if (switchingBackend || path == "") && storage != "" {
		if be, err := e.Backends.Get(storage); err == nil {
			if namer, ok := be.(backend.PathNamer); ok {
				path = namer.GetPathForName(info.Name)
			}
		}
	}

	info.ID = cacheIDOf(file)
	file.SetSyncProgress()

	s := &session{
		engine:  e,
		ctx:     ctx,
		file:    file,
		info:    info,
		storage: storage,
		path:    path,
		opts:    fopts,

		remoteKey: opts.RemoteKey,
	}

	if storage == "" {
		return s.localOnly()
	}
	return s.stat()
}

func (e *Engine) lookupInfo(ctx context.Context, file vaultfile.File) (fileinfo.Info, bool) {
	id := cacheIDOf(file)
	if id == "" {
		return fileinfo.Info{}, false
	}
	info, err := e.Registry.Get(ctx, id)
	if err != nil {
		return fileinfo.Info{}, false
	}
	return info, true
}

// session carries the per-sync-cycle mutable state through the branches
// of the sync state diagram.
type session struct {
	engine  *Engine
	ctx     context.Context
	file    vaultfile.File
	info    fileinfo.Info
	storage string
	path    string
	opts    map[string]string

	remoteKey []byte
	attempts  int
}

// localOnly implements the "storage absent" branch.
func (s *session) localOnly() error {
	if !s.file.Modified() && s.info.ID == s.file.CacheID() {
		return s.complete(nil, false)
	}

	data, err := s.file.GetData(s.ctx)
	if err != nil {
		return s.complete(err, false)
	}
	_, saveErr := s.engine.Cache.Save(s.ctx, s.info.ID, nil, data, "")
	return s.complete(saveErr, saveErr == nil)
}

// stat implements the "[Stat]" node.
func (s *session) stat() error {
	be, err := s.engine.Backends.Get(s.storage)
	if err != nil {
		return s.complete(err, false)
	}

	statBackend, ok := be.(backend.StatCapable)
	if !ok {
		// No stat capability: treat as always-stale, go straight to
		// load+merge the way the engine would after a rev mismatch.
		return s.loadAndMerge()
	}

	stat, err := statBackend.Stat(s.ctx, s.path, s.opts)
	switch {
	case err != nil && backend.NotFound(err):
		return s.saveToCacheAndStorage()
	case err != nil && s.file.Dirty():
		data, getErr := s.file.GetData(s.ctx)
		if getErr != nil {
			return s.complete(getErr, false)
		}
		_, cacheErr := s.engine.Cache.Save(s.ctx, s.info.ID, nil, data, "")
		return s.complete(err, cacheErr == nil)
	case err != nil:
		return s.complete(err, false)
	case stat.Rev == s.info.Rev && s.file.Modified():
		return s.saveToCacheAndStorage()
	case stat.Rev == s.info.Rev:
		return s.complete(nil, false)
	default:
		return s.loadAndMerge()
	}
}

// loadAndMerge implements the "LoadAndMerge" node, bounded by
// MaxLoadMergeAttempts with a non-resetting attempt counter.
func (s *session) loadAndMerge() error {
	s.attempts++
	if s.attempts > s.engine.maxAttempts() {
		return s.complete(common.ErrTooManyLoadAttempts, false)
	}

	be, err := s.engine.Backends.Get(s.storage)
	if err != nil {
		return s.complete(err, false)
	}

	data, stat, err := be.Load(s.ctx, s.path, s.opts)
	if err != nil {
		return s.complete(err, false)
	}

	if err := s.file.MergeOrUpdate(s.ctx, data, s.remoteKey); err != nil {
		if errors.Is(err, vaultfile.ErrInvalidKey) {
			s.engine.Events.EmitRemoteKeyChanged(events.RemoteKeyChanged{FileID: s.file.ID()})
		}
		return s.complete(err, false)
	}

	s.info.Rev = stat.Rev
	s.file.SetRev(stat.Rev)
	s.engine.Events.EmitRefresh()

	switch {
	case s.file.Modified():
		return s.saveToCacheAndStorage()
	case s.file.Dirty():
		data, err := s.file.GetData(s.ctx)
		if err != nil {
			return s.complete(err, false)
		}
		_, saveErr := s.engine.Cache.Save(s.ctx, s.info.ID, nil, data, "")
		return s.complete(saveErr, saveErr == nil)
	default:
		return s.complete(nil, false)
	}
}

// saveToCacheAndStorage implements the "SaveToCacheAndStorage" node.
func (s *session) saveToCacheAndStorage() error {
	data, err := s.file.GetData(s.ctx)
	if err != nil {
		return s.complete(err, false)
	}

	savedToCache := false
	if s.file.Dirty() {
		if _, err := s.engine.Cache.Save(s.ctx, s.info.ID, nil, data, ""); err != nil {
			return s.complete(err, false)
		}
		savedToCache = true
	}

	return s.saveToStorage(data, savedToCache)
}

// saveToStorage implements the "SaveToStorage" node, including the
// revConflict → LoadAndMerge retry loop.
func (s *session) saveToStorage(data []byte, savedToCache bool) error {
	be, err := s.engine.Backends.Get(s.storage)
	if err != nil {
		return s.complete(err, savedToCache)
	}

	stat, err := be.Save(s.ctx, s.path, s.opts, data, s.info.Rev)
	switch {
	case err != nil && backend.RevConflict(err):
		return s.loadAndMerge()
	case err != nil:
		return s.complete(err, savedToCache)
	default:
		s.info.Rev = stat.Rev
		s.file.SetRev(stat.Rev)
		if stat.Path != "" {
			s.path = stat.Path
			s.info.Path = stat.Path
			s.file.SetPathOpts(stat.Path, s.opts)
		}
		return s.complete(nil, savedToCache)
	}
}

// complete is the single terminator every branch funnels through.
func (s *session) complete(err error, savedToCache bool) error {
	errStr := ""
	if err != nil {
		errStr = err.Error()
	}

	s.file.SetSyncComplete(s.path, s.storage, errStr, savedToCache || err == nil)
	s.file.SetCacheID(s.info.ID)

	s.info.Storage = s.storage
	s.info.Path = s.path
	s.info.Opts = s.opts
	s.info.Modified = s.file.Modified()
	s.info.EditState = s.file.GetLocalEditState()
	s.info.SyncDate = now()
	s.info.KeyFileHash = s.file.GetKeyFileHash()

	if unshiftErr := s.engine.Registry.Unshift(s.ctx, s.info); unshiftErr != nil {
		return fmt.Errorf("syncengine: persist fileinfo: %w", unshiftErr)
	}
	if saveErr := s.engine.Registry.Save(s.ctx); saveErr != nil {
		return fmt.Errorf("syncengine: save registry: %w", saveErr)
	}

	return err
}

func cacheIDOf(file vaultfile.File) string {
	if id := file.CacheID(); id != "" {
		return id
	}
	return file.ID()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// now is a var so tests can observe deterministic sync timestamps.
var now = time.Now
