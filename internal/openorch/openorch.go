// Package openorch implements the Open Orchestrator: given
// an open request, it decides whether the file should be loaded from
// cache, from supplied bytes, or from a backend, and wires up the
// post-open bookkeeping (registry, open-set, watcher) shared by every
// path.
package openorch

import (
	"context"
	"fmt"
	"time"

	"github.com/grinsted/keeweb/internal/backend"
	"github.com/grinsted/keeweb/internal/common"
	"github.com/grinsted/keeweb/internal/fileinfo"
	"github.com/grinsted/keeweb/internal/vaultfile"
)

// Request is an open request.
type Request struct {
	ID          string
	Storage     string
	Name        string
	Path        string
	Opts        map[string]string
	Rev         string
	Password    string
	KeyFileData []byte
	FileData    []byte
}

// NewFile constructs a fresh, unopened File for a Request; production
// callers pass vaultfile.New, tests pass a factory returning a
// vaultfile.Fake.
type NewFile func() vaultfile.File

// Orchestrator resolves open requests.
type Orchestrator struct {
	Registry fileinfo.Registry
	Backends *backend.Registry
	Cache    *backend.Cache
	NewFile  NewFile

	// FileChangeSync is the debounce window applied to local-storage
	// watch callbacks before triggering a sync.
	FileChangeSync time.Duration

	// OnWatchTrigger is invoked (debounced) when the local backend
	// reports a change to an open file's path. It is the caller's
	// responsibility to run sync(file) from here; the orchestrator only
	// owns debounce-timer bookkeeping.
	OnWatchTrigger func(fileID string)

	openSet map[string]vaultfile.File
	watches map[string]*debouncer
}

// New builds an Orchestrator. Backends, Cache, Registry, and NewFile must
// be set by the caller (or via struct literal) before Open is called.
func New(reg fileinfo.Registry, backends *backend.Registry, cache *backend.Cache, newFile NewFile) *Orchestrator {
	return &Orchestrator{
		Registry: reg,
		Backends: backends,
		Cache:    cache,
		NewFile:  newFile,
		openSet:  make(map[string]vaultfile.File),
		watches:  make(map[string]*debouncer),
	}
}

// OpenResult is returned by Open on success.
type OpenResult struct {
	File vaultfile.File
	Info fileinfo.Info

	// NeedsAsyncSync is true when the open succeeded off a potentially
	// stale cache copy and the caller must schedule sync(file) on the
	// next scheduling turn.
	NeedsAsyncSync bool
}

// Open resolves req by walking its resolution clauses in order.
func (o *Orchestrator) Open(ctx context.Context, req Request) (OpenResult, error) {
	info, hasInfo, err := o.resolveFileInfo(ctx, req)
	if err != nil {
		return OpenResult{}, err
	}
	if hasInfo && req.Opts == nil && info.Opts != nil {
		req.Opts = info.Opts
	}

	file := o.NewFile()
	var needsAsyncSync bool

	switch {
	case hasInfo && info.Modified:
		// Clause 2: modified cache path.
		if err := o.openFromCache(ctx, file, info.ID, req); err != nil {
			return OpenResult{}, err
		}
		needsAsyncSync = true

	case req.FileData != nil:
		// Clause 3: supplied bytes.
		if err := file.Open(ctx, req.Password, req.FileData, req.KeyFileData); err != nil {
			return OpenResult{}, err
		}
		cacheID := cacheIDFor(info, hasInfo, file)
		if _, err := o.Cache.Save(ctx, cacheID, nil, req.FileData, ""); err != nil {
			return OpenResult{}, fmt.Errorf("openorch: cache save: %w", err)
		}
		file.SetCacheID(cacheID)

	case req.Storage == "":
		// Clause 4: local-only, load from cache.
		if !hasInfo {
			return OpenResult{}, common.ErrNotFound
		}
		if err := o.openFromCache(ctx, file, info.ID, req); err != nil {
			return OpenResult{}, err
		}

	case hasInfo && info.Rev != "" && req.Rev == info.Rev && req.Storage != "file":
		// Clause 5: fresh cache, skip stat/download.
		if err := o.openFromCache(ctx, file, info.ID, req); err != nil {
			return OpenResult{}, err
		}

	case !hasInfo || req.Storage == "file":
		// Clause 6: first-time open, or local storage where no cached
		// rev can be trusted.
		file, needsAsyncSync, err = o.openFirstTimeOrLocal(ctx, req, info, hasInfo)
		if err != nil {
			return OpenResult{}, err
		}

	default:
		// Clause 7: cached but possibly stale.
		if err := o.openFromCache(ctx, file, info.ID, req); err != nil {
			return OpenResult{}, err
		}
		needsAsyncSync = true
	}

	if err := o.checkDuplicate(file.ID()); err != nil {
		return OpenResult{}, err
	}

	newInfo, err := o.finishOpen(ctx, file, req, info, hasInfo)
	if err != nil {
		return OpenResult{}, err
	}

	o.openSet[file.ID()] = file
	if req.Storage == "file" {
		o.watchLocal(file, newInfo.Path)
	}

	return OpenResult{File: file, Info: newInfo, NeedsAsyncSync: needsAsyncSync}, nil
}

func (o *Orchestrator) resolveFileInfo(ctx context.Context, req Request) (fileinfo.Info, bool, error) {
	if req.ID != "" {
		info, err := o.Registry.Get(ctx, req.ID)
		if err == common.ErrNotFound {
			return fileinfo.Info{}, false, nil
		}
		if err != nil {
			return fileinfo.Info{}, false, err
		}
		return info, true, nil
	}

	info, err := o.Registry.GetMatch(ctx, req.Storage, req.Name, req.Path)
	if err == common.ErrNotFound {
		return fileinfo.Info{}, false, nil
	}
	if err != nil {
		return fileinfo.Info{}, false, err
	}
	return info, true, nil
}

func (o *Orchestrator) openFromCache(ctx context.Context, file vaultfile.File, cacheID string, req Request) error {
	data, _, err := o.Cache.Load(ctx, cacheID, nil)
	if err != nil {
		return fmt.Errorf("openorch: cache load: %w", err)
	}
	if err := file.Open(ctx, req.Password, data, req.KeyFileData); err != nil {
		return err
	}
	file.SetCacheID(cacheID)
	return nil
}

// openFirstTimeOrLocal handles the first-time-open case and the local-file
// (storage "file") case.
func (o *Orchestrator) openFirstTimeOrLocal(ctx context.Context, req Request, info fileinfo.Info, hasInfo bool) (vaultfile.File, bool, error) {
	be, err := o.Backends.Get(req.Storage)
	if err != nil {
		return nil, false, err
	}

	if hasInfo && info.Rev != "" {
		if statBackend, ok := be.(backend.StatCapable); ok {
			stat, statErr := statBackend.Stat(ctx, req.Path, req.Opts)
			if statErr != nil || stat.Rev == info.Rev {
				file := o.NewFile()
				if err := o.openFromCache(ctx, file, info.ID, req); err != nil {
					return nil, false, err
				}
				return file, false, nil
			}
		}
	}

	data, _, err := be.Load(ctx, req.Path, req.Opts)
	if err != nil {
		if hasInfo {
			file := o.NewFile()
			if cacheErr := o.openFromCache(ctx, file, info.ID, req); cacheErr != nil {
				return nil, false, err
			}
			return file, false, nil
		}
		return nil, false, err
	}

	file := o.NewFile()
	if err := file.Open(ctx, req.Password, data, req.KeyFileData); err != nil {
		return nil, false, err
	}
	cacheID := cacheIDFor(info, hasInfo, file)
	if _, err := o.Cache.Save(ctx, cacheID, nil, data, ""); err != nil {
		return nil, false, fmt.Errorf("openorch: cache save: %w", err)
	}
	file.SetCacheID(cacheID)
	return file, false, nil
}

func (o *Orchestrator) checkDuplicate(id string) error {
	if _, exists := o.openSet[id]; exists {
		return common.ErrDuplicateFileID
	}
	return nil
}

func (o *Orchestrator) finishOpen(ctx context.Context, file vaultfile.File, req Request, info fileinfo.Info, hasInfo bool) (fileinfo.Info, error) {
	cacheID := file.CacheID()
	if cacheID == "" {
		cacheID = cacheIDFor(info, hasInfo, file)
		file.SetCacheID(cacheID)
	}

	opts := req.Opts
	if be, err := o.Backends.Get(req.Storage); err == nil {
		if translator, ok := be.(backend.OptsTranslator); ok {
			opts = translator.StoreOptsToFileOpts(opts)
		}
	}
	file.SetPathOpts(req.Path, opts)

	newInfo := fileinfo.Info{
		ID:          cacheID,
		Name:        req.Name,
		Storage:     req.Storage,
		Path:        req.Path,
		Opts:        opts,
		Rev:         req.Rev,
		Modified:    file.Modified(),
		EditState:   file.GetLocalEditState(),
		OpenDate:    now(),
		KeyFileName: "",
		KeyFileHash: file.GetKeyFileHash(),
	}
	if hasInfo {
		newInfo.SyncDate = info.SyncDate
		newInfo.KeyFileName = info.KeyFileName
		if newInfo.Rev == "" {
			newInfo.Rev = info.Rev
		}
	}

	if err := o.Registry.Unshift(ctx, newInfo); err != nil {
		return fileinfo.Info{}, fmt.Errorf("openorch: unshift: %w", err)
	}
	if err := o.Registry.Save(ctx); err != nil {
		return fileinfo.Info{}, fmt.Errorf("openorch: save: %w", err)
	}
	return newInfo, nil
}

func (o *Orchestrator) watchLocal(file vaultfile.File, path string) {
	be, err := o.Backends.Get("file")
	if err != nil {
		return
	}
	watchable, ok := be.(backend.WatchCapable)
	if !ok {
		return
	}

	id := file.ID()
	debounced := newDebouncer(o.FileChangeSync, func() {
		if o.OnWatchTrigger != nil {
			o.OnWatchTrigger(id)
		}
	})
	o.watches[id] = debounced

	_ = watchable.Watch(path, debounced.trigger)
}

// Close removes id from the open set and releases its local watcher, if
// any.
func (o *Orchestrator) Close(id string) {
	delete(o.openSet, id)
	if d, ok := o.watches[id]; ok {
		d.stop()
		delete(o.watches, id)
	}
}

// IsOpen reports whether id is currently registered in the open set.
func (o *Orchestrator) IsOpen(id string) bool {
	_, ok := o.openSet[id]
	return ok
}

func cacheIDFor(info fileinfo.Info, hasInfo bool, file vaultfile.File) string {
	if hasInfo {
		return info.ID
	}
	return file.ID()
}

// now is a var so deterministic tests can override it.
var now = time.Now
