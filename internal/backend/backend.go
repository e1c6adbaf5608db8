// Package backend implements the Storage Backend Interface:
// a uniform stat/load/save/watch contract over heterogeneous storage
// providers, plus the always-present content-addressed cache backend.
//
// Backends advertise optional capabilities (stat, watch, path naming, opts
// translation) by implementing narrow extra interfaces rather than a single
// monolithic one with no-op defaults — callers type-assert to discover what
// a given backend supports, per the "capability trait" design note.
package backend

import (
	"context"
	"errors"

	"github.com/grinsted/keeweb/internal/common"
)

// Stat describes a backend object's metadata as observed by Stat or
// returned alongside Load/Save. Rev is opaque and compared only for
// equality; an empty Rev means "unknown, always reload".
type Stat struct {
	Rev  string
	Path string
}

// Backend is the minimal contract every storage provider must satisfy:
// loading and saving raw bytes at a path, using opaque backend-specific
// options. The cache backend below is exempt from the expectedRev
// semantics.
type Backend interface {
	// Load reads the object at path and returns its bytes and stat. A
	// missing object is a *common.ErrNotFound-carrying Error.
	Load(ctx context.Context, path string, opts map[string]string) ([]byte, Stat, error)

	// Save writes data to path. If expectedRev is non-empty and the
	// backend's current revision for path differs, Save must fail with a
	// *common.ErrRevConflict-carrying Error without writing anything.
	// The returned Stat may carry a remapped Path (name-mangling backends).
	Save(ctx context.Context, path string, opts map[string]string, data []byte, expectedRev string) (Stat, error)
}

// StatCapable is implemented by backends that can cheaply check a remote
// revision without downloading the object. Backends without this capability force the engine down the
// backend-load-directly path of the open orchestrator.
type StatCapable interface {
	Stat(ctx context.Context, path string, opts map[string]string) (Stat, error)
}

// WatchCapable is implemented by backends that can notify the engine of
// out-of-band changes (in practice, only the local filesystem backend).
type WatchCapable interface {
	Watch(path string, callback func()) error
	Unwatch(path string) error
}

// PathNamer is implemented by backends with a name-to-path convention,
// used by the open orchestrator and sync setup when no path was given yet.
type PathNamer interface {
	GetPathForName(name string) string
}

// OptsTranslator is implemented by backends whose persisted opts differ in
// shape from their in-memory, file-bound opts.
type OptsTranslator interface {
	FileOptsToStoreOpts(opts map[string]string) map[string]string
	StoreOptsToFileOpts(opts map[string]string) map[string]string
}

// Kind discriminates the error carriers the engine distinguishes by.
type Kind int

const (
	// KindOther is any backend failure with no special engine handling.
	KindOther Kind = iota
	// KindNotFound means the object does not exist at the requested path.
	KindNotFound
	// KindRevConflict means a save's expectedRev no longer matches.
	KindRevConflict
)

// Error is the error type every Backend implementation must return for
// load/save/stat failures, so the engine can discriminate NotFound and
// RevConflict without depending on a specific backend's error type.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Op + " " + e.Path
	}
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound reports whether err is a backend.Error carrying KindNotFound.
func NotFound(err error) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind == KindNotFound
	}
	return errors.Is(err, common.ErrNotFound)
}

// RevConflict reports whether err is a backend.Error carrying KindRevConflict.
func RevConflict(err error) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind == KindRevConflict
	}
	return errors.Is(err, common.ErrRevConflict)
}
