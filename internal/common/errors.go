// Package common holds sentinel errors and small helpers shared across the
// sync engine's packages. Callers should use errors.Is/errors.As to match
// these values rather than comparing error strings.
package common

import "errors"

var (
	// ErrNotFound means a stat/load found no object at the given path.
	ErrNotFound = errors.New("not found")

	// ErrRevConflict means a backend rejected a save because the expected
	// revision no longer matches the one it holds.
	ErrRevConflict = errors.New("revision conflict")

	// ErrInvalidKey names the wrong-key failure kind. No package here
	// returns it: File.MergeOrUpdate reports a key mismatch with
	// vaultfile.ErrInvalidKey, a distinct value.
	ErrInvalidKey = errors.New("invalid key")

	// ErrDuplicateFileID means an open request resolved to a File whose id
	// is already present in the controller's open-file set.
	ErrDuplicateFileID = errors.New("file already open")

	// ErrSyncInProgress means Sync was called on a File whose syncing flag
	// is already set.
	ErrSyncInProgress = errors.New("sync in progress")

	// ErrTooManyLoadAttempts means the stat/load/merge retry loop exceeded
	// its bound without a save succeeding.
	ErrTooManyLoadAttempts = errors.New("too many load attempts")

	// ErrUnsupportedCapability means a backend was asked to perform an
	// operation it does not implement (e.g. Watch on a backend with no
	// WatchCapable implementation).
	ErrUnsupportedCapability = errors.New("backend does not support this operation")
)
