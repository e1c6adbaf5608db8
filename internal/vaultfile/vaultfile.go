// Package vaultfile defines the File Object contract consumed by the sync
// engine: an opaque encrypted database that can open,
// serialize, and reconcile itself against remote bytes. The engine treats
// File as a black box — Document, below, is one concrete implementation;
// tests commonly substitute the scriptable Fake instead.
package vaultfile

import (
	"context"
	"errors"
)

// ErrInvalidKey is returned by MergeOrUpdate when remote bytes were
// encrypted under a key that does not match the file currently open.
// The engine surfaces this as a remote-key-changed event.
var ErrInvalidKey = errors.New("file: remote data encrypted with a different key")

// File is the contract the engine drives a password database through.
// Every method may block (the real Document implementation performs
// crypto and I/O); callers are expected to run it off whatever scheduling
// loop they use.
type File interface {
	// Open decrypts data using password and optional key-file bytes. On
	// success the File has a stable ID, minted once at creation and
	// carried in the encrypted envelope.
	Open(ctx context.Context, password string, data []byte, keyFileData []byte) error

	// ImportWithXML initializes the File from a cleartext XML export
	// instead of an encrypted blob.
	ImportWithXML(ctx context.Context, xml []byte) error

	// GetData serializes the current in-memory state to encrypted bytes
	// suitable for Save to a backend or the cache.
	GetData(ctx context.Context) ([]byte, error)

	// MergeOrUpdate reconciles remoteBytes (optionally re-keyed with
	// remoteKey) into the current in-memory state. Must be idempotent
	// when called repeatedly with identical remoteBytes. Returns
	// ErrInvalidKey if remoteBytes cannot be decrypted with the file's
	// current key material.
	MergeOrUpdate(ctx context.Context, remoteBytes []byte, remoteKey []byte) error

	// ID returns the stable identifier assigned at Open or ImportWithXML
	// time.
	ID() string

	// CacheID returns the FileInfo id this File is currently bound to
	// for cache reads/writes; SetCacheID updates it.
	CacheID() string
	SetCacheID(id string)

	// Modified reports whether local edits exist that have never been
	// successfully synced to the backend.
	Modified() bool

	// Dirty reports whether local bytes have never been successfully
	// written to the cache.
	Dirty() bool

	// Syncing reports whether a sync is currently in progress for this
	// file; it is the sole per-file mutex.
	Syncing() bool

	// SetLocalEditState / GetLocalEditState pass an opaque blob the
	// engine persists alongside the FileInfo record but never inspects.
	SetLocalEditState(blob []byte)
	GetLocalEditState() []byte

	// SetSyncProgress flips Syncing to true; it is the only place that
	// happens.
	SetSyncProgress()

	// SetSyncComplete clears Syncing, and on a nil errStr also clears
	// Modified. savedToCache records whether the cache write of this
	// cycle (if any) succeeded, regardless of the backend outcome.
	SetSyncComplete(path, storage string, errStr string, savedToCache bool)

	// Path / Opts / SetPathOpts mirror the backend-bound location this
	// File was last saved to or loaded from.
	Path() string
	Opts() map[string]string
	SetPathOpts(path string, opts map[string]string)

	// Rev mirrors the last-known backend revision; SetRev updates it.
	Rev() string
	SetRev(rev string)

	// Close releases any resources (e.g. watchers) held by the File.
	Close() error

	// EmptyTrash and GetTrashGroup are domain operations the engine
	// invokes without interpreting.
	EmptyTrash() error
	GetTrashGroup() (id string, ok bool)

	// GetKeyFileHash / CreateKeyFileWithHash handle opaque key-file
	// material the engine passes through to FileInfo.
	GetKeyFileHash() string
	CreateKeyFileWithHash(hash string) error
}
