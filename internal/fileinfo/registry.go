package fileinfo

import "context"

// Registry is the FileInfo Registry contract consumed by the open
// orchestrator and sync state machine.
type Registry interface {
	// Get returns the record with the given id, or common.ErrNotFound.
	Get(ctx context.Context, id string) (Info, error)

	// GetMatch returns the record whose storage, name and path all equal
	// the given triple, or common.ErrNotFound. Used when an open request
	// lacks an id.
	GetMatch(ctx context.Context, storage, name, path string) (Info, error)

	// GetByName returns the first record with the given name, or
	// common.ErrNotFound.
	GetByName(ctx context.Context, name string) (Info, error)

	// Remove deletes the record with the given id. Removing a
	// nonexistent id is a no-op.
	Remove(ctx context.Context, id string) error

	// Unshift inserts info at the head of the MRU order, replacing any
	// existing record with the same id.
	Unshift(ctx context.Context, info Info) error

	// Save persists the current in-memory order and contents to the
	// underlying store.
	Save(ctx context.Context) error

	// Load bootstraps the in-memory order and contents from the
	// underlying store, most-recently-opened first.
	Load(ctx context.Context) ([]Info, error)
}
