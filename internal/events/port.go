// Package events implements the engine's event port: a typed replacement
// for a global pub/sub bus. UI collaborators register handlers at
// construction time; the engine calls Emit* methods fire-and-forget, never
// blocking on a slow or absent subscriber.
package events

// Filter mirrors the shape of the "filter" event payload. The
// engine passes this through untouched; entry filtering/sorting semantics
// are an external collaborator's concern.
type Filter struct {
	Filter  any
	Sort    any
	Entries any
}

// RemoteKeyChanged is emitted when File.MergeOrUpdate fails with
// ErrInvalidKey.
type RemoteKeyChanged struct {
	FileID string
}

// SelectEntry mirrors the "select-entry" event payload.
type SelectEntry struct {
	Entry any
}

// Port is the set of handlers a UI collaborator registers to receive
// engine-emitted events. A zero-value Port is valid and simply drops every
// event, which keeps the engine usable headless (e.g. in tests and the
// bundled CLI).
type Port struct {
	OnRefresh          func()
	OnFilter           func(Filter)
	OnSelectEntry      func(SelectEntry)
	OnRemoteKeyChanged func(RemoteKeyChanged)
}

// EmitRefresh notifies subscribers that open-file state changed and any
// cached projection should be rebuilt.
func (p *Port) EmitRefresh() {
	if p != nil && p.OnRefresh != nil {
		p.OnRefresh()
	}
}

// EmitFilter notifies subscribers of an updated filter/sort/entries triple.
func (p *Port) EmitFilter(f Filter) {
	if p != nil && p.OnFilter != nil {
		p.OnFilter(f)
	}
}

// EmitSelectEntry notifies subscribers that an entry was selected.
func (p *Port) EmitSelectEntry(e SelectEntry) {
	if p != nil && p.OnSelectEntry != nil {
		p.OnSelectEntry(e)
	}
}

// EmitRemoteKeyChanged notifies subscribers that a sync aborted because the
// remote file is encrypted under a different key than the local one.
func (p *Port) EmitRemoteKeyChanged(e RemoteKeyChanged) {
	if p != nil && p.OnRemoteKeyChanged != nil {
		p.OnRemoteKeyChanged(e)
	}
}
