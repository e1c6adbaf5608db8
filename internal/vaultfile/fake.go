package vaultfile

import "context"

// Fake is a scriptable File implementation for exercising the open
// orchestrator and sync state machine without real crypto.
type Fake struct {
	IDValue string

	OpenErr          error
	ImportErr        error
	GetDataBytes     []byte
	GetDataErr       error
	MergeErr         error
	MergeCalls       int
	MergeLastRemote  []byte
	MergeLastKey     []byte

	cacheID  string
	modified bool
	dirty    bool
	syncing  bool
	path     string
	opts     map[string]string
	rev      string

	editState   []byte
	keyFileHash string
	trashGroup  string

	demo bool
}

// NewFake builds a Fake already carrying id, so tests don't need to call
// Open first.
func NewFake(id string) *Fake {
	return &Fake{IDValue: id}
}

// SetDemo marks this Fake as a demo file, which the sync state machine
// treats as an unconditional no-op success.
func (f *Fake) SetDemo(demo bool) { f.demo = demo }
func (f *Fake) IsDemo() bool      { return f.demo }

func (f *Fake) Open(_ context.Context, _ string, _ []byte, _ []byte) error { return f.OpenErr }

func (f *Fake) ImportWithXML(_ context.Context, _ []byte) error { return f.ImportErr }

func (f *Fake) GetData(_ context.Context) ([]byte, error) { return f.GetDataBytes, f.GetDataErr }

func (f *Fake) MergeOrUpdate(_ context.Context, remoteBytes []byte, remoteKey []byte) error {
	f.MergeCalls++
	f.MergeLastRemote = remoteBytes
	f.MergeLastKey = remoteKey
	return f.MergeErr
}

func (f *Fake) ID() string { return f.IDValue }

func (f *Fake) CacheID() string      { return f.cacheID }
func (f *Fake) SetCacheID(id string) { f.cacheID = id }

func (f *Fake) Modified() bool      { return f.modified }
func (f *Fake) SetModified(v bool)  { f.modified = v }

func (f *Fake) Dirty() bool     { return f.dirty }
func (f *Fake) SetDirty(v bool) { f.dirty = v }

func (f *Fake) Syncing() bool { return f.syncing }

func (f *Fake) SetLocalEditState(blob []byte) { f.editState = blob }
func (f *Fake) GetLocalEditState() []byte     { return f.editState }

func (f *Fake) SetSyncProgress() { f.syncing = true }

func (f *Fake) SetSyncComplete(path, _ string, errStr string, savedToCache bool) {
	f.syncing = false
	if errStr == "" {
		f.modified = false
		f.path = path
	}
	if savedToCache {
		f.dirty = false
	}
}

func (f *Fake) Path() string { return f.path }

func (f *Fake) Opts() map[string]string { return f.opts }

func (f *Fake) SetPathOpts(path string, opts map[string]string) {
	f.path = path
	f.opts = opts
}

func (f *Fake) Rev() string      { return f.rev }
func (f *Fake) SetRev(rev string) { f.rev = rev }

func (f *Fake) Close() error { return nil }

func (f *Fake) EmptyTrash() error { return nil }

func (f *Fake) GetTrashGroup() (string, bool) { return f.trashGroup, f.trashGroup != "" }

func (f *Fake) GetKeyFileHash() string { return f.keyFileHash }

func (f *Fake) CreateKeyFileWithHash(hash string) error {
	f.keyFileHash = hash
	return nil
}
