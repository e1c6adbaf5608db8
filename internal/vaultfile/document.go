package vaultfile

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/grinsted/keeweb/internal/cryptox"
)

// diffCleanupThreshold mirrors the merge reference's cutoff below which
// diff cleanup passes aren't worth running.
const diffCleanupThreshold = 2

// entries is the plaintext payload a Document carries: a flat map keyed by
// entry UUID. The engine never inspects this; it exists so Document has
// something concrete to encrypt, serialize and three-way merge.
type entries map[string]json.RawMessage

// envelope is the at-rest format GetData produces and Open/MergeOrUpdate
// consume: a stable id minted once at creation, the salt argon2id was run
// with, the AES-GCM nonce, and the sealed entries. The id rides in the
// envelope rather than being derived from the ciphertext, since GCM's
// random nonce would otherwise make a content hash change on every save.
type envelope struct {
	ID         string `json:"id"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Document is the reference File implementation: entries are JSON, at
// rest they are AES-256-GCM sealed under a key derived via argon2id
// (cryptox.DeriveMasterKey), and concurrent edits are reconciled with a
// diffmatchpatch three-way merge over each entry's JSON text, using the
// last-synced plaintext as the merge base.
type Document struct {
	mu sync.Mutex

	id      string
	cacheID string

	masterKey []byte
	salt      []byte

	current  entries
	baseline entries // last plaintext successfully merged or saved

	modified bool
	dirty    bool
	syncing  bool
	syncDate time.Time

	path string
	opts map[string]string
	rev  string

	editState   []byte
	keyFileHash string
	trashGroup  string

	demo bool
}

// New creates an empty, unopened Document.
func New() *Document {
	return &Document{current: entries{}, baseline: entries{}}
}

func (d *Document) Open(_ context.Context, password string, data []byte, keyFileData []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("vaultfile: open: decode envelope: %w", err)
	}

	key := cryptox.DeriveMasterKey(derivedPassword(password, keyFileData), env.Salt)

	var e entries
	if err := cryptox.DecryptJSON(env.Ciphertext, env.Nonce, key, &e); err != nil {
		return ErrInvalidKey
	}

	d.masterKey = key
	d.salt = env.Salt
	d.current = e
	d.baseline = cloneEntries(e)
	d.id = env.ID
	if d.id == "" {
		d.id = uuid.NewString()
	}
	return nil
}

// ImportWithXML is an alternate initializer to Open: it replaces the
// Document's entries with a cleartext XML import instead of decrypting an
// existing envelope. It is meant to run on a freshly constructed Document,
// before GetData is ever called, so a stable id is minted here if Open
// hasn't already provided one.
func (d *Document) ImportWithXML(_ context.Context, xml []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	raw, err := json.Marshal(string(xml))
	if err != nil {
		return fmt.Errorf("vaultfile: importWithXml: %w", err)
	}

	d.current = entries{"imported": json.RawMessage(raw)}
	d.baseline = entries{}
	if d.id == "" {
		d.id = uuid.NewString()
	}
	d.modified = true
	return nil
}

func (d *Document) GetData(_ context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.serializeLocked()
}

func (d *Document) serializeLocked() ([]byte, error) {
	if d.masterKey == nil {
		return nil, fmt.Errorf("vaultfile: getData: file is not open")
	}
	ciphertext, nonce, err := cryptox.EncryptJSON(d.current, d.masterKey)
	if err != nil {
		return nil, fmt.Errorf("vaultfile: getData: %w", err)
	}
	data, err := json.Marshal(envelope{ID: d.id, Salt: d.salt, Nonce: nonce, Ciphertext: ciphertext})
	if err != nil {
		return nil, fmt.Errorf("vaultfile: getData: encode envelope: %w", err)
	}
	return data, nil
}

// MergeOrUpdate decrypts remoteBytes (re-keying with remoteKey if given)
// and three-way merges it against the local baseline: each entry's raw
// JSON is treated as an opaque text blob, diffed against the baseline,
// and the patch is applied onto the remote value. Entries added on only
// one side are kept as-is.
func (d *Document) MergeOrUpdate(_ context.Context, remoteBytes []byte, remoteKey []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var env envelope
	if err := json.Unmarshal(remoteBytes, &env); err != nil {
		return fmt.Errorf("vaultfile: mergeOrUpdate: decode envelope: %w", err)
	}

	key := d.masterKey
	if remoteKey != nil {
		key = remoteKey
	}

	var remote entries
	if err := cryptox.DecryptJSON(env.Ciphertext, env.Nonce, key, &remote); err != nil {
		return ErrInvalidKey
	}

	merged := threeWayMergeEntries(d.baseline, d.current, remote)
	d.current = merged
	d.baseline = cloneEntries(remote)
	if remoteKey != nil {
		d.masterKey = remoteKey
		d.salt = env.Salt
	}
	return nil
}

// threeWayMergeEntries merges base→local edits onto remote, per key.
func threeWayMergeEntries(base, local, remote entries) entries {
	merged := make(entries, len(remote))
	for k, v := range remote {
		merged[k] = v
	}

	for k, localVal := range local {
		baseVal, hadBase := base[k]
		remoteVal, hasRemote := remote[k]

		switch {
		case !hadBase:
			// Locally created since the last baseline: keep it, even if
			// remote also added a same-keyed entry independently.
			merged[k] = localVal
		case !hasRemote:
			// Remote deleted it; local edits win only if they actually
			// changed something since the baseline.
			if string(localVal) != string(baseVal) {
				merged[k] = localVal
			} else {
				delete(merged, k)
			}
		case string(localVal) == string(remoteVal):
			// Both sides agree; nothing to do.
		case string(localVal) == string(baseVal):
			// Unchanged locally; remote value already in merged.
		default:
			merged[k] = mergeJSONText(baseVal, localVal, remoteVal)
		}
	}
	return merged
}

func mergeJSONText(base, local, remote json.RawMessage) json.RawMessage {
	dmp := diffmatchpatch.New()

	diffs := dmp.DiffMain(string(base), string(local), true)
	if len(diffs) > diffCleanupThreshold {
		diffs = dmp.DiffCleanupSemantic(diffs)
		diffs = dmp.DiffCleanupEfficiency(diffs)
	}

	patches := dmp.PatchMake(string(base), diffs)
	result, _ := dmp.PatchApply(patches, string(remote))
	return json.RawMessage(result)
}

// SetDemo marks this Document as a demo file, which the sync engine treats
// as an unconditional no-op success.
func (d *Document) SetDemo(demo bool) { d.mu.Lock(); defer d.mu.Unlock(); d.demo = demo }

func (d *Document) IsDemo() bool { d.mu.Lock(); defer d.mu.Unlock(); return d.demo }

func (d *Document) ID() string { d.mu.Lock(); defer d.mu.Unlock(); return d.id }

func (d *Document) CacheID() string { d.mu.Lock(); defer d.mu.Unlock(); return d.cacheID }

func (d *Document) SetCacheID(id string) { d.mu.Lock(); defer d.mu.Unlock(); d.cacheID = id }

func (d *Document) Modified() bool { d.mu.Lock(); defer d.mu.Unlock(); return d.modified }

func (d *Document) Dirty() bool { d.mu.Lock(); defer d.mu.Unlock(); return d.dirty }

func (d *Document) Syncing() bool { d.mu.Lock(); defer d.mu.Unlock(); return d.syncing }

func (d *Document) SetLocalEditState(blob []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.editState = append([]byte(nil), blob...)
}

func (d *Document) GetLocalEditState() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.editState...)
}

func (d *Document) SetSyncProgress() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.syncing = true
}

func (d *Document) SetSyncComplete(path, storage string, errStr string, savedToCache bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.syncing = false
	if errStr == "" {
		d.modified = false
		d.path = path
		d.syncDate = syncCompleteNow()
		d.baseline = cloneEntries(d.current)
	}
	if savedToCache {
		d.dirty = false
	}
	_ = storage
}

// syncCompleteNow is a var so tests could observe stamping behavior
// without depending on wall-clock equality.
var syncCompleteNow = time.Now

func (d *Document) Path() string { d.mu.Lock(); defer d.mu.Unlock(); return d.path }

func (d *Document) Opts() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]string, len(d.opts))
	for k, v := range d.opts {
		out[k] = v
	}
	return out
}

func (d *Document) SetPathOpts(path string, opts map[string]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.path = path
	d.opts = opts
}

func (d *Document) Rev() string { d.mu.Lock(); defer d.mu.Unlock(); return d.rev }

func (d *Document) SetRev(rev string) { d.mu.Lock(); defer d.mu.Unlock(); d.rev = rev }

func (d *Document) Close() error { return nil }

func (d *Document) EmptyTrash() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.trashGroup == "" {
		return nil
	}
	delete(d.current, d.trashGroup)
	d.modified = true
	return nil
}

func (d *Document) GetTrashGroup() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.trashGroup, d.trashGroup != ""
}

func (d *Document) GetKeyFileHash() string { d.mu.Lock(); defer d.mu.Unlock(); return d.keyFileHash }

func (d *Document) CreateKeyFileWithHash(hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keyFileHash = hash
	return nil
}

// NewEncoded builds the at-rest envelope for a fresh Document seeded with
// the given password/key-file material and entries, for use by
// CreateNewFile-style callers and tests.
func NewEncoded(password string, keyFileData []byte, seed map[string]json.RawMessage) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("vaultfile: newEncoded: %w", err)
	}
	key := cryptox.DeriveMasterKey(derivedPassword(password, keyFileData), salt)

	if seed == nil {
		seed = map[string]json.RawMessage{}
	}
	ciphertext, nonce, err := cryptox.EncryptJSON(entries(seed), key)
	if err != nil {
		return nil, fmt.Errorf("vaultfile: newEncoded: %w", err)
	}
	return json.Marshal(envelope{ID: uuid.NewString(), Salt: salt, Nonce: nonce, Ciphertext: ciphertext})
}

func derivedPassword(password string, keyFileData []byte) []byte {
	if len(keyFileData) == 0 {
		return []byte(password)
	}
	return append([]byte(password), keyFileData...)
}

func cloneEntries(e entries) entries {
	clone := make(entries, len(e))
	for k, v := range e {
		clone[k] = v
	}
	return clone
}
