package vaultfile

import (
	"context"
	"encoding/json"
	"testing"
)

func mustEncoded(t *testing.T, password string, seed map[string]json.RawMessage) []byte {
	t.Helper()
	data, err := NewEncoded(password, nil, seed)
	if err != nil {
		t.Fatalf("NewEncoded: %v", err)
	}
	return data
}

func TestDocument_OpenThenGetDataRoundTrip(t *testing.T) {
	ctx := context.Background()
	seed := map[string]json.RawMessage{"e1": json.RawMessage(`{"title":"a"}`)}
	data := mustEncoded(t, "pw", seed)

	d := New()
	if err := d.Open(ctx, "pw", data, nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if d.ID() == "" {
		t.Fatalf("expected non-empty id after open")
	}

	out, err := d.GetData(ctx)
	if err != nil {
		t.Fatalf("GetData: %v", err)
	}
	if len(out) == 0 {
		t.Fatalf("expected non-empty serialized data")
	}

	d2 := New()
	if err := d2.Open(ctx, "pw", out, nil); err != nil {
		t.Fatalf("reopen round trip: %v", err)
	}
}

func TestDocument_IDStaysStableAcrossEditsAndReopens(t *testing.T) {
	ctx := context.Background()
	seed := map[string]json.RawMessage{"e1": json.RawMessage(`{"title":"a"}`)}
	data := mustEncoded(t, "pw", seed)

	d := New()
	if err := d.Open(ctx, "pw", data, nil); err != nil {
		t.Fatalf("Open: %v", err)
	}
	id := d.ID()

	d.current["e1"] = json.RawMessage(`{"title":"b"}`)

	out1, err := d.GetData(ctx)
	if err != nil {
		t.Fatalf("GetData: %v", err)
	}
	if d.ID() != id {
		t.Fatalf("id changed after an in-memory edit: got %s, want %s", d.ID(), id)
	}

	out2, err := d.GetData(ctx)
	if err != nil {
		t.Fatalf("GetData: %v", err)
	}

	d2 := New()
	if err := d2.Open(ctx, "pw", out1, nil); err != nil {
		t.Fatalf("reopen out1: %v", err)
	}
	if d2.ID() != id {
		t.Fatalf("id changed across a save/reopen round trip: got %s, want %s", d2.ID(), id)
	}

	d3 := New()
	if err := d3.Open(ctx, "pw", out2, nil); err != nil {
		t.Fatalf("reopen out2: %v", err)
	}
	if d3.ID() != id {
		t.Fatalf("re-encrypting identical content changed the id: got %s, want %s", d3.ID(), id)
	}
}

func TestDocument_OpenWrongPasswordFails(t *testing.T) {
	ctx := context.Background()
	data := mustEncoded(t, "correct", nil)

	d := New()
	err := d.Open(ctx, "wrong", data, nil)
	if err != ErrInvalidKey {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestDocument_MergeOrUpdate_NoConflictTakesBothSidesChanges(t *testing.T) {
	ctx := context.Background()
	seed := map[string]json.RawMessage{
		"e1": json.RawMessage(`{"title":"original"}`),
		"e2": json.RawMessage(`{"title":"untouched"}`),
	}
	base := mustEncoded(t, "pw", seed)

	local := New()
	if err := local.Open(ctx, "pw", base, nil); err != nil {
		t.Fatalf("open local: %v", err)
	}
	local.current["e3"] = json.RawMessage(`{"title":"new-local"}`)
	local.modified = true

	remote := New()
	if err := remote.Open(ctx, "pw", base, nil); err != nil {
		t.Fatalf("open remote: %v", err)
	}
	remote.current["e4"] = json.RawMessage(`{"title":"new-remote"}`)
	remoteBytes, err := remote.GetData(ctx)
	if err != nil {
		t.Fatalf("remote GetData: %v", err)
	}

	if err := local.MergeOrUpdate(ctx, remoteBytes, nil); err != nil {
		t.Fatalf("MergeOrUpdate: %v", err)
	}

	if _, ok := local.current["e3"]; !ok {
		t.Fatalf("expected locally-added entry e3 to survive merge")
	}
	if _, ok := local.current["e4"]; !ok {
		t.Fatalf("expected remotely-added entry e4 to be adopted")
	}
	if string(local.current["e2"]) != `{"title":"untouched"}` {
		t.Fatalf("expected untouched entry to be preserved, got %s", local.current["e2"])
	}
}

func TestDocument_MergeOrUpdate_WrongKeyReturnsInvalidKey(t *testing.T) {
	ctx := context.Background()
	local := New()
	if err := local.Open(ctx, "pw", mustEncoded(t, "pw", nil), nil); err != nil {
		t.Fatalf("open: %v", err)
	}

	remoteBytes := mustEncoded(t, "different-pw", nil)
	err := local.MergeOrUpdate(ctx, remoteBytes, nil)
	if err != ErrInvalidKey {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestDocument_MergeOrUpdate_IdempotentOnRepeatedIdenticalBytes(t *testing.T) {
	ctx := context.Background()
	seed := map[string]json.RawMessage{"e1": json.RawMessage(`{"title":"a"}`)}
	base := mustEncoded(t, "pw", seed)

	local := New()
	if err := local.Open(ctx, "pw", base, nil); err != nil {
		t.Fatalf("open: %v", err)
	}

	remote := New()
	if err := remote.Open(ctx, "pw", base, nil); err != nil {
		t.Fatalf("open remote: %v", err)
	}
	remoteBytes, err := remote.GetData(ctx)
	if err != nil {
		t.Fatalf("GetData: %v", err)
	}

	if err := local.MergeOrUpdate(ctx, remoteBytes, nil); err != nil {
		t.Fatalf("first merge: %v", err)
	}
	first := cloneEntries(local.current)

	if err := local.MergeOrUpdate(ctx, remoteBytes, nil); err != nil {
		t.Fatalf("second merge: %v", err)
	}
	for k, v := range first {
		if string(local.current[k]) != string(v) {
			t.Fatalf("repeated merge of identical bytes changed entry %s", k)
		}
	}
}

func TestDocument_SetSyncComplete_ClearsModifiedOnlyOnSuccess(t *testing.T) {
	d := New()
	d.SetSyncProgress()
	d.modified = true
	d.dirty = true

	d.SetSyncComplete("/path", "s3", "boom", false)
	if !d.Modified() {
		t.Fatalf("expected modified to stay true on error")
	}
	if d.Syncing() {
		t.Fatalf("expected syncing to clear regardless of error")
	}

	d.SetSyncProgress()
	d.SetSyncComplete("/path", "s3", "", true)
	if d.Modified() {
		t.Fatalf("expected modified to clear on success")
	}
	if d.Dirty() {
		t.Fatalf("expected dirty to clear when savedToCache is true")
	}
}

func TestDocument_ImportWithXML(t *testing.T) {
	ctx := context.Background()
	d := New()
	if err := d.ImportWithXML(ctx, []byte("<xml/>")); err != nil {
		t.Fatalf("ImportWithXML: %v", err)
	}
	if d.ID() == "" {
		t.Fatalf("expected id to be set after import")
	}
	if !d.Modified() {
		t.Fatalf("expected freshly imported file to be modified")
	}
}
