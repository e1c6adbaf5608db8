package controller

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/grinsted/keeweb/internal/backend"
	"github.com/grinsted/keeweb/internal/events"
	"github.com/grinsted/keeweb/internal/fileinfo"
	"github.com/grinsted/keeweb/internal/openorch"
	"github.com/grinsted/keeweb/internal/syncengine"
	"github.com/grinsted/keeweb/internal/vaultfile"
)

type testRig struct {
	t          *testing.T
	controller *Controller
	cancel     context.CancelFunc
	backends   *backend.Registry
	local      *backend.Local
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	dir := t.TempDir()

	cacheDir := filepath.Join(dir, "cache")
	if err := os.MkdirAll(cacheDir, 0o770); err != nil {
		t.Fatalf("mkdir cache: %v", err)
	}
	wd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cache, err := backend.NewCache("cache")
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	ctx := context.Background()
	reg, err := fileinfo.Open(ctx, filepath.Join(dir, "fileinfo.db"))
	if err != nil {
		t.Fatalf("fileinfo.Open: %v", err)
	}

	local, err := backend.NewLocal()
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	t.Cleanup(func() { _ = local.Close() })

	backends := backend.NewRegistry()
	backends.Register("file", local)

	orch := openorch.New(reg, backends, cache, func() vaultfile.File { return vaultfile.New() })
	orch.FileChangeSync = 20 * time.Millisecond

	engine := syncengine.New(reg, backends, cache, &events.Port{})

	c := New(orch, engine, &events.Port{}, nil)

	runCtx, cancel := context.WithCancel(context.Background())
	go c.Run(runCtx)

	rig := &testRig{t: t, controller: c, cancel: cancel, backends: backends, local: local}
	t.Cleanup(cancel)
	return rig
}

func TestController_CreateNewFileThenCloseThenReopen(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vault.keeweb")

	file, err := rig.controller.CreateNewFile(ctx, "vault", "file", path, "hunter2", nil)
	if err != nil {
		t.Fatalf("CreateNewFile: %v", err)
	}
	id := file.ID()

	if err := rig.controller.SyncFile(ctx, id, syncengine.Options{}); err != nil {
		t.Fatalf("SyncFile: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected vault written to %s: %v", path, err)
	}

	if err := rig.controller.CloseFile(id); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}

	reopened, _, err := rig.controller.OpenFile(ctx, openorch.Request{
		Storage:  "file",
		Name:     "vault",
		Path:     path,
		Password: "hunter2",
	})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.ID() == "" {
		t.Fatalf("expected reopened file to have an id")
	}
}

func TestController_CreateDemoFileNeverTouchesBackend(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	file, err := rig.controller.CreateDemoFile(ctx, "demopass")
	if err != nil {
		t.Fatalf("CreateDemoFile: %v", err)
	}

	if err := rig.controller.SyncFile(ctx, file.ID(), syncengine.Options{Storage: "file", Path: "/should/never/be/touched"}); err != nil {
		t.Fatalf("expected demo sync to succeed as a no-op, got %v", err)
	}
	if _, err := os.Stat("/should/never/be/touched"); err == nil {
		t.Fatalf("demo sync must never write to a backend")
	}
}

func TestController_ImportFileWithXMLInvokesSuccessCallback(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "imported.keeweb")

	var called vaultfile.File
	file, err := rig.controller.ImportFileWithXML(ctx, "imported", "file", path, "importpass", nil, []byte("<xml>legacy</xml>"), func(f vaultfile.File) {
		called = f
	})
	if err != nil {
		t.Fatalf("ImportFileWithXML: %v", err)
	}
	if called == nil || called.ID() != file.ID() {
		t.Fatalf("expected success callback invoked with the imported file")
	}
	if !rig.controller.Orchestrator.IsOpen(file.ID()) {
		t.Fatalf("expected imported file registered in the open set")
	}
}

func TestController_RemoveFileInfoClearsCacheAndRegistry(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vault.keeweb")

	file, err := rig.controller.CreateNewFile(ctx, "vault", "file", path, "hunter2", nil)
	if err != nil {
		t.Fatalf("CreateNewFile: %v", err)
	}
	id := file.ID()

	if err := rig.controller.RemoveFileInfo(ctx, id); err != nil {
		t.Fatalf("RemoveFileInfo: %v", err)
	}

	if _, err := rig.controller.Engine.Registry.Get(ctx, id); err == nil {
		t.Fatalf("expected fileinfo removed")
	}
	if rig.controller.Engine.Cache.Has(id) {
		t.Fatalf("expected cached bytes removed")
	}
}

func TestController_ClearStoredKeyFilesWipesHashes(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vault.keeweb")

	file, err := rig.controller.CreateNewFile(ctx, "vault", "file", path, "hunter2", nil)
	if err != nil {
		t.Fatalf("CreateNewFile: %v", err)
	}
	if err := file.CreateKeyFileWithHash("deadbeef"); err != nil {
		t.Fatalf("CreateKeyFileWithHash: %v", err)
	}
	if err := rig.controller.SyncFile(ctx, file.ID(), syncengine.Options{}); err != nil {
		t.Fatalf("SyncFile: %v", err)
	}

	if err := rig.controller.ClearStoredKeyFiles(ctx); err != nil {
		t.Fatalf("ClearStoredKeyFiles: %v", err)
	}

	info, err := rig.controller.Engine.Registry.Get(ctx, file.ID())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if info.KeyFileHash != "" || info.KeyFileName != "" {
		t.Fatalf("expected key file hash/name cleared, got %+v", info)
	}
}

// Invariant 6: a burst of local filesystem writes to an open file's path
// collapses into exactly one watch-triggered sync. fsnotify can only watch
// a path that already exists, so the file must be created, synced to
// disk, and reopened before the watch can register (mirrors
// openorch.TestOpen_WatchDebounceFiresOnce's setup).
func TestController_WatchTriggerDebounceCausesExactlyOneSync(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vault.keeweb")

	created, err := rig.controller.CreateNewFile(ctx, "vault", "file", path, "hunter2", nil)
	if err != nil {
		t.Fatalf("CreateNewFile: %v", err)
	}
	if err := rig.controller.SyncFile(ctx, created.ID(), syncengine.Options{}); err != nil {
		t.Fatalf("initial SyncFile: %v", err)
	}
	if err := rig.controller.CloseFile(created.ID()); err != nil {
		t.Fatalf("CloseFile: %v", err)
	}

	reopened, _, err := rig.controller.OpenFile(ctx, openorch.Request{
		Storage:  "file",
		Name:     "vault",
		Path:     path,
		Password: "hunter2",
	})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = reopened

	var refreshes int32
	rig.controller.Events.OnRefresh = func() { atomic.AddInt32(&refreshes, 1) }

	for i := 0; i < 3; i++ {
		if _, err := rig.local.Save(ctx, path, nil, []byte(fmt.Sprintf("external-write-%d", i)), ""); err != nil {
			t.Fatalf("external write: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(150 * time.Millisecond)
	if got := atomic.LoadInt32(&refreshes); got != 1 {
		t.Fatalf("expected exactly one watch-triggered sync refresh, got %d", got)
	}
}
