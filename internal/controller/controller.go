// Package controller implements the Application Controller: the single
// owner of the open-file set, wiring the Open Orchestrator and the Sync
// State Machine behind a small task queue so every state transition
// serializes onto one goroutine, a single-threaded cooperative runtime.
package controller

import (
	"context"
	"fmt"
	"sync"

	"github.com/grinsted/keeweb/internal/common"
	"github.com/grinsted/keeweb/internal/events"
	"github.com/grinsted/keeweb/internal/fileinfo"
	"github.com/grinsted/keeweb/internal/logging"
	"github.com/grinsted/keeweb/internal/openorch"
	"github.com/grinsted/keeweb/internal/syncengine"
	"github.com/grinsted/keeweb/internal/vaultfile"
)

// Controller is the Application Controller. Every public method funnels
// its work through submit, so Run's goroutine is the only one that ever
// touches Orchestrator/Engine state.
type Controller struct {
	Orchestrator *openorch.Orchestrator
	Engine       *syncengine.Engine
	Events       *events.Port
	Log          logging.Logger

	tasks chan func()

	mu    sync.Mutex
	files map[string]vaultfile.File
}

// New builds a Controller and wires the orchestrator's debounced watch
// callback to the controller's own sync path.
func New(orch *openorch.Orchestrator, engine *syncengine.Engine, port *events.Port, log logging.Logger) *Controller {
	if log == nil {
		log = logging.NopLogger{}
	}
	if port == nil {
		port = &events.Port{}
	}
	c := &Controller{
		Orchestrator: orch,
		Engine:       engine,
		Events:       port,
		Log:          log,
		tasks:        make(chan func(), 32),
		files:        make(map[string]vaultfile.File),
	}
	orch.OnWatchTrigger = c.onWatchTrigger
	return c
}

// Run drains the task queue on the calling goroutine until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-c.tasks:
			task()
		}
	}
}

// submit schedules fn on the controller's run loop and blocks until it
// completes, giving exported methods synchronous call semantics despite
// the single-goroutine serialization underneath.
func (c *Controller) submit(fn func()) {
	done := make(chan struct{})
	c.tasks <- func() {
		fn()
		close(done)
	}
	<-done
}

func (c *Controller) onWatchTrigger(fileID string) {
	go func() {
		c.submit(func() {
			file, ok := c.lookupFile(fileID)
			if !ok {
				return
			}
			if err := c.Engine.Sync(context.Background(), file, syncengine.Options{}); err != nil {
				c.Log.Warn(context.Background(), "watch-triggered sync failed", "file", fileID, "err", err)
			}
		})
		c.Events.EmitRefresh()
	}()
}

func (c *Controller) lookupFile(id string) (vaultfile.File, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.files[id]
	return f, ok
}

// OpenFile resolves req via the Open Orchestrator, registers the result in
// the open-file set, and schedules the async sync the orchestrator may
// require.
func (c *Controller) OpenFile(ctx context.Context, req openorch.Request) (vaultfile.File, fileinfo.Info, error) {
	var res openorch.OpenResult
	var err error
	c.submit(func() {
		res, err = c.Orchestrator.Open(ctx, req)
		if err == nil {
			c.mu.Lock()
			c.files[res.File.ID()] = res.File
			c.mu.Unlock()
		}
	})
	if err != nil {
		return nil, fileinfo.Info{}, err
	}
	if res.NeedsAsyncSync {
		go c.asyncSync(res.File)
	}
	return res.File, res.Info, nil
}

func (c *Controller) asyncSync(file vaultfile.File) {
	c.submit(func() {
		if err := c.Engine.Sync(context.Background(), file, syncengine.Options{}); err != nil {
			c.Log.Warn(context.Background(), "async open-sync failed", "file", file.ID(), "err", err)
		}
	})
	c.Events.EmitRefresh()
}

// CloseFile removes id from the open-file set and releases its resources.
func (c *Controller) CloseFile(id string) error {
	var err error
	c.submit(func() {
		file, ok := c.lookupFile(id)
		if !ok {
			err = common.ErrNotFound
			return
		}
		err = file.Close()
		c.Orchestrator.Close(id)
		c.mu.Lock()
		delete(c.files, id)
		c.mu.Unlock()
	})
	return err
}

// CloseAllFiles closes every currently open file, collecting the first
// error encountered but attempting every close regardless.
func (c *Controller) CloseAllFiles() error {
	c.mu.Lock()
	ids := make([]string, 0, len(c.files))
	for id := range c.files {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := c.CloseFile(id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SyncFile runs one sync cycle for the open file id.
func (c *Controller) SyncFile(ctx context.Context, id string, opts syncengine.Options) error {
	var err error
	c.submit(func() {
		file, ok := c.lookupFile(id)
		if !ok {
			err = common.ErrNotFound
			return
		}
		err = c.Engine.Sync(ctx, file, opts)
	})
	c.Events.EmitRefresh()
	return err
}

// CreateNewFile seeds a fresh empty vault and opens it through the
// orchestrator with the supplied bytes, so it lands in the cache and
// open-file set the same way any other open would. The file is not marked
// modified; a sync creates it at storage/path when the backend's Stat
// reports no object there.
func (c *Controller) CreateNewFile(ctx context.Context, name, storage, path, password string, keyFileData []byte) (vaultfile.File, error) {
	data, err := vaultfile.NewEncoded(password, keyFileData, nil)
	if err != nil {
		return nil, fmt.Errorf("controller: createNewFile: %w", err)
	}

	file, _, err := c.OpenFile(ctx, openorch.Request{
		Name:        name,
		Storage:     storage,
		Path:        path,
		Password:    password,
		KeyFileData: keyFileData,
		FileData:    data,
	})
	return file, err
}

// CreateDemoFile opens an in-memory demo vault. The sync engine treats any
// File whose IsDemo() reports true as an unconditional no-op success
//, so a demo file never touches a backend.
func (c *Controller) CreateDemoFile(ctx context.Context, password string) (vaultfile.File, error) {
	data, err := vaultfile.NewEncoded(password, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("controller: createDemoFile: %w", err)
	}

	doc := vaultfile.New()
	if err := doc.Open(ctx, password, data, nil); err != nil {
		return nil, fmt.Errorf("controller: createDemoFile: %w", err)
	}
	doc.SetDemo(true)

	c.mu.Lock()
	c.files[doc.ID()] = doc
	c.mu.Unlock()
	return doc, nil
}

// ImportFileWithXmlCallback is invoked once an XML import has been sealed
// and handed to the orchestrator.
type ImportFileWithXmlCallback func(file vaultfile.File)

// ImportFileWithXML decrypts nothing (there is no prior vault): it seeds a
// fresh vault under password/keyFileData, replaces its entries with the
// imported XML payload, and opens it through the orchestrator so it is
// cached and registered like any other file.
//
// onSuccess is always invoked once the import and initial cache write
// succeed.
func (c *Controller) ImportFileWithXML(ctx context.Context, name, storage, path, password string, keyFileData, xml []byte, onSuccess ImportFileWithXmlCallback) (vaultfile.File, error) {
	seed, err := vaultfile.NewEncoded(password, keyFileData, nil)
	if err != nil {
		return nil, fmt.Errorf("controller: importFileWithXml: %w", err)
	}

	doc := vaultfile.New()
	if err := doc.Open(ctx, password, seed, keyFileData); err != nil {
		return nil, fmt.Errorf("controller: importFileWithXml: %w", err)
	}
	if err := doc.ImportWithXML(ctx, xml); err != nil {
		return nil, fmt.Errorf("controller: importFileWithXml: %w", err)
	}

	data, err := doc.GetData(ctx)
	if err != nil {
		return nil, fmt.Errorf("controller: importFileWithXml: %w", err)
	}

	file, _, err := c.OpenFile(ctx, openorch.Request{
		Name:        name,
		Storage:     storage,
		Path:        path,
		Password:    password,
		KeyFileData: keyFileData,
		FileData:    data,
	})
	if err != nil {
		return nil, err
	}

	if onSuccess != nil {
		onSuccess(file)
	}
	return file, nil
}

// RemoveFileInfo deletes id's FileInfo record and cached bytes, closing the
// file first if it is currently open.
func (c *Controller) RemoveFileInfo(ctx context.Context, id string) error {
	if c.lookupFileExists(id) {
		if err := c.CloseFile(id); err != nil {
			return err
		}
	}
	if err := c.Engine.Registry.Remove(ctx, id); err != nil {
		return fmt.Errorf("controller: removeFileInfo: %w", err)
	}
	if err := c.Engine.Cache.Remove(id); err != nil {
		return fmt.Errorf("controller: removeFileInfo: %w", err)
	}
	return nil
}

func (c *Controller) lookupFileExists(id string) bool {
	_, ok := c.lookupFile(id)
	return ok
}

// ClearStoredKeyFiles clears the remembered key-file name/hash for every
// FileInfo record, forcing a re-prompt on next open.
func (c *Controller) ClearStoredKeyFiles(ctx context.Context) error {
	infos, err := c.Engine.Registry.Load(ctx)
	if err != nil {
		return fmt.Errorf("controller: clearStoredKeyFiles: %w", err)
	}
	for _, info := range infos {
		if info.KeyFileName == "" && info.KeyFileHash == "" {
			continue
		}
		info.KeyFileName = ""
		info.KeyFileHash = ""
		if err := c.Engine.Registry.Unshift(ctx, info); err != nil {
			return fmt.Errorf("controller: clearStoredKeyFiles: %w", err)
		}
	}
	return c.Engine.Registry.Save(ctx)
}
