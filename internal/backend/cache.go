package backend

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grinsted/keeweb/internal/common"
	"github.com/grinsted/keeweb/internal/filex"
)

// Cache is the always-present, content-addressed local store every open
// file is cached into. It never fails on a
// revision conflict: Save always succeeds and simply overwrites the prior
// bytes for the given id, since the cache has no concept of concurrent
// writers other than this process.
type Cache struct {
	dir string
}

// NewCache creates or reuses dirName under the process working directory
// as the cache root.
func NewCache(dirName string) (*Cache, error) {
	dir, err := filex.EnsureSubDir(dirName)
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) pathFor(id string) string {
	sum := sha256.Sum256([]byte(id))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:]))
}

// Load returns the cached bytes for id, or a NotFound *Error if nothing has
// been cached yet.
func (c *Cache) Load(_ context.Context, id string, _ map[string]string) ([]byte, Stat, error) {
	data, err := os.ReadFile(c.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Stat{}, &Error{Kind: KindNotFound, Op: "cache load", Path: id, Err: common.ErrNotFound}
		}
		return nil, Stat{}, &Error{Kind: KindOther, Op: "cache load", Path: id, Err: err}
	}
	return data, Stat{Rev: contentRev(data), Path: id}, nil
}

// Save writes data for id, ignoring expectedRev: the cache's only writer is
// this process's own sync engine, so there is no conflicting party to guard
// against.
func (c *Cache) Save(_ context.Context, id string, _ map[string]string, data []byte, _ string) (Stat, error) {
	if err := os.WriteFile(c.pathFor(id), data, 0o660); err != nil {
		return Stat{}, &Error{Kind: KindOther, Op: "cache save", Path: id, Err: err}
	}
	return Stat{Rev: contentRev(data), Path: id}, nil
}

// Remove deletes the cached entry for id, if any. Used when a file is
// removed from the registry.
func (c *Cache) Remove(id string) error {
	err := os.Remove(c.pathFor(id))
	if err != nil && !os.IsNotExist(err) {
		return &Error{Kind: KindOther, Op: "cache remove", Path: id, Err: err}
	}
	return nil
}

// Has reports whether id currently has cached bytes, without reading them.
func (c *Cache) Has(id string) bool {
	_, err := os.Stat(c.pathFor(id))
	return err == nil
}

func contentRev(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}
