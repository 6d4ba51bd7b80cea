// Package cache makes remote items addressable as local files.
//
// Items are downloaded on first request into <root>/<namespace>/<handle>,
// recreating the directory structure implied by the handle. The namespace is
// the dataset UUID, so datasets sharing one root never collide. Later
// requests return the same path without downloading again.
//
// The cache does not validate entries against the remote copy and never
// evicts: a frozen dataset's items cannot change, so an entry can only go
// stale if the cache directory is modified from outside. Entries can always
// be recreated, so removing the root or a namespace is safe at any time.
package cache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/marmos91/dtool-irods/internal/logger"
	"github.com/marmos91/dtool-irods/pkg/metrics"
)

// DownloadFunc writes the remote content of an item to dest, replacing the
// file there.
type DownloadFunc func(ctx context.Context, dest string) error

// Cache is a read-through item cache rooted at one local directory.
//
// Thread Safety: Safe for concurrent use. Concurrent misses for the same
// item each download; the last rename wins and both callers get the same
// path with the same content.
type Cache struct {
	root    string
	metrics metrics.CacheMetrics

	mu    sync.RWMutex
	index map[string]string // namespace + "\x00" + identifier -> local path
}

// Option configures a Cache.
type Option func(*Cache)

// WithMetrics records hits and misses.
func WithMetrics(m metrics.CacheMetrics) Option {
	return func(c *Cache) {
		if m != nil {
			c.metrics = m
		}
	}
}

// New creates a Cache rooted at root. The directory is created on first
// download.
func New(root string, opts ...Option) (*Cache, error) {
	if root == "" {
		return nil, fmt.Errorf("cache root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve cache root %s: %w", root, err)
	}

	c := &Cache{
		root:    abs,
		metrics: metrics.NewNoopCacheMetrics(),
		index:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Root returns the absolute cache root.
func (c *Cache) Root() string {
	return c.root
}

// Path returns where the item with handle is cached in namespace, without
// touching the filesystem.
//
// The handle must be a local relative path: absolute handles and handles
// escaping the namespace with ".." are rejected.
func (c *Cache) Path(namespace, handle string) (string, error) {
	if err := checkNamespace(namespace); err != nil {
		return "", err
	}

	rel := filepath.FromSlash(handle)
	if handle == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("handle %q is not a local relative path", handle)
	}
	return filepath.Join(c.root, namespace, rel), nil
}

// Lookup returns the path of an item already fetched by this Cache.
//
// An entry whose file has been removed from disk is forgotten and reported
// as absent, so the next Fetch downloads the item again.
func (c *Cache) Lookup(namespace, identifier string) (string, bool) {
	key := namespace + "\x00" + identifier

	c.mu.RLock()
	cached, ok := c.index[key]
	c.mu.RUnlock()
	if !ok {
		return "", false
	}

	if info, err := os.Stat(cached); err != nil || !info.Mode().IsRegular() {
		c.mu.Lock()
		if c.index[key] == cached {
			delete(c.index, key)
		}
		c.mu.Unlock()
		logger.Debug("cache: %s is gone, forgetting it", cached)
		return "", false
	}

	c.metrics.RecordHit()
	return cached, true
}

// Fetch returns the local path of an item, downloading it if it is not
// cached yet.
//
// The download goes to a temporary file next to the final path and is
// renamed into place only when complete, so a failed or interrupted
// download never leaves a partial file behind.
func (c *Cache) Fetch(ctx context.Context, namespace, identifier, handle string, download DownloadFunc) (string, error) {
	if cached, ok := c.Lookup(namespace, identifier); ok {
		return cached, nil
	}
	key := namespace + "\x00" + identifier

	dest, err := c.Path(namespace, handle)
	if err != nil {
		return "", err
	}

	// Present on disk from an earlier process.
	if info, err := os.Stat(dest); err == nil && info.Mode().IsRegular() {
		c.remember(key, dest)
		c.metrics.RecordHit()
		return dest, nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("create cache directory for %s: %w", handle, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".partial-*")
	if err != nil {
		return "", fmt.Errorf("create cache file for %s: %w", handle, err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()

	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := download(ctx, tmpPath); err != nil {
		return "", fmt.Errorf("download %s: %w", handle, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", fmt.Errorf("commit %s to cache: %w", handle, err)
	}
	committed = true

	var size int64
	if info, err := os.Stat(dest); err == nil {
		size = info.Size()
	}
	c.metrics.RecordMiss(size)
	c.remember(key, dest)

	logger.Debug("cache: fetched %s into %s (%d bytes)", handle, dest, size)
	return dest, nil
}

// Clear removes every cached item of namespace.
func (c *Cache) Clear(namespace string) error {
	if err := checkNamespace(namespace); err != nil {
		return err
	}

	c.mu.Lock()
	prefix := namespace + "\x00"
	for key := range c.index {
		if strings.HasPrefix(key, prefix) {
			delete(c.index, key)
		}
	}
	c.mu.Unlock()

	if err := os.RemoveAll(filepath.Join(c.root, namespace)); err != nil {
		return fmt.Errorf("clear cache namespace %s: %w", namespace, err)
	}
	return nil
}

func (c *Cache) remember(key, path string) {
	c.mu.Lock()
	c.index[key] = path
	c.mu.Unlock()
}

func checkNamespace(namespace string) error {
	if namespace == "" || !filepath.IsLocal(namespace) || strings.ContainsAny(namespace, `/\`) {
		return fmt.Errorf("invalid cache namespace %q", namespace)
	}
	return nil
}
