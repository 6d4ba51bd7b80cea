// Package broker is the dtool storage broker for datasets kept in iRODS.
//
// A Broker addresses one dataset root and exposes the operations the dtool
// dataset builder calls during the create, upload and freeze lifecycle and
// when reading a frozen dataset. Each operation resolves its remote paths
// with the layout package and performs one or a small fixed number of
// remote.Remote calls; records travel as JSON through the codec package and
// items are made locally addressable by the cache package.
//
// The broker holds no locks around remote state. At most one writer per
// dataset root is expected during creation and freezing; reads may run
// concurrently with each other.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/marmos91/dtool-irods/internal/logger"
	"github.com/marmos91/dtool-irods/pkg/cache"
	"github.com/marmos91/dtool-irods/pkg/codec"
	"github.com/marmos91/dtool-irods/pkg/dataset"
	"github.com/marmos91/dtool-irods/pkg/layout"
	"github.com/marmos91/dtool-irods/pkg/metrics"
	"github.com/marmos91/dtool-irods/pkg/remote"
)

// Key is the storage broker key dtool uses to select this broker.
const Key = dataset.Scheme

// HandleKey is the metadata key holding an item's handle on its data object.
const HandleKey = "handle"

// ErrNoCache is returned by GetItemAbspath when the broker was created
// without a cache directory.
var ErrNoCache = errors.New("no item cache configured")

// Capabilities describes optional parts of the broker contract.
type Capabilities struct {
	// ItemMetadata is true when AddItemMetadata persists pre-freeze item
	// metadata. The iRODS broker reserves object metadata for the handle
	// tag, so it is false.
	ItemMetadata bool
}

// Broker reads and writes one dataset.
type Broker struct {
	uri    string
	layout layout.Layout
	remote remote.Remote
	codec  *codec.Codec
	cache  *cache.Cache

	cacheDir     string
	cacheMetrics metrics.CacheMetrics
	tempDir      string

	// uuid is read from the admin metadata on first use.
	uuidMu sync.Mutex
	uuid   string
}

// Option configures a Broker.
type Option func(*Broker)

// WithCacheDir enables GetItemAbspath, caching items under dir.
func WithCacheDir(dir string) Option {
	return func(b *Broker) {
		b.cacheDir = dir
	}
}

// WithCache shares an existing item cache between brokers.
func WithCache(c *cache.Cache) Option {
	return func(b *Broker) {
		b.cache = c
	}
}

// WithMetrics records item cache hits and misses.
func WithMetrics(m metrics.CacheMetrics) Option {
	return func(b *Broker) {
		b.cacheMetrics = m
	}
}

// WithTempDir stages outgoing records in dir.
func WithTempDir(dir string) Option {
	return func(b *Broker) {
		b.tempDir = dir
	}
}

// New creates a Broker for the dataset at uri on r. Nothing is read from or
// written to the remote store.
func New(uri string, r remote.Remote, opts ...Option) (*Broker, error) {
	if r == nil {
		return nil, fmt.Errorf("remote is required")
	}

	root, err := dataset.ParseURI(uri)
	if err != nil {
		return nil, err
	}

	b := &Broker{
		uri:    dataset.Scheme + ":" + root,
		layout: layout.New(root),
		remote: r,
	}
	for _, opt := range opts {
		opt(b)
	}

	if b.cache == nil && b.cacheDir != "" {
		var cacheOpts []cache.Option
		if b.cacheMetrics != nil {
			cacheOpts = append(cacheOpts, cache.WithMetrics(b.cacheMetrics))
		}
		b.cache, err = cache.New(b.cacheDir, cacheOpts...)
		if err != nil {
			return nil, err
		}
	}

	var codecOpts []codec.Option
	if b.tempDir != "" {
		codecOpts = append(codecOpts, codec.WithTempDir(b.tempDir))
	}
	b.codec = codec.New(r, codecOpts...)

	return b, nil
}

// GenerateURI returns the URI of a new dataset called name with the given
// uuid under prefix. It does not touch the remote store.
func GenerateURI(name, uuid, prefix string) string {
	return dataset.GenerateURI(name, uuid, prefix)
}

// URI returns the normalised dataset URI.
func (b *Broker) URI() string {
	return b.uri
}

// Layout returns the remote paths of the dataset.
func (b *Broker) Layout() layout.Layout {
	return b.layout
}

// Capabilities reports which optional operations are supported.
func (b *Broker) Capabilities() Capabilities {
	return Capabilities{ItemMetadata: false}
}

// ============================================================================
// Structure
// ============================================================================

// CreateStructure creates the dataset root and its fixed collections.
//
// The root must not exist; if it does, ErrAlreadyExists is returned before
// anything is written. Subcollections that already exist are left alone.
// structure.json and .dtool/README.txt are written last.
func (b *Broker) CreateStructure(ctx context.Context) error {
	root := b.layout.Root

	exists, err := b.remote.Exists(ctx, root)
	if err != nil {
		return fmt.Errorf("create structure: %w", err)
	}
	if exists {
		return fmt.Errorf("create structure %s: %w", root, remote.ErrAlreadyExists)
	}

	logger.Debug("broker: creating dataset root %s", root)
	if err := b.remote.MakeCollection(ctx, root); err != nil {
		return fmt.Errorf("create structure: %w", err)
	}

	for _, dir := range b.layout.EssentialDirectories() {
		if err := b.ensureCollection(ctx, dir); err != nil {
			return fmt.Errorf("create structure: %w", err)
		}
	}

	if err := b.codec.PutObject(ctx, b.layout.StructurePath(), layout.Structure()); err != nil {
		return fmt.Errorf("create structure: %w", err)
	}
	if err := b.codec.PutText(ctx, b.layout.DtoolReadmePath(), layout.DtoolReadme); err != nil {
		return fmt.Errorf("create structure: %w", err)
	}

	logger.Info("broker: created dataset structure at %s", root)
	return nil
}

func (b *Broker) ensureCollection(ctx context.Context, p string) error {
	exists, err := b.remote.Exists(ctx, p)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return b.remote.MakeCollection(ctx, p)
}

// PostFreezeHook removes the pre-freeze metadata fragments area. A missing
// area is not an error.
func (b *Broker) PostFreezeHook(ctx context.Context) error {
	fragments := b.layout.FragmentsDir()

	exists, err := b.remote.Exists(ctx, fragments)
	if err != nil {
		return fmt.Errorf("post freeze cleanup: %w", err)
	}
	if !exists {
		return nil
	}

	logger.Debug("broker: removing %s", fragments)
	if err := b.remote.RemoveAll(ctx, fragments); err != nil {
		return fmt.Errorf("post freeze cleanup: %w", err)
	}
	return nil
}
