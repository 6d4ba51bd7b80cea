package remote

import (
	"context"
	"time"
)

// ============================================================================
// Remote Interface
// ============================================================================

// Remote is the set of primitive operations the storage broker needs from a
// hierarchical remote store.
//
// The interface is deliberately narrow: every broker operation is expressed
// as one or a small fixed number of these calls, and none of them require
// remote-side scripting or multi-step transactions. Each method returns a
// structured value, so a transport that talks to the store through a
// command-line client (parsing free-form text) and one that uses a native
// API are interchangeable behind it.
//
// Paths:
// Paths are absolute, slash-separated remote paths (e.g. "/zone/home/ds/data").
// Implementations must not interpret them relative to any working directory.
//
// Objects and collections:
// A collection is a directory-like container. A data object is a leaf holding
// bytes plus a small set of string metadata keys. Implementations decide how
// collections are materialised (iRODS has native collections, S3 uses marker
// keys, the badger backend stores explicit entries).
//
// Errors:
// Implementations return errors wrapping the sentinels in errors.go:
//   - ErrNotFound when the addressed object or collection does not exist
//   - ErrTransport when the store could not be reached or rejected the call
//   - ErrParse when the store's response could not be understood
//
// Thread Safety:
// Implementations must be safe for concurrent use. Concurrent writers to the
// same path are not coordinated.
type Remote interface {
	// Exists reports whether an object or collection exists at path.
	//
	// Returns (false, nil) when nothing exists at path. An error is returned
	// only for failures to reach the store.
	Exists(ctx context.Context, path string) (bool, error)

	// MakeCollection creates a collection at path. The parent must exist.
	MakeCollection(ctx context.Context, path string) error

	// Put uploads the full content of the local file at localPath to
	// remotePath, replacing any existing object.
	Put(ctx context.Context, localPath, remotePath string) error

	// Get downloads the full content of remotePath to localPath, replacing
	// any existing local file.
	Get(ctx context.Context, remotePath, localPath string) error

	// ReadAll returns the full content of remotePath.
	ReadAll(ctx context.Context, remotePath string) ([]byte, error)

	// List returns the immediate children of the collection at path.
	//
	// Order is store-defined and must not be relied upon.
	List(ctx context.Context, path string) ([]Entry, error)

	// SetMeta associates value with key on the object at path, replacing any
	// previous value for key.
	SetMeta(ctx context.Context, path, key, value string) error

	// GetMeta returns the value of key on the object at path.
	//
	// Returns ErrNotFound if the object or the key does not exist.
	GetMeta(ctx context.Context, path, key string) (string, error)

	// Checksum returns the lowercase hex md5 digest of the object at path.
	//
	// Returns ErrUnsupportedDigest if the store reports another algorithm.
	Checksum(ctx context.Context, path string) (string, error)

	// Stat returns the size and modification time of the object at path.
	Stat(ctx context.Context, path string) (Stat, error)

	// RemoveAll removes path and everything below it.
	RemoveAll(ctx context.Context, path string) error
}

// Entry is one child returned by Remote.List.
type Entry struct {
	// Name is the base name of the child (no parent path).
	Name string

	// IsCollection is true for sub-collections and false for data objects.
	IsCollection bool
}

// Stat describes a data object.
type Stat struct {
	// Size is the object size in bytes.
	Size int64

	// ModTime is the last modification time in UTC. Its resolution depends
	// on the backend (the icommands listing reports whole minutes).
	ModTime time.Time
}
