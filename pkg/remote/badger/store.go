// Package badger implements remote.Remote on an embedded BadgerDB.
//
// It stands in for an iRODS zone when none is reachable: datasets can be
// created and read offline, and tests run the broker without external
// processes. Collections and data objects live in one keyspace:
//
//	n:<path>  node record (JSON): collection flag, size, mtime, md5, metadata
//	d:<path>  object payload
//
// The root collection "/" always exists.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/dtool-irods/internal/logger"
	"github.com/marmos91/dtool-irods/pkg/metrics"
	"github.com/marmos91/dtool-irods/pkg/remote"
)

const (
	nodePrefix = "n:"
	dataPrefix = "d:"
)

// Config configures a Store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps everything in memory; nothing survives Close.
	InMemory bool

	// Metrics records every operation. Nil disables recording.
	Metrics metrics.RemoteMetrics
}

// Store is a remote.Remote backed by BadgerDB.
//
// Thread Safety: Safe for concurrent use. Mutations of the tree take the
// write lock so parent checks and writes are atomic with respect to each
// other.
type Store struct {
	mu      sync.RWMutex
	db      *badger.DB
	metrics metrics.RemoteMetrics
}

var _ remote.Remote = (*Store)(nil)

// nodeRecord is the persisted form of a collection or data object.
type nodeRecord struct {
	Collection bool              `json:"collection"`
	Size       int64             `json:"size"`
	ModTime    int64             `json:"mtime"`
	MD5        string            `json:"md5,omitempty"`
	Meta       map[string]string `json:"meta,omitempty"`
}

// New opens (or creates) a Store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, fmt.Errorf("badger remote: path is required unless in_memory is set")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithLoggingLevel(badger.WARNING) // Reduce log noise
	opts = opts.WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.Path, err)
	}

	m := cfg.Metrics
	if m == nil {
		m = metrics.NewNoopRemoteMetrics()
	}

	logger.Debug("badger remote: opened (path=%q in_memory=%v)", cfg.Path, cfg.InMemory)
	return &Store{db: db, metrics: m}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close BadgerDB: %w", err)
	}
	return nil
}

func (s *Store) record(op string, start time.Time, err error) {
	s.metrics.RecordOperation(op, time.Since(start), err)
}

func nodeKey(p string) []byte { return []byte(nodePrefix + p) }
func dataKey(p string) []byte { return []byte(dataPrefix + p) }

// childPrefix is the key prefix shared by everything below p.
func childPrefix(kind, p string) []byte {
	if p == "/" {
		return []byte(kind + "/")
	}
	return []byte(kind + p + "/")
}

func clean(p string) string {
	return path.Clean("/" + p)
}

// getNode loads the record at p. The root is synthesised.
func getNode(txn *badger.Txn, p string) (*nodeRecord, error) {
	if p == "/" {
		return &nodeRecord{Collection: true}, nil
	}

	item, err := txn.Get(nodeKey(p))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%s: %w", p, remote.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", p, remote.ErrTransport, err)
	}

	var rec nodeRecord
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: decode node: %w", p, err)
	}
	return &rec, nil
}

func setNode(txn *badger.Txn, p string, rec *nodeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%s: encode node: %w", p, err)
	}
	return txn.Set(nodeKey(p), data)
}

// requireCollection checks that p exists and is a collection.
func requireCollection(txn *badger.Txn, p string) error {
	rec, err := getNode(txn, p)
	if err != nil {
		return err
	}
	if !rec.Collection {
		return fmt.Errorf("%s is not a collection: %w", p, remote.ErrNotFound)
	}
	return nil
}

// requireObject loads p and checks that it is a data object.
func requireObject(txn *badger.Txn, p string) (*nodeRecord, error) {
	rec, err := getNode(txn, p)
	if err != nil {
		return nil, err
	}
	if rec.Collection {
		return nil, fmt.Errorf("%s is a collection: %w", p, remote.ErrNotFound)
	}
	return rec, nil
}
