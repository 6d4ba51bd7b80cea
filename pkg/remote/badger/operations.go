package badger

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/dtool-irods/pkg/remote"
)

func (s *Store) Exists(ctx context.Context, p string) (exists bool, err error) {
	defer func(start time.Time) { s.record("Exists", start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p = clean(p)

	s.mu.RLock()
	defer s.mu.RUnlock()

	err = s.db.View(func(txn *badger.Txn) error {
		_, err := getNode(txn, p)
		return err
	})
	if errors.Is(err, remote.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) MakeCollection(ctx context.Context, p string) (err error) {
	defer func(start time.Time) { s.record("MakeCollection", start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return err
	}
	p = clean(p)

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := getNode(txn, p); err == nil {
			return fmt.Errorf("%s: %w", p, remote.ErrAlreadyExists)
		}
		if err := requireCollection(txn, path.Dir(p)); err != nil {
			return fmt.Errorf("parent of %s: %w", p, err)
		}
		return setNode(txn, p, &nodeRecord{Collection: true, ModTime: time.Now().UnixNano()})
	})
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return nil
}

func (s *Store) Put(ctx context.Context, localPath, remotePath string) (err error) {
	defer func(start time.Time) { s.record("Put", start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return err
	}
	remotePath = clean(remotePath)

	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("put %s: %w", remotePath, err)
	}
	sum := md5.Sum(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := requireCollection(txn, path.Dir(remotePath)); err != nil {
			return err
		}

		rec := &nodeRecord{
			Size:    int64(len(data)),
			ModTime: time.Now().UnixNano(),
			MD5:     hex.EncodeToString(sum[:]),
			Meta:    map[string]string{},
		}
		existing, err := getNode(txn, remotePath)
		switch {
		case err == nil && existing.Collection:
			return fmt.Errorf("%s is a collection: %w", remotePath, remote.ErrAlreadyExists)
		case err == nil:
			// Overwriting keeps the object's metadata, as iRODS does.
			if existing.Meta != nil {
				rec.Meta = existing.Meta
			}
		case !errors.Is(err, remote.ErrNotFound):
			return err
		}

		if err := setNode(txn, remotePath, rec); err != nil {
			return err
		}
		return txn.Set(dataKey(remotePath), data)
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", remotePath, err)
	}

	s.metrics.RecordBytes("upload", int64(len(data)))
	return nil
}

func (s *Store) Get(ctx context.Context, remotePath, localPath string) (err error) {
	data, err := s.ReadAll(ctx, remotePath)
	if err != nil {
		return fmt.Errorf("get: %w", err)
	}
	if err := os.WriteFile(localPath, data, 0644); err != nil {
		return fmt.Errorf("get %s: %w", remotePath, err)
	}
	return nil
}

func (s *Store) ReadAll(ctx context.Context, remotePath string) (data []byte, err error) {
	defer func(start time.Time) { s.record("ReadAll", start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	remotePath = clean(remotePath)

	s.mu.RLock()
	defer s.mu.RUnlock()

	err = s.db.View(func(txn *badger.Txn) error {
		if _, err := requireObject(txn, remotePath); err != nil {
			return err
		}
		item, err := txn.Get(dataKey(remotePath))
		if err != nil {
			return fmt.Errorf("%s: %w: %w", remotePath, remote.ErrTransport, err)
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", remotePath, err)
	}

	s.metrics.RecordBytes("download", int64(len(data)))
	return data, nil
}

func (s *Store) List(ctx context.Context, p string) (entries []remote.Entry, err error) {
	defer func(start time.Time) { s.record("List", start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p = clean(p)

	s.mu.RLock()
	defer s.mu.RUnlock()

	err = s.db.View(func(txn *badger.Txn) error {
		if err := requireCollection(txn, p); err != nil {
			return err
		}

		prefix := childPrefix(nodePrefix, p)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			name := strings.TrimPrefix(string(item.Key()), string(prefix))
			if strings.Contains(name, "/") {
				continue
			}

			var rec nodeRecord
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode %s: %w", name, err)
			}
			entries = append(entries, remote.Entry{Name: name, IsCollection: rec.Collection})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", p, err)
	}
	return entries, nil
}

func (s *Store) SetMeta(ctx context.Context, p, key, value string) (err error) {
	defer func(start time.Time) { s.record("SetMeta", start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return err
	}
	p = clean(p)

	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.db.Update(func(txn *badger.Txn) error {
		rec, err := requireObject(txn, p)
		if err != nil {
			return err
		}
		if rec.Meta == nil {
			rec.Meta = map[string]string{}
		}
		rec.Meta[key] = value
		return setNode(txn, p, rec)
	})
	if err != nil {
		return fmt.Errorf("set metadata %q on %s: %w", key, p, err)
	}
	return nil
}

func (s *Store) GetMeta(ctx context.Context, p, key string) (value string, err error) {
	defer func(start time.Time) { s.record("GetMeta", start, err) }(time.Now())
	rec, err := s.object(ctx, p)
	if err != nil {
		return "", fmt.Errorf("get metadata %q: %w", key, err)
	}
	value, ok := rec.Meta[key]
	if !ok {
		return "", fmt.Errorf("get metadata %q on %s: %w", key, clean(p), remote.ErrNotFound)
	}
	return value, nil
}

func (s *Store) Checksum(ctx context.Context, p string) (digest string, err error) {
	defer func(start time.Time) { s.record("Checksum", start, err) }(time.Now())
	rec, err := s.object(ctx, p)
	if err != nil {
		return "", fmt.Errorf("checksum: %w", err)
	}
	return rec.MD5, nil
}

func (s *Store) Stat(ctx context.Context, p string) (st remote.Stat, err error) {
	defer func(start time.Time) { s.record("Stat", start, err) }(time.Now())
	rec, err := s.object(ctx, p)
	if err != nil {
		return remote.Stat{}, fmt.Errorf("stat: %w", err)
	}
	return remote.Stat{Size: rec.Size, ModTime: time.Unix(0, rec.ModTime).UTC()}, nil
}

func (s *Store) RemoveAll(ctx context.Context, p string) (err error) {
	defer func(start time.Time) { s.record("RemoveAll", start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return err
	}
	p = clean(p)
	if p == "/" {
		return fmt.Errorf("remove /: refusing to remove the root collection")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var keys [][]byte
	err = s.db.View(func(txn *badger.Txn) error {
		if _, err := getNode(txn, p); err != nil {
			return err
		}
		keys = append(keys, nodeKey(p), dataKey(p))

		for _, prefix := range [][]byte{childPrefix(nodePrefix, p), childPrefix(dataPrefix, p)} {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = prefix
			opts.PrefetchValues = false
			it := txn.NewIterator(opts)
			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove %s: %w", p, err)
	}

	wb := s.db.NewWriteBatch()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			wb.Cancel()
			return fmt.Errorf("remove %s: %w: %w", p, remote.ErrTransport, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("remove %s: %w: %w", p, remote.ErrTransport, err)
	}
	return nil
}

// object loads the data object record at p.
func (s *Store) object(ctx context.Context, p string) (*nodeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p = clean(p)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec *nodeRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = requireObject(txn, p)
		return err
	})
	return rec, err
}
