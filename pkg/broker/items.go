package broker

import (
	"context"
	"fmt"
	"iter"

	"github.com/marmos91/dtool-irods/internal/logger"
	"github.com/marmos91/dtool-irods/pkg/dataset"
)

// PutItem uploads the local file at localPath as the item with the given
// handle, replacing any previous upload, and tags the data object with the
// handle. It returns the item identifier.
//
// The data container is flat: nested handles map to one object named by
// the identifier. A failure after the upload leaves the untagged object in
// place.
func (b *Broker) PutItem(ctx context.Context, localPath, handle string) (string, error) {
	if handle == "" {
		return "", fmt.Errorf("put item: handle is required")
	}

	identifier := dataset.GenerateIdentifier(handle)
	dest := b.layout.ItemPath(identifier)

	if err := b.remote.Put(ctx, localPath, dest); err != nil {
		return "", fmt.Errorf("put item %s: %w", handle, err)
	}
	if err := b.remote.SetMeta(ctx, dest, HandleKey, handle); err != nil {
		return "", fmt.Errorf("tag item %s: %w", handle, err)
	}

	logger.Debug("broker: put item %s as %s", handle, identifier)
	return identifier, nil
}

// IterItemHandles yields the identifier of every item in the data
// container.
//
// The sequence is lazy: nothing is listed until it is ranged over, and each
// range lists the container again. Order is defined by the remote store. A
// listing failure is yielded once as an error and ends the sequence.
func (b *Broker) IterItemHandles(ctx context.Context) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		entries, err := b.remote.List(ctx, b.layout.DataDir())
		if err != nil {
			yield("", fmt.Errorf("list items: %w", err))
			return
		}
		for _, e := range entries {
			if e.IsCollection {
				continue
			}
			if !yield(e.Name, nil) {
				return
			}
		}
	}
}

// ItemProperties returns the properties of the item with identifier,
// combining the object's size and modification time, its checksum and its
// handle tag. A missing item fails with remote.ErrNotFound.
func (b *Broker) ItemProperties(ctx context.Context, identifier string) (dataset.ItemProperties, error) {
	p := b.layout.ItemPath(identifier)

	st, err := b.remote.Stat(ctx, p)
	if err != nil {
		return dataset.ItemProperties{}, fmt.Errorf("item properties %s: %w", identifier, err)
	}
	digest, err := b.remote.Checksum(ctx, p)
	if err != nil {
		return dataset.ItemProperties{}, fmt.Errorf("item properties %s: %w", identifier, err)
	}
	handle, err := b.remote.GetMeta(ctx, p, HandleKey)
	if err != nil {
		return dataset.ItemProperties{}, fmt.Errorf("item properties %s: %w", identifier, err)
	}

	return dataset.ItemProperties{
		RelPath:      handle,
		SizeInBytes:  st.Size,
		Hash:         digest,
		UTCTimestamp: st.ModTime.UTC().Unix(),
	}, nil
}

// GetItemAbspath returns a local path holding the content of the item with
// identifier, downloading it into the item cache on first use.
//
// The cached copy is never checked against the remote object. Callers must
// treat the returned file as read-only.
func (b *Broker) GetItemAbspath(ctx context.Context, identifier string) (string, error) {
	if b.cache == nil {
		return "", fmt.Errorf("item abspath %s: %w", identifier, ErrNoCache)
	}

	uuid, err := b.datasetUUID(ctx)
	if err != nil {
		return "", fmt.Errorf("item abspath %s: %w", identifier, err)
	}
	if cached, ok := b.cache.Lookup(uuid, identifier); ok {
		return cached, nil
	}

	p := b.layout.ItemPath(identifier)
	handle, err := b.remote.GetMeta(ctx, p, HandleKey)
	if err != nil {
		return "", fmt.Errorf("item abspath %s: %w", identifier, err)
	}

	local, err := b.cache.Fetch(ctx, uuid, identifier, handle, func(ctx context.Context, dest string) error {
		return b.remote.Get(ctx, p, dest)
	})
	if err != nil {
		return "", fmt.Errorf("item abspath %s: %w", identifier, err)
	}
	return local, nil
}

// datasetUUID returns the uuid from the admin metadata, reading it once.
func (b *Broker) datasetUUID(ctx context.Context) (string, error) {
	b.uuidMu.Lock()
	defer b.uuidMu.Unlock()

	if b.uuid != "" {
		return b.uuid, nil
	}

	md, err := b.GetAdminMetadata(ctx)
	if err != nil {
		return "", err
	}
	uuid := md.UUID()
	if uuid == "" {
		return "", fmt.Errorf("admin metadata of %s has no uuid", b.layout.Root)
	}
	b.uuid = uuid
	return uuid, nil
}

// AddItemMetadata does nothing: object metadata is reserved for the handle
// tag, so pre-freeze item metadata is not stored. Capabilities reports this
// with ItemMetadata set to false.
func (b *Broker) AddItemMetadata(ctx context.Context, handle, key string, value any) error {
	logger.Debug("broker: item metadata %s[%s] not stored", handle, key)
	return nil
}

// GetItemMetadata always returns an empty map. See AddItemMetadata.
func (b *Broker) GetItemMetadata(ctx context.Context, handle string) (map[string]any, error) {
	return map[string]any{}, nil
}
