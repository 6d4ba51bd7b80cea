package broker

import (
	"context"
	"fmt"
	"sort"

	"github.com/marmos91/dtool-irods/pkg/dataset"
	"github.com/marmos91/dtool-irods/pkg/layout"
)

// HasAdminMetadata reports whether the root holds a dataset. Only a failure
// to reach the store is an error.
func (b *Broker) HasAdminMetadata(ctx context.Context) (bool, error) {
	ok, err := b.remote.Exists(ctx, b.layout.AdminMetadataPath())
	if err != nil {
		return false, fmt.Errorf("check admin metadata: %w", err)
	}
	return ok, nil
}

// PutAdminMetadata replaces the admin metadata.
func (b *Broker) PutAdminMetadata(ctx context.Context, md dataset.AdminMetadata) error {
	if err := b.codec.PutObject(ctx, b.layout.AdminMetadataPath(), md); err != nil {
		return fmt.Errorf("put admin metadata: %w", err)
	}
	return nil
}

// GetAdminMetadata returns the admin metadata.
func (b *Broker) GetAdminMetadata(ctx context.Context) (dataset.AdminMetadata, error) {
	var md dataset.AdminMetadata
	if err := b.codec.GetObject(ctx, b.layout.AdminMetadataPath(), &md); err != nil {
		return nil, fmt.Errorf("get admin metadata: %w", err)
	}
	return md, nil
}

// PutReadme replaces README.yml with content. The content is stored as is.
func (b *Broker) PutReadme(ctx context.Context, content string) error {
	if err := b.codec.PutText(ctx, b.layout.ReadmePath(), content); err != nil {
		return fmt.Errorf("put readme: %w", err)
	}
	return nil
}

// GetReadmeContent returns README.yml as stored.
func (b *Broker) GetReadmeContent(ctx context.Context) (string, error) {
	content, err := b.codec.GetText(ctx, b.layout.ReadmePath())
	if err != nil {
		return "", fmt.Errorf("get readme: %w", err)
	}
	return content, nil
}

// PutOverlay replaces the overlay called name.
func (b *Broker) PutOverlay(ctx context.Context, name string, overlay dataset.Overlay) error {
	if err := layout.CheckOverlayName(name); err != nil {
		return fmt.Errorf("put overlay: %w", err)
	}
	if err := b.codec.PutObject(ctx, b.layout.OverlayPath(name), overlay); err != nil {
		return fmt.Errorf("put overlay %s: %w", name, err)
	}
	return nil
}

// GetOverlay returns the overlay called name.
func (b *Broker) GetOverlay(ctx context.Context, name string) (dataset.Overlay, error) {
	if err := layout.CheckOverlayName(name); err != nil {
		return nil, fmt.Errorf("get overlay: %w", err)
	}
	var overlay dataset.Overlay
	if err := b.codec.GetObject(ctx, b.layout.OverlayPath(name), &overlay); err != nil {
		return nil, fmt.Errorf("get overlay %s: %w", name, err)
	}
	return overlay, nil
}

// ListOverlayNames returns the names of all overlays, sorted.
func (b *Broker) ListOverlayNames(ctx context.Context) ([]string, error) {
	entries, err := b.remote.List(ctx, b.layout.OverlaysDir())
	if err != nil {
		return nil, fmt.Errorf("list overlays: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsCollection {
			continue
		}
		if name, ok := layout.OverlayName(e.Name); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// PutManifest replaces the manifest.
func (b *Broker) PutManifest(ctx context.Context, manifest dataset.Manifest) error {
	if err := b.codec.PutObject(ctx, b.layout.ManifestPath(), manifest); err != nil {
		return fmt.Errorf("put manifest: %w", err)
	}
	return nil
}

// GetManifest returns the manifest.
func (b *Broker) GetManifest(ctx context.Context) (dataset.Manifest, error) {
	var manifest dataset.Manifest
	if err := b.codec.GetObject(ctx, b.layout.ManifestPath(), &manifest); err != nil {
		return dataset.Manifest{}, fmt.Errorf("get manifest: %w", err)
	}
	return manifest, nil
}
