package broker

import (
	"context"
	"fmt"
	"path"
	"sort"

	"github.com/marmos91/dtool-irods/pkg/dataset"
	"github.com/marmos91/dtool-irods/pkg/layout"
	"github.com/marmos91/dtool-irods/pkg/remote"
)

// ListDatasetURIs returns the URIs of the datasets directly below prefix,
// sorted. A child collection is a dataset when it holds admin metadata.
func ListDatasetURIs(ctx context.Context, r remote.Remote, prefix string) ([]string, error) {
	base := path.Clean("/" + prefix)

	entries, err := r.List(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("list datasets in %s: %w", base, err)
	}

	var uris []string
	for _, e := range entries {
		if !e.IsCollection {
			continue
		}
		root := path.Join(base, e.Name)
		ok, err := r.Exists(ctx, layout.New(root).AdminMetadataPath())
		if err != nil {
			return nil, fmt.Errorf("list datasets in %s: %w", base, err)
		}
		if ok {
			uris = append(uris, dataset.Scheme+":"+root)
		}
	}
	sort.Strings(uris)
	return uris, nil
}
