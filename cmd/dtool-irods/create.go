package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/marmos91/dtool-irods/internal/logger"
	"github.com/marmos91/dtool-irods/pkg/broker"
	"github.com/marmos91/dtool-irods/pkg/dataset"
	"github.com/spf13/cobra"
)

// dtoolcoreVersion is written into admin metadata and manifests so that
// dtool readers accept the records.
const dtoolcoreVersion = "3.18.2"

type createOptions struct {
	readme   string
	noFreeze bool
}

func newCreateCmd(a *app) *cobra.Command {
	opts := &createOptions{}

	cmd := a.remoteCommand(&cobra.Command{
		Use:     "create <prefix> <name> <directory>",
		Short:   "Create a dataset in iRODS from the files of a local directory",
		Example: "dtool-irods create /tempZone/home/rods my-dataset ./data --readme README.yml",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			uri, err := a.create(cmd.Context(), args[0], args[1], args[2], opts)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), uri)
			return nil
		},
	})
	cmd.Flags().StringVar(&opts.readme, "readme", "", "local file holding the dataset README")
	cmd.Flags().BoolVar(&opts.noFreeze, "no-freeze", false, "leave the dataset as a proto dataset")
	return cmd
}

// create runs the dataset lifecycle: structure, admin metadata, README,
// item upload and, unless disabled, freezing.
func (a *app) create(ctx context.Context, prefix, name, dir string, opts *createOptions) (string, error) {
	readme := ""
	if opts.readme != "" {
		data, err := os.ReadFile(opts.readme)
		if err != nil {
			return "", fmt.Errorf("read readme: %w", err)
		}
		readme = string(data)
	}

	id := uuid.New().String()
	b, err := a.broker(broker.GenerateURI(name, id, prefix))
	if err != nil {
		return "", err
	}

	// ===== Step 1: Structure and admin metadata =====
	if err := b.CreateStructure(ctx); err != nil {
		return "", err
	}

	admin := dataset.AdminMetadata{
		"uuid":              id,
		"name":              name,
		"type":              "protodataset",
		"dtoolcore_version": dtoolcoreVersion,
		"creator_username":  currentUsername(),
		"created_at":        epochSeconds(time.Now()),
	}
	if err := b.PutAdminMetadata(ctx, admin); err != nil {
		return "", err
	}
	if err := b.PutReadme(ctx, readme); err != nil {
		return "", err
	}

	// ===== Step 2: Items =====
	var uploaded int
	var total uint64
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if _, err := b.PutItem(ctx, p, filepath.ToSlash(rel)); err != nil {
			return err
		}
		if info, err := d.Info(); err == nil {
			total += uint64(info.Size())
		}
		uploaded++
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("upload items: %w", err)
	}
	logger.Info("Uploaded %d items (%s) to %s", uploaded, humanize.Bytes(total), b.URI())

	if opts.noFreeze {
		return b.URI(), nil
	}

	// ===== Step 3: Freeze =====
	manifest := dataset.Manifest{
		DtoolcoreVersion: dtoolcoreVersion,
		HashFunction:     dataset.HashFunctionMD5,
		Items:            make(map[string]dataset.ItemProperties, uploaded),
	}
	for identifier, err := range b.IterItemHandles(ctx) {
		if err != nil {
			return "", err
		}
		props, err := b.ItemProperties(ctx, identifier)
		if err != nil {
			return "", err
		}
		manifest.Items[identifier] = props
	}
	if err := b.PutManifest(ctx, manifest); err != nil {
		return "", err
	}

	admin["type"] = "dataset"
	admin["frozen_at"] = epochSeconds(time.Now())
	if err := b.PutAdminMetadata(ctx, admin); err != nil {
		return "", err
	}
	if err := b.PostFreezeHook(ctx); err != nil {
		return "", err
	}

	logger.Info("Froze dataset %s with %d items", b.URI(), len(manifest.Items))
	return b.URI(), nil
}

func currentUsername() string {
	if u, err := user.Current(); err == nil {
		return u.Username
	}
	return os.Getenv("USER")
}

// epochSeconds matches the float timestamps dtool writes.
func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
