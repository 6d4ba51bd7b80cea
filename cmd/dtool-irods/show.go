package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/dtool-irods/pkg/remote"
	"github.com/spf13/cobra"
)

func newShowCmd(a *app) *cobra.Command {
	var showReadme bool

	cmd := a.remoteCommand(&cobra.Command{
		Use:     "show <uri>",
		Aliases: []string{"info"},
		Short:   "Show the admin metadata, overlays and manifest summary of a dataset",
		Example: "dtool-irods show irods:/tempZone/home/rods/1b2c3d4e-0000-4000-8000-000000000000",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := a.openDataset(ctx, args[0])
			if err != nil {
				return err
			}

			admin, err := b.GetAdminMetadata(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "uri:  %s\n", b.URI())

			keys := make([]string, 0, len(admin))
			for k := range admin {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(out, "%s: %v\n", k, admin[k])
			}

			overlays, err := b.ListOverlayNames(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "overlays: %s\n", strings.Join(overlays, ", "))

			// A dataset that is not yet frozen has no manifest.
			manifest, err := b.GetManifest(ctx)
			switch {
			case errors.Is(err, remote.ErrNotFound):
				fmt.Fprintln(out, "manifest: none")
			case err != nil:
				return err
			default:
				var total int64
				for _, item := range manifest.Items {
					total += item.SizeInBytes
				}
				fmt.Fprintf(out, "items: %d (%s)\n", len(manifest.Items), humanize.Bytes(uint64(total)))
			}

			if showReadme {
				readme, err := b.GetReadmeContent(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "\n%s", readme)
			}
			return nil
		},
	})
	cmd.Flags().BoolVarP(&showReadme, "readme", "r", false, "print the README content")
	return cmd
}
