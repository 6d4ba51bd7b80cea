package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newPropsCmd(a *app) *cobra.Command {
	return a.remoteCommand(&cobra.Command{
		Use:     "props <uri> <identifier>",
		Short:   "Print the properties of one item as JSON",
		Example: "dtool-irods props irods:/tempZone/home/rods/1b2c3d4e-0000-4000-8000-000000000000 8797e2d671a03a247f46656451e6952a15ba8179",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := a.openDataset(ctx, args[0])
			if err != nil {
				return err
			}
			props, err := b.ItemProperties(ctx, args[1])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(props)
		},
	})
}
