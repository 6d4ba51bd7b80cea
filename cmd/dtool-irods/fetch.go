package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newFetchCmd(a *app) *cobra.Command {
	return a.remoteCommand(&cobra.Command{
		Use:     "fetch <uri> <identifier>",
		Aliases: []string{"abspath"},
		Short:   "Download an item into the local cache and print its path",
		Example: "dtool-irods fetch irods:/tempZone/home/rods/1b2c3d4e-0000-4000-8000-000000000000 8797e2d671a03a247f46656451e6952a15ba8179",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := a.openDataset(ctx, args[0])
			if err != nil {
				return err
			}
			p, err := b.GetItemAbspath(ctx, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), p)
			return nil
		},
	})
}
