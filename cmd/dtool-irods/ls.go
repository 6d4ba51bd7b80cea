package main

import (
	"fmt"

	"github.com/marmos91/dtool-irods/pkg/broker"
	"github.com/spf13/cobra"
)

func newLsCmd(a *app) *cobra.Command {
	return a.remoteCommand(&cobra.Command{
		Use:     "ls <prefix>",
		Aliases: []string{"list"},
		Short:   "List the datasets below an iRODS collection",
		Example: "dtool-irods ls /tempZone/home/rods",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uris, err := broker.ListDatasetURIs(cmd.Context(), a.remote, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, uri := range uris {
				fmt.Fprintln(out, uri)
			}
			return nil
		},
	})
}
