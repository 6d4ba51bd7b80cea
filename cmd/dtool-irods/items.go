package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newItemsCmd(a *app) *cobra.Command {
	return a.remoteCommand(&cobra.Command{
		Use:     "items <uri>",
		Short:   "List the items of a dataset with their properties",
		Example: "dtool-irods items irods:/tempZone/home/rods/1b2c3d4e-0000-4000-8000-000000000000",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			b, err := a.openDataset(ctx, args[0])
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "IDENTIFIER\tSIZE\tMODIFIED\tRELPATH")
			for identifier, err := range b.IterItemHandles(ctx) {
				if err != nil {
					return err
				}
				props, err := b.ItemProperties(ctx, identifier)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					identifier,
					humanize.Bytes(uint64(props.SizeInBytes)),
					humanize.Time(time.Unix(props.UTCTimestamp, 0)),
					props.RelPath,
				)
			}
			return tw.Flush()
		},
	})
}
