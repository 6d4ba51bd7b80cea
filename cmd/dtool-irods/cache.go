package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local item cache",
	}

	clearCmd := a.remoteCommand(&cobra.Command{
		Use:   "clear <uri>",
		Short: "Remove the cached items of a dataset",
		Args:  cobra.ExactArgs(1),
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
			if admin.UUID() == "" {
				return fmt.Errorf("%s: admin metadata has no uuid", b.URI())
			}
			if err := a.cache.Clear(admin.UUID()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared cached items of %s\n", b.URI())
			return nil
		},
	})

	cmd.AddCommand(clearCmd)
	return cmd
}
