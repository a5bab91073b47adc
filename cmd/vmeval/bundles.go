package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBundlesCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "bundles",
		Short: "List available dependency bundles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := root.registry(root.logger())
			if err != nil {
				return err
			}
			for _, name := range reg.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
