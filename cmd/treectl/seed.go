package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"nodetree/internal/seed"
)

func newSeedCmd(a *app) *cobra.Command {
	var under string

	cmd := &cobra.Command{
		Use:   "seed <fixture.yaml>",
		Short: "Build nodes from a YAML fixture",
		Long:  "Create the nodes of a nested YAML fixture breadth first. Without --under the fixture's top node becomes the root, so the tree must be empty.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fixture, err := seed.LoadFile(args[0])
			if err != nil {
				return err
			}

			var parentID *string
			if under != "" {
				parentID = &under
			}

			seeder := seed.NewSeeder(a.tree, a.logger)
			result, err := seeder.Apply(cmd.Context(), fixture, parentID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput {
				return writeJSON(out, result)
			}

			fmt.Fprintf(out, "created %d nodes, top node %s\n", result.Count, result.RootID)
			names := make([]string, 0, len(result.IDs))
			for name := range result.IDs {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "  %s\t%s\n", name, result.IDs[name])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&under, "under", "", "attach the fixture below this node instead of creating the root")
	return cmd
}
