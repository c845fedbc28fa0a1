package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify every tree invariant",
		Long:  "Walk the tree from the root and report parent/child mismatches, missing or unreachable nodes. Exits non-zero when problems are found.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := a.tree.Verify(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if a.jsonOutput {
				if err := writeJSON(out, report); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(out, "nodes:     %d\n", report.NodeCount)
				fmt.Fprintf(out, "reachable: %d\n", report.Reachable)
				fmt.Fprintf(out, "height:    %d\n", report.Height)
				if report.Root != "" {
					fmt.Fprintf(out, "root:      %s\n", report.Root)
				}
				for _, p := range report.Problems {
					fmt.Fprintf(out, "PROBLEM: %s\n", p)
				}
			}

			if !report.Healthy() {
				return fmt.Errorf("tree check found %d problem(s)", len(report.Problems))
			}
			return nil
		},
	}
}
