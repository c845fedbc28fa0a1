package main

import (
	"github.com/spf13/cobra"
)

func newAddCmd(a *app) *cobra.Command {
	var parent string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a node (the root when --parent is omitted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var parentID *string
			if parent != "" {
				parentID = &parent
			}
			info, err := a.tree.AddNode(cmd.Context(), parentID)
			if err != nil {
				return err
			}
			return a.printInfo(cmd.OutOrStdout(), info)
		},
	}
	cmd.Flags().StringVarP(&parent, "parent", "p", "", "parent node ID")
	return cmd
}

func newMoveCmd(a *app) *cobra.Command {
	var parent string

	cmd := &cobra.Command{
		Use:   "move <node-id>",
		Short: "Move a node and its subtree under a new parent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := a.tree.SetParent(cmd.Context(), args[0], parent)
			if err != nil {
				return err
			}
			return a.printInfo(cmd.OutOrStdout(), info)
		},
	}
	cmd.Flags().StringVarP(&parent, "parent", "p", "", "new parent node ID (required)")
	_ = cmd.MarkFlagRequired("parent")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <node-id>",
		Short: "Show a node's parent, depth and root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := a.tree.GetNode(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printInfo(cmd.OutOrStdout(), info)
		},
	}
}

func newRootNodeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "root",
		Short: "Show the root node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := a.tree.GetRoot(cmd.Context())
			if err != nil {
				return err
			}
			return a.printInfo(cmd.OutOrStdout(), info)
		},
	}
}

func newDescendantsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "descendants <node-id>",
		Short: "List every node below a node, breadth first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, err := a.tree.GetDescendants(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printInfos(cmd.OutOrStdout(), infos)
		},
	}
}
