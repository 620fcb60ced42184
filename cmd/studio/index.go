package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newIndexCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Maintain the embedding pools",
	}
	cmd.AddCommand(newTeachCmd(opts), newStoreMemoryCmd(opts), newSearchCmd(opts))
	return cmd
}

func newTeachCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "teach",
		Short: "Rebuild the dialog vector pool from every stored dialog",
		Args:  cobra.NoArgs,
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			res, err := a.indexer.TeachDialogs(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d, indexed %d, skipped %d\n", res.Cleared, res.Indexed, res.Skipped)
			return nil
		}),
	}
}

func newStoreMemoryCmd(opts *rootOptions) *cobra.Command {
	var sceneID, agentID int
	cmd := &cobra.Command{
		Use:   "store [content]",
		Short: "Embed text into the memory pool",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			id, err := a.indexer.StoreMemory(cmd.Context(), strings.Join(args, " "),
				optionalID(cmd, "scene", sceneID), optionalID(cmd, "agent", agentID))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored memory %d\n", id)
			return nil
		}),
	}
	cmd.Flags().IntVar(&sceneID, "scene", 0, "Attach the memory to a scene")
	cmd.Flags().IntVar(&agentID, "agent", 0, "Attach the memory to an agent id")
	return cmd
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "search [text]",
		Short: "Show the nearest rows of both pools",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(opts, func(cmd *cobra.Command, args []string, a *app) error {
			res, err := a.indexer.Search(cmd.Context(), strings.Join(args, " "), k)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}),
	}
	cmd.Flags().IntVar(&k, "k", 5, "Rows per pool")
	return cmd
}

func optionalID(cmd *cobra.Command, flag string, v int) *int {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &v
}
