package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Create index snapshots",
	}
	cmd.AddCommand(newSnapshotCreateCmd())
	return cmd
}

func newSnapshotCreateCmd() *cobra.Command {
	var dest string
	cmd := &cobra.Command{
		Use:   "create <index-uid>",
		Short: "Enqueue a hot-copy snapshot of an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid := args[0]
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			task, err := eng.CreateSnapshot(uid, dest)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued task %d\n", task.UID)
			return nil
		},
	}
	cmd.Flags().StringVar(&dest, "dest", "", "Destination directory for the snapshot (required)")
	cmd.MarkFlagRequired("dest")
	return cmd
}
