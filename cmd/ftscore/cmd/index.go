package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage indexes",
	}
	cmd.AddCommand(newIndexCreateCmd())
	cmd.AddCommand(newIndexDeleteCmd())
	cmd.AddCommand(newIndexListCmd())
	cmd.AddCommand(newIndexSwapCmd())
	return cmd
}

func newIndexCreateCmd() *cobra.Command {
	var primaryKey string
	var async bool

	cmd := &cobra.Command{
		Use:   "create <index-uid>",
		Short: "Create an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid := args[0]
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			if async {
				task, err := eng.CreateIndexAsync(uid, primaryKey)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued task %d\n", task.UID)
				return nil
			}
			if err := eng.CreateIndex(uid, primaryKey); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created index %q\n", uid)
			return nil
		},
	}
	cmd.Flags().StringVar(&primaryKey, "primary-key", "id", "Primary key field name")
	cmd.Flags().BoolVar(&async, "async", false, "Enqueue creation as a task instead of creating immediately")
	return cmd
}

func newIndexDeleteCmd() *cobra.Command {
	var async bool
	cmd := &cobra.Command{
		Use:   "delete <index-uid>",
		Short: "Delete an index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid := args[0]
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			if async {
				task, err := eng.DeleteIndexAsync(uid)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued task %d\n", task.UID)
				return nil
			}
			if err := eng.DeleteIndex(uid); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted index %q\n", uid)
			return nil
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "Enqueue deletion as a task instead of deleting immediately")
	return cmd
}

func newIndexListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every open index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			uids, err := eng.Indexes()
			if err != nil {
				return err
			}
			for _, uid := range uids {
				fmt.Fprintln(cmd.OutOrStdout(), uid)
			}
			return nil
		},
	}
}

func newIndexSwapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "swap <index-uid-a> <index-uid-b>",
		Short: "Atomically swap two indexes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := eng.SwapIndexes(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "swapped %q and %q\n", args[0], args[1])
			return nil
		},
	}
}
