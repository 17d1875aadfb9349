package cmd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Inspect or cancel scheduler tasks",
	}
	cmd.AddCommand(newTaskGetCmd())
	cmd.AddCommand(newTaskCancelCmd())
	return cmd
}

func newTaskGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <task-uid>",
		Short: "Print one task's current record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid task uid %q: %w", args[0], err)
			}

			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			task, err := eng.GetTask(uint32(uid))
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(task)
		},
	}
}

func newTaskCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task-uid>",
		Short: "Request cancellation of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid task uid %q: %w", args[0], err)
			}

			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			if err := eng.CancelTask(uint32(uid)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancellation requested for task %d\n", uid)
			return nil
		},
	}
}
