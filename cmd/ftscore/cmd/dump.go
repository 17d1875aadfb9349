package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Create full engine dumps",
	}
	cmd.AddCommand(newDumpCreateCmd())
	return cmd
}

func newDumpCreateCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Enqueue a dump archiving every index and the task log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				cfg, err := loadEngineConfig()
				if err != nil {
					return err
				}
				dir = cfg.Scheduler.DumpDir
				if dir == "" {
					dir = cfg.DataRoot + "/dumps"
				}
			}

			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			task, err := eng.CreateDump(dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued task %d\n", task.UID)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Directory to write the dump archive into (default: scheduler.dump_dir, else <data-root>/dumps)")
	return cmd
}
