package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newDocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "Add or delete documents",
	}
	cmd.AddCommand(newDocumentsAddCmd())
	cmd.AddCommand(newDocumentsDeleteCmd())
	return cmd
}

func newDocumentsAddCmd() *cobra.Command {
	var regenerateEmbedders []string

	cmd := &cobra.Command{
		Use:   "add <index-uid> <documents.json>",
		Short: "Enqueue a document addition/update task from a JSON array file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, path := args[0], args[1]

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			var docs []map[string]any
			if err := json.Unmarshal(data, &docs); err != nil {
				return fmt.Errorf("parse %s as a JSON array of documents: %w", path, err)
			}

			regenerate := map[string]bool{}
			for _, name := range regenerateEmbedders {
				regenerate[name] = true
			}

			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			task, err := eng.AddDocuments(uid, docs, regenerate)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued task %d (%d documents)\n", task.UID, len(docs))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&regenerateEmbedders, "regenerate", nil, "Embedder names to (re)generate vectors for (repeatable)")
	return cmd
}

func newDocumentsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <index-uid> <external-id>...",
		Short: "Enqueue a document deletion task",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, ids := args[0], args[1:]

			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			task, err := eng.DeleteDocuments(uid, ids)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued task %d (%d documents)\n", task.UID, len(ids))
			return nil
		},
	}
}
