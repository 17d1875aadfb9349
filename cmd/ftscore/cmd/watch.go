package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/ftscore/internal/watch"
)

func newWatchCmd() *cobra.Command {
	var debounce time.Duration
	var regenerateEmbedders []string

	cmd := &cobra.Command{
		Use:   "watch <index-uid> <documents-dir>",
		Short: "Watch a directory of JSON document files and enqueue additions as they change",
		Long: `Watch re-reads a *.json file in documents-dir as a document array and
enqueues a document-addition task every time fsnotify reports it was
created or written, until interrupted with Ctrl+C.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, dir := args[0], args[1]

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w, err := watch.New(dir, debounce)
			if err != nil {
				return fmt.Errorf("watch %s: %w", dir, err)
			}
			defer w.Close()

			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			regenerate := map[string]bool{}
			for _, name := range regenerateEmbedders {
				regenerate[name] = true
			}

			fmt.Fprintf(cmd.OutOrStdout(), "watching %s for index %q (ctrl-c to stop)\n", dir, uid)

			for {
				select {
				case <-ctx.Done():
					return nil

				case err, ok := <-w.Errors():
					if !ok {
						return nil
					}
					slog.Warn("watch error", slog.String("error", err.Error()))

				case ev, ok := <-w.Events():
					if !ok {
						return nil
					}
					data, err := os.ReadFile(ev.Path)
					if err != nil {
						slog.Warn("read changed file", slog.String("path", ev.Path), slog.String("error", err.Error()))
						continue
					}
					var docs []map[string]any
					if err := json.Unmarshal(data, &docs); err != nil {
						slog.Warn("parse changed file as document array", slog.String("path", ev.Path), slog.String("error", err.Error()))
						continue
					}
					task, err := eng.AddDocuments(uid, docs, regenerate)
					if err != nil {
						slog.Warn("enqueue document addition", slog.String("path", ev.Path), slog.String("error", err.Error()))
						continue
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s changed: enqueued task %d (%d documents)\n", ev.Path, task.UID, len(docs))
				}
			}
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 200*time.Millisecond, "Debounce window for coalescing rapid file-write events")
	cmd.Flags().StringSliceVar(&regenerateEmbedders, "regenerate", nil, "Embedder names to (re)generate vectors for (repeatable)")
	return cmd
}
