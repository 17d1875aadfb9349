package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/ftscore/internal/config"
)

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "View or update index settings",
	}
	cmd.AddCommand(newSettingsUpdateCmd())
	return cmd
}

func newSettingsUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update <index-uid> <settings.json|settings.yaml>",
		Short: "Replace an index's settings from a file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			uid, path := args[0], args[1]

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			settings := config.DefaultSettings()
			switch strings.ToLower(filepath.Ext(path)) {
			case ".yaml", ".yml":
				err = yaml.Unmarshal(data, &settings)
			default:
				err = json.Unmarshal(data, &settings)
			}
			if err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}

			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.Close()

			task, err := eng.UpdateSettings(uid, settings)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated settings for %q, logged as task %d\n", uid, task.UID)
			return nil
		},
	}
}
