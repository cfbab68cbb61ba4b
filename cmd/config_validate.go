package cmd

import (
	"github.com/spf13/cobra"

	"github.com/gitdm/gitdm/internal/api"
	"github.com/gitdm/gitdm/internal/config"
)

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a dev server configuration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(args[0])
		if err != nil {
			return logError(err, "", "configuration is invalid")
		}
		if _, err := api.NewDataset(cfg); err != nil {
			return logError(err, "", "configuration is invalid")
		}
		logSuccess("configuration is valid (%d users, %d resource types)", len(cfg.Users), len(cfg.Resources))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}
