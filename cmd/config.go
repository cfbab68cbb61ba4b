package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gitdm/gitdm/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Interact with the configuration",
	Long:  `Utilities for viewing the client settings and validating dev server files`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the resolved client settings",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := f.Settings()

		t := newTable()
		t.AppendHeader([]any{"Key", "Value", "Source"})
		for _, kv := range []struct {
			key   string
			value any
		}{
			{config.KeyAddr, s.Addr},
			{config.KeyCredentialBackend, s.CredentialBackend},
			{config.KeyCredentialPath, s.CredentialPath},
			{config.KeyCredentialRedis, s.RedisURL},
			{config.KeyHTTPTimeout, s.HTTPTimeout},
			{config.KeyRefreshTimeout, s.RefreshTimeout},
			{config.KeyLogLevel, viper.GetString(config.KeyLogLevel)},
			{config.KeyLogFormat, viper.GetString(config.KeyLogFormat)},
		} {
			source := faint("default")
			if viper.InConfig(kv.key) {
				source = "config file"
			}
			t.AppendRow([]any{kv.key, kv.value, source})
		}
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}
