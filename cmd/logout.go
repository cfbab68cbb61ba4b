package cmd

import (
	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the saved session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := f.Manager(cmd.Context())
		if err != nil {
			return err
		}
		if err := m.Logout(cmd.Context()); err != nil {
			return logError(err, "", "could not clear saved credentials")
		}
		logSuccess("signed out")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}
