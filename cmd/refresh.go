package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/gitdm/gitdm/internal/session"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Exchange the saved refresh token for a new access token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := f.Manager(cmd.Context())
		if err != nil {
			return err
		}
		// Restore already refreshes a stored session.
		status, err := m.Restore(cmd.Context())
		switch {
		case err != nil && errors.Is(err, session.ErrRefreshFailed):
			return logError(err, "", "the server rejected the refresh token, run `gitdm login`")
		case err != nil:
			return logError(err, "", "refresh failed")
		case status != session.Authenticated:
			return logError(session.ErrNoRefreshToken, "", "not signed in, run `gitdm login`")
		}
		logSuccess("session refreshed (token %s)", bold(session.Fingerprint(m.AccessToken())))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
