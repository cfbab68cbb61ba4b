package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// tokenCmd represents the token command
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Interact with the session tokens",
}

var tokenPrintCmd = &cobra.Command{
	Use:   "print",
	Short: "Print a valid access token",
	Long: `Prints the access token of the saved session, refreshing it first if
required. Useful for scripting:

  curl -H "Authorization: Bearer $(gitdm token print)" ...`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireSession(cmd.Context(), cmd.CommandPath()); err != nil {
			return err
		}
		m, err := f.Manager(cmd.Context())
		if err != nil {
			return err
		}
		tok, err := m.TokenSource().Token()
		if err != nil {
			return logError(err, "", "could not obtain an access token")
		}
		fmt.Println(tok.AccessToken)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenPrintCmd)
}
