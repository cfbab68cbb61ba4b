package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gitdm/gitdm/internal/session"
)

var fingerprintRaw bool

var fingerprintCmd = &cobra.Command{
	Use:     "fingerprint [token]",
	Aliases: []string{"fp"},
	Short:   `Calculate the fingerprint of a token`,
	Long: `Calculates the short fingerprint gitdm logs in place of a token.
Without an argument the fingerprint of the saved access token is shown.`,
	Example: `  # Fingerprint of a token
  gitdm token fingerprint eyJhbGciOi...

  # Fingerprint of a token from stdin
  echo "eyJ..." | gitdm token fingerprint -`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var token string

		switch {
		case len(args) == 0:
			store, err := f.Store(cmd.Context())
			if err != nil {
				return err
			}
			rec, err := store.Get(cmd.Context())
			if err != nil {
				return logError(err, "", "no saved session")
			}
			token = rec.AccessToken
		case args[0] == "-":
			log.Debug().Msg("Reading token from stdin")

			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("failed to read token from stdin: %w", err)
			}
			token = strings.TrimSpace(string(data))
		default:
			token = args[0]
		}

		if token == "" {
			return fmt.Errorf("token cannot be empty")
		}

		fp := session.Fingerprint(token)
		if fingerprintRaw {
			fmt.Println(fp)
		} else {
			fmt.Println("Fingerprint:", fp)
		}
		return nil
	},
}

func init() {
	tokenCmd.AddCommand(fingerprintCmd)

	fingerprintCmd.Flags().BoolVarP(&fingerprintRaw, "raw", "r", false,
		"Output only the fingerprint value without additional text")
}
