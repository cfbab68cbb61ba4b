package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/gitdm/gitdm/internal/session"
)

var (
	loginEmail    string
	loginPassword string
)

const passwordEnv = "GITDM_PASSWORD"

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with a gitdm server",
	Long: `Exchanges an email and password for an access and refresh token pair.
The tokens are saved in the configured credential backend and refreshed
automatically by later commands.

The password is read from --password, the GITDM_PASSWORD environment variable
or an interactive prompt, in that order.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if loginEmail == "" {
			return fmt.Errorf("email cannot be empty")
		}
		password, err := readPassword(cmd.InOrStdin())
		if err != nil {
			return err
		}

		m, err := f.Manager(cmd.Context())
		if err != nil {
			return err
		}

		server := f.Settings().Addr
		host := server
		if u, err := url.Parse(server); err == nil {
			host = u.Host
		}
		log.Info().Msgf("Signing in to %q...", host)

		if err := m.Login(cmd.Context(), loginEmail, password); err != nil {
			if errors.Is(err, session.ErrInvalidCredentials) {
				return logError(err, "", "the server rejected the email or password")
			}
			return logError(err, "", "login failed")
		}

		logSuccess("signed in as %s on %s", bold(loginEmail), bold(host))
		return nil
	},
}

func readPassword(in io.Reader) (string, error) {
	if loginPassword != "" {
		return loginPassword, nil
	}
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}

	if file, ok := in.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		fmt.Fprint(os.Stderr, "Password: ")
		pw, err := term.ReadPassword(int(file.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return string(pw), nil
	}

	// piped input: first line
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", fmt.Errorf("password cannot be empty (use --password or %s)", passwordEnv)
	}
	return pw, nil
}

func init() {
	rootCmd.AddCommand(loginCmd)

	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "Account email")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Account password (prefer "+passwordEnv+" or the prompt)")

	_ = loginCmd.MarkFlagRequired("email")
}
