package cmd

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/gitdm/gitdm/internal/session"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of the saved session",
	Long: `Restores the saved session (refreshing it if needed) and prints its state.
Exits non-zero when no valid session exists.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := f.Provider(cmd.Context())
		if err != nil {
			return err
		}
		m, err := f.Manager(cmd.Context())
		if err != nil {
			return err
		}
		s := f.Settings()

		fmt.Println(bold("\n── gitdm Session ──"))
		fmt.Printf("  %s:      %s\n", faint("Server"), s.Addr)
		fmt.Printf("  %s: %s\n", faint("Credentials"), s.CredentialBackend)

		if !p.IsAuthenticated() {
			fmt.Printf("  %s:      %s %s\n", faint("Status"), redCross, p.Status())
			return BeQuietError{}
		}
		fmt.Printf("  %s:      %s %s\n", faint("Status"), greenCheck, p.Status())

		token := m.AccessToken()
		fmt.Printf("  %s:       %s\n", faint("Token"), session.Fingerprint(token))
		if sub, exp, ok := accessClaims(token); ok {
			fmt.Printf("  %s:     %s\n", faint("Subject"), sub)
			fmt.Printf("  %s:     %s (%s)\n", faint("Expires"),
				exp.Local().Format(time.DateTime), faint(time.Until(exp).Round(time.Second).String()))
		}
		return nil
	},
}

// accessClaims reads subject and expiry of a JWT access token. The token
// is not verified; opaque tokens yield ok == false.
func accessClaims(token string) (sub string, exp time.Time, ok bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return "", time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return claims.Subject, time.Time{}, false
	}
	return claims.Subject, claims.ExpiresAt.Time, true
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
