package cmd

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// auditCmd represents the audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show your recent token grants (dev server only)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, err := cmd.Flags().GetUint("limit")
		if err != nil {
			return err
		}

		cli, err := protectedClient(cmd.Context(), cmd.CommandPath())
		if err != nil {
			return err
		}

		log.Info().Msg("Fetching audit log...")
		entries, correlation, err := cli.ListAudits(cmd.Context(), limit)
		if err != nil {
			return logError(err, correlation, "failed to fetch audit log")
		}

		if outputJSON {
			return printJSON(entries)
		}
		log.Info().Msgf("Retrieved %d audit entries", len(entries))

		t := newTable()
		t.AppendHeader(table.Row{
			"Time", "Action", "Granted", "Rotated", "Token", "Error",
		})
		for _, e := range entries {
			status := greenCheck
			if !e.Granted {
				status = redCross
			}
			rotated := ""
			if e.Rotated {
				rotated = "yes"
			}
			t.AppendRow(table.Row{
				e.Time.Local().Format(time.RFC3339),
				e.Action,
				status,
				rotated,
				e.TokenFingerprint,
				truncate(e.Error, 40),
			})
		}
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().UintP("limit", "n", 25, "Number of audit entries to retrieve")
	bindOutputFlag(auditCmd.Flags())
}
