package cmd

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gitdm/gitdm/internal/buildinfo"
	"github.com/gitdm/gitdm/pkg/client"
)

var infoRemoteFlag bool

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show information about the gitdm installation",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !infoRemoteFlag {
			return infoLocally(cmd, args)
		}
		return infoRemote(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)

	infoCmd.Flags().BoolVar(&infoRemoteFlag, "remote", false, "Query the build info of the server (dev server only)")
}

func infoRemote(cmd *cobra.Command, _ []string) error {
	s := f.Settings()
	cli, err := client.New(s.Addr, client.WithTimeout(s.HTTPTimeout))
	if err != nil {
		return err
	}
	log.Info().Msg("Fetching build info from server...")
	info, correlation, err := cli.Info(cmd.Context())
	if err != nil {
		return logError(err, correlation, "failed to get info from server")
	}
	printInfo(info)
	return nil
}

func infoLocally(_ *cobra.Command, _ []string) error {
	log.Info().Msg("Showing local build info...")
	info := buildinfo.GetBuildInfo()
	printInfo(&info)
	return nil
}

func printInfo(info *buildinfo.Info) {
	fmt.Println(bold("\n── gitdm Build Information ──"))
	fmt.Printf("  %s:    %s\n", faint("Version"), info.Version)
	fmt.Printf("  %s:     %s\n", faint("Commit"), info.CommitHash)
	if info.GoVersion != "" {
		fmt.Printf("  %s:         %s\n", faint("Go"), info.GoVersion)
	}
}
