package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gitdm/gitdm/internal/buildinfo"
	"github.com/gitdm/gitdm/internal/config"
	"github.com/gitdm/gitdm/internal/logging"
)

// global flags
var (
	userConfig string
	f          = NewFactory()
)

var rootCmd = &cobra.Command{
	Use:   "gitdm",
	Short: fmt.Sprintf("gitdm clinical records client (version: %s, commit: %s)", buildinfo.Version, buildinfo.CommitHash),
	Long: `gitdm is a command line client for the gitdm clinical records API.
	It keeps an authenticated session (access and refresh token) on disk and
	refreshes it transparently when the server rejects an expired token.`,
	Version: buildinfo.Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, configErr := initConfig()
		logging.Init(nil)
		if configErr != nil { // handle error after logging is initialized
			return configErr
		}
		if configPath != "" {
			log.Debug().Msgf("using config file: %s", configPath)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		f.Close()
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		var quiet BeQuietError
		if !errors.As(err, &quiet) {
			log.Error().Err(err).Msg("execution failed")
		}
		f.Close()
		os.Exit(1)
	}
}

func init() {
	// setup pre-flag logger
	logging.InitDefault()
	config.SetDefaults(viper.GetViper())

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&userConfig, "user-config", "",
		"User configuration file for default values (default is $HOME/.gitdm.yaml)")

	pf.String("log-level", "info", "Log level (debug, info, warn, error)")
	pf.String("log-format", "console", "Log format (console, json)")
	pf.Bool("no-color", false, "Disable color output")
	bindFlags(pf, map[string]string{
		"log-level":  config.KeyLogLevel,
		"log-format": config.KeyLogFormat,
		"no-color":   config.KeyLogNoColor,
	})

	pf.String("server", config.DefaultAddr, "Base URL of the gitdm API")
	pf.String("credentials", config.BackendFile, "Credential backend (file, memory, redis)")
	pf.String("credentials-path", "", "Credential file (default is $HOME/.gitdm/credentials.json)")
	pf.String("redis-url", "", "Redis URL for the redis credential backend")
	pf.Duration("timeout", config.DefaultHTTPTimeout, "HTTP request timeout")
	bindFlags(pf, map[string]string{
		"server":           config.KeyAddr,
		"credentials":      config.KeyCredentialBackend,
		"credentials-path": config.KeyCredentialPath,
		"redis-url":        config.KeyCredentialRedis,
		"timeout":          config.KeyHTTPTimeout,
	})

	viper.SetEnvPrefix("GITDM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(
		".", "_",
		"-", "_",
	))

	viper.AutomaticEnv()

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}

// bindFlags binds each named flag to its viper key.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		_ = viper.BindPFlag(key, flags.Lookup(name))
	}
}

func initConfig() (string, error) {
	// reads in config file and ENV variables if set.
	if userConfig != "" {
		viper.SetConfigFile(userConfig)
	} else {
		// search order: current dir, $HOME, XDG config
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}

		cfgDir, err := os.UserConfigDir()
		if err == nil {
			viper.AddConfigPath(cfgDir + "/gitdm")
		}

		viper.SetConfigType("yaml")
		viper.SetConfigName(".gitdm")
	}

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		var notFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &notFoundError) {
			return "", err
		}
	} else {
		return viper.ConfigFileUsed(), nil
	}

	return "", nil
}
