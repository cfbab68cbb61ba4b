package cmd

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gitdm/gitdm/internal/api"
	"github.com/gitdm/gitdm/internal/audit"
	"github.com/gitdm/gitdm/internal/config"
	"github.com/gitdm/gitdm/internal/tasks"
)

const pruneInterval = time.Minute

var devserverConfigPath string

// devserverCmd represents the devserver command
var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Run a local gitdm API for development",
	Long: `Runs a development implementation of the gitdm API: the token endpoints
(/api/token/, /api/token/refresh/) and read-only clinical resources.

Without --config a demo account (demo@gitdm.local / demo) and a small
dataset are served.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("listen")

		cfg := &config.DevServer{}
		data := api.DefaultDataset()
		if devserverConfigPath != "" {
			var err error
			if cfg, err = config.Load(devserverConfigPath); err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if data, err = api.NewDataset(cfg); err != nil {
				return fmt.Errorf("loading dataset: %w", err)
			}
		}

		key := []byte(cfg.Tokens.SigningKey)
		if len(key) == 0 {
			log.Warn().Msg("No signing key configured, tokens will not survive a restart")
			key = make([]byte, 32)
			if _, err := rand.Read(key); err != nil {
				return fmt.Errorf("generating signing key: %w", err)
			}
		}
		authority, err := api.NewAuthority(api.AuthorityConfig{
			SigningKey: key,
			AccessTTL:  cfg.Tokens.AccessTTL,
			RefreshTTL: cfg.Tokens.RefreshTTL,
			Rotate:     cfg.Tokens.RotateRefresh(),
		})
		if err != nil {
			return err
		}

		auditor, err := newAuditor(cfg.Audit)
		if err != nil {
			return err
		}
		defer func() { _ = auditor.Close() }()

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		srv := api.NewServer(authority, data, api.WithRegistry(reg), api.WithAuditor(auditor))

		server := &http.Server{
			Addr:              addr,
			Handler:           srv.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		taskCtx, stopTasks := context.WithCancel(context.Background())
		defer stopTasks()
		taskManager := tasks.NewManager(taskCtx)
		taskManager.Register("prune-refresh-tokens", pruneInterval, func(_ context.Context, l zerolog.Logger) error {
			if n := authority.Prune(); n > 0 {
				l.Info().Int("pruned", n).Msg("dropped expired refresh tokens")
			}
			return nil
		})

		if viper.GetString(config.KeyLogFormat) != "json" {
			displayBanner()
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info().Msgf("Starting dev server on %s...", addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		select {
		case <-quit:
		case err := <-errCh:
			return fmt.Errorf("server crashed: %w", err)
		}
		log.Info().Msg("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		stopTasks()
		taskManager.Wait()
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}

		log.Info().Msg("Server exited")
		return nil
	},
}

func displayBanner() {
	figure.NewFigure("gitdm", "cybermedium", true).Print()
	fmt.Println()
}

func newAuditor(cfg config.AuditConfig) (audit.Auditor, error) {
	if !cfg.Enabled {
		return audit.NoopAuditor{}, nil
	}
	if cfg.Type == "memory" {
		return audit.NewInMemoryAuditor(), nil
	}
	log.Info().Msgf("Writing audit log to %s", cfg.Path)
	return audit.NewFileAuditor(cfg.Path)
}

func init() {
	rootCmd.AddCommand(devserverCmd)

	devserverCmd.Flags().String("listen", ":8000", "address to listen on")
	devserverCmd.Flags().StringVarP(&devserverConfigPath, "config", "c", "", "dev server configuration file (YAML)")
}
