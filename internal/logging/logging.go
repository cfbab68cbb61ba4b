// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/gitdm/gitdm/internal/config"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

type Config struct {
	Level   string
	Format  string
	NoColor bool
	Output  io.Writer
}

// FromViper reads the log.* keys of the global viper instance.
func FromViper() *Config {
	return &Config{
		Level:   viper.GetString(config.KeyLogLevel),
		Format:  viper.GetString(config.KeyLogFormat),
		NoColor: viper.GetBool(config.KeyLogNoColor),
	}
}

// InitDefault sets up a console logger at info level, used before flags
// and config files are parsed.
func InitDefault() {
	Init(&Config{Level: "info", Format: FormatConsole})
}

// Init replaces the global logger. A nil cfg reads the configuration from
// viper.
func Init(cfg *Config) {
	log.Logger = New(cfg)
	zerolog.DefaultContextLogger = &log.Logger
}

// New builds a logger from cfg without touching the global one.
func New(cfg *Config) zerolog.Logger {
	if cfg == nil {
		cfg = FromViper()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	if cfg.Format != FormatJSON {
		out = zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    cfg.NoColor || !isTerminal(out),
			TimeFormat: time.TimeOnly,
		}
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
