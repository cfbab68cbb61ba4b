package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rs/zerolog/log"
)

var (
	greenCheck = color.GreenString("✔")
	redCross   = color.RedString("✘")

	bold  = color.New(color.Bold).SprintFunc()
	faint = color.New(color.Faint).SprintFunc()
)

// BeQuietError signals that the error was already reported to the user.
type BeQuietError struct{}

func (BeQuietError) Error() string {
	return "command failed"
}

// logError reports err with its correlation id and returns BeQuietError.
func logError(err error, correlation, msg string, args ...any) error {
	if correlation != "" {
		log.Error().Msgf("%s %s (correlation ID: %s)", redCross, fmt.Sprintf(msg, args...), correlation)
	} else {
		log.Error().Msgf("%s %s", redCross, fmt.Sprintf(msg, args...))
	}
	log.Error().Msgf("error: %v", err)
	return BeQuietError{}
}

func logSuccess(msg string, args ...any) {
	log.Info().Msgf("%s %s", greenCheck, fmt.Sprintf(msg, args...))
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	applyTableFormat(t)
	return t
}

func applyTableFormat(t table.Writer) {
	t.SetStyle(table.StyleLight)
	t.Style().Options.SeparateRows = false
	t.Style().Format.Header = text.FormatDefault // keep header casing
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
