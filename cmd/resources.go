package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gitdm/gitdm/internal/api"
	"github.com/gitdm/gitdm/internal/authstate"
	"github.com/gitdm/gitdm/internal/filter"
	"github.com/gitdm/gitdm/pkg/client"
)

var (
	listPage     int
	listPageSize int
	listWhere    string
	outputJSON   bool
)

func resourceNames() []string {
	names := make([]string, len(api.Resources))
	for i, r := range api.Resources {
		names[i] = string(r)
	}
	return names
}

var listCmd = &cobra.Command{
	Use:       "list <resource>",
	Short:     "List a resource collection",
	Long:      "Lists one page of a resource collection. Resources: " + strings.Join(resourceNames(), ", "),
	Args:      cobra.ExactArgs(1),
	ValidArgs: resourceNames(),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := api.ParseResource(args[0])
		if err != nil {
			return err
		}
		var where *filter.Filter
		if listWhere != "" {
			if where, err = filter.Compile(listWhere); err != nil {
				return err
			}
		}
		cli, err := protectedClient(cmd.Context(), cmd.CommandPath()+" "+args[0])
		if err != nil {
			return err
		}

		log.Debug().Msgf("Fetching %s...", res)
		page, correlation, err := cli.List(cmd.Context(), res, client.ListOptions{Page: listPage, PageSize: listPageSize})
		if err != nil {
			return logError(err, correlation, "failed to list %s", res)
		}

		if outputJSON && where == nil {
			return printJSON(page)
		}
		items, err := filter.Apply(where, decodeItems(page.Results))
		if err != nil {
			return err
		}
		if outputJSON {
			return printJSON(items)
		}
		printItems(items)
		if where != nil {
			log.Info().Msgf("Showing %d of %d %s matching %s (page of %d)",
				len(items), page.Count, res, bold(where.String()), len(page.Results))
		} else {
			log.Info().Msgf("Showing %d of %d %s", len(items), page.Count, res)
		}
		return nil
	},
}

var getCmd = &cobra.Command{
	Use:       "get <resource> <id>",
	Short:     "Show a single resource item",
	Args:      cobra.ExactArgs(2),
	ValidArgs: resourceNames(),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := api.ParseResource(args[0])
		if err != nil {
			return err
		}
		cli, err := protectedClient(cmd.Context(), cmd.CommandPath()+" "+strings.Join(args, " "))
		if err != nil {
			return err
		}

		item, correlation, err := cli.Get(cmd.Context(), res, args[1])
		if err != nil {
			return logError(err, correlation, "failed to get %s %s", res, args[1])
		}

		if outputJSON {
			return printJSON(item)
		}
		printItems(decodeItems([]json.RawMessage{item}))
		return nil
	},
}

var createCmd = &cobra.Command{
	Use:   "create <resource> [file|-]",
	Short: "Create a resource item from a JSON object",
	Example: `  # Create an AI summary from a file
  gitdm create ai-summaries summary.json

  # Create a patient from stdin
  echo '{"name":"Ada Lovelace"}' | gitdm create patients -`,
	Args:      cobra.RangeArgs(1, 2),
	ValidArgs: resourceNames(),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := api.ParseResource(args[0])
		if err != nil {
			return err
		}
		var in io.Reader = cmd.InOrStdin()
		if len(args) == 2 && args[1] != "-" {
			file, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("opening item file: %w", err)
			}
			defer func() { _ = file.Close() }()
			in = file
		}
		raw, err := io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("reading item: %w", err)
		}
		if !json.Valid(raw) {
			return fmt.Errorf("item is not valid JSON")
		}

		cli, err := protectedClient(cmd.Context(), cmd.CommandPath()+" "+args[0])
		if err != nil {
			return err
		}
		item, correlation, err := cli.Create(cmd.Context(), res, json.RawMessage(raw))
		if err != nil {
			return logError(err, correlation, "failed to create %s item", res)
		}

		if outputJSON {
			return printJSON(item)
		}
		printItems(decodeItems([]json.RawMessage{item}))
		logSuccess("created %s item", res)
		return nil
	},
}

// requireSession waits for the session restore and fails with a login hint
// when no session is available.
func requireSession(ctx context.Context, returnTo string) error {
	p, err := f.Provider(ctx)
	if err != nil {
		return err
	}
	if err := p.RequireAuth(ctx, returnTo); err != nil {
		var loginErr authstate.LoginRequiredError
		if errors.As(err, &loginErr) {
			log.Error().Msgf("%s not signed in, run %s and retry %s",
				redCross, bold("gitdm login"), bold(loginErr.ReturnTo))
			return BeQuietError{}
		}
		return err
	}
	return nil
}

func protectedClient(ctx context.Context, returnTo string) (*client.Client, error) {
	if err := requireSession(ctx, returnTo); err != nil {
		return nil, err
	}
	return f.APIClient(ctx)
}

func decodeItems(items []json.RawMessage) []map[string]any {
	rows := make([]map[string]any, 0, len(items))
	for _, raw := range items {
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			log.Warn().Err(err).Msg("skipping non-object item")
			continue
		}
		rows = append(rows, obj)
	}
	return rows
}

// printItems renders objects as a table with one column per key.
func printItems(rows []map[string]any) {
	var keys []string
	for _, obj := range rows {
		for k := range obj {
			if !slices.Contains(keys, k) {
				keys = append(keys, k)
			}
		}
	}
	slices.Sort(keys)
	// id first
	if i := slices.Index(keys, "id"); i > 0 {
		keys = append([]string{"id"}, slices.Delete(keys, i, i+1)...)
	}

	t := newTable()
	header := make(table.Row, len(keys))
	for i, k := range keys {
		header[i] = k
	}
	t.AppendHeader(header)
	for _, obj := range rows {
		row := make(table.Row, len(keys))
		for i, k := range keys {
			if v, ok := obj[k]; ok {
				row[i] = truncate(fmt.Sprint(v), 60)
			} else {
				row[i] = faint("-")
			}
		}
		t.AppendRow(row)
	}
	t.Render()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(createCmd)

	listCmd.Flags().IntVar(&listPage, "page", 0, "Page number (1-based)")
	listCmd.Flags().IntVarP(&listPageSize, "page-size", "n", 0, "Items per page")
	listCmd.Flags().StringVarP(&listWhere, "where", "w", "",
		`Only show items of the fetched page matching an expression (e.g. 'status == "final"')`)

	bindOutputFlag(listCmd.Flags())
	bindOutputFlag(getCmd.Flags())
	bindOutputFlag(createCmd.Flags())
}

func bindOutputFlag(flags *pflag.FlagSet) {
	flags.BoolVar(&outputJSON, "json", false, "Print the raw JSON response")
}
