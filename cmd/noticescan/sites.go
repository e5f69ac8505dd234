package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/noticescan/internal/config"
)

// NewSitesCmd creates the sites command.
func NewSitesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sites",
		Short: "List the sites of the registry",
		Long: `Sites lists every board of the site registry with its type, pagination
and whether --all includes it. Invalid entries are shown with their error.

Examples:
  noticescan sites
  noticescan sites -c boards.yaml --markdown`,
		Args: cobra.NoArgs,
		RunE: runSitesCmd,
	}

	cmd.Flags().StringP("config", "c", "",
		"Site registry path (default: noticescan.yaml in current or XDG config directory)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Print a Markdown table")

	return cmd
}

// siteRow is one line of the sites listing.
type siteRow struct {
	name, kind, pagination, state, listURL string
}

// runSitesCmd executes the sites command.
func runSitesCmd(cmd *cobra.Command, _ []string) error {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	asMarkdown, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}
	cf, err := loadRegistry(path)
	if err != nil {
		return err
	}

	rows := siteRows(cf)
	if asMarkdown {
		return writeSitesMarkdown(cmd.OutOrStdout(), rows)
	}
	return writeSitesTable(cmd.OutOrStdout(), rows)
}

// siteRows describes every registry entry in name order.
func siteRows(cf *config.File) []siteRow {
	rows := make([]siteRow, 0, len(cf.Sites))
	for _, name := range cf.Names() {
		site, err := cf.Site(name)
		if err != nil {
			rows = append(rows, siteRow{name: name, state: "invalid: " + err.Error()})
			continue
		}
		state := "enabled"
		if site.Disabled {
			state = "disabled"
		}
		listURL := site.ListURL
		if listURL == "" {
			listURL = site.API.URL
		}
		rows = append(rows, siteRow{
			name:       name,
			kind:       site.Kind(),
			pagination: site.PaginationType(),
			state:      state,
			listURL:    listURL,
		})
	}
	return rows
}

func writeSitesTable(w io.Writer, rows []siteRow) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tPAGINATION\tSTATE\tLIST URL")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.name, r.kind, r.pagination, r.state, r.listURL)
	}
	return tw.Flush()
}

func writeSitesMarkdown(w io.Writer, rows []siteRow) error {
	table := make([][]string, 0, len(rows))
	for _, r := range rows {
		table = append(table, []string{"`" + r.name + "`", r.kind, r.pagination, r.state, r.listURL})
	}
	return markdown.NewMarkdown(w).
		Table(markdown.TableSet{
			Header: []string{"Name", "Type", "Pagination", "State", "List URL"},
			Rows:   table,
		}).
		Build()
}
