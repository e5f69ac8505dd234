package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/noticescan/internal/config"
	"github.com/nao1215/noticescan/internal/dedup"
	"github.com/nao1215/noticescan/internal/model"
	"github.com/nao1215/noticescan/internal/report"
)

// defaultHistory is the number of past runs shown by status.
const defaultHistory = 5

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <site>",
		Short: "Show a site's duplicate record and recent runs",
		Long: `Status shows how many titles of a site are known, when the record was
last written, and the most recent runs from the run history.

Examples:
  noticescan status kiat
  noticescan status kiat --store sqlite --history 20
  noticescan status kiat --json`,
		Args: cobra.ExactArgs(1),
		RunE: runStatusCmd,
	}

	cmd.Flags().String("state-dir", "",
		"Directory of duplicate records and run history (default: XDG data directory)")
	cmd.Flags().String("store", config.StoreJSON,
		"Duplicate record store: json, sqlite or redis")
	cmd.Flags().String("redis-addr", "",
		"Redis address for --store redis")
	cmd.Flags().Int("redis-db", 0,
		"Redis database number")
	cmd.Flags().Int("history", defaultHistory,
		"Number of recent runs to show (0 shows all)")
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON")

	return cmd
}

// siteStatus is the status of one site.
type siteStatus struct {
	Site  string `json:"site"`
	Store string `json:"store"`

	// Known is false when the site has no duplicate record yet.
	Known       bool                `json:"known"`
	KnownTitles int                 `json:"known_titles"`
	LastUpdated time.Time           `json:"last_updated,omitzero"`
	Runs        []*model.RunSummary `json:"runs"`
}

// runStatusCmd executes the status command.
func runStatusCmd(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnvFile(config.DefaultEnvFile); err != nil {
		return err
	}
	cfg := config.NewConfig()
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	f := flagReader{cmd: cmd}
	f.string("state-dir", &cfg.StateDir)
	f.string("store", &cfg.Store)
	f.string("redis-addr", &cfg.RedisAddr)
	f.int("redis-db", &cfg.RedisDB)
	history := defaultHistory
	f.int("history", &history)
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	if f.err != nil {
		return f.err
	}

	// Validate needs a site selection; status names exactly one.
	cfg.Sites = args
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	status, err := loadStatus(cmd, cfg, args[0], history, slog.Default())
	if err != nil {
		return err
	}
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}
	writeStatus(cmd.OutOrStdout(), status)
	return nil
}

// loadStatus reads the record and the run history of site.
func loadStatus(cmd *cobra.Command, cfg *config.Config, site string, history int, logger *slog.Logger) (*siteStatus, error) {
	ctx := cmd.Context()
	stores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer stores.Close()

	status := &siteStatus{Site: site, Store: cfg.Store}
	rec, err := stores.records.Load(ctx, site)
	switch {
	case errors.Is(err, dedup.ErrRecordNotFound):
	case err != nil:
		return nil, err
	default:
		status.Known = true
		status.KnownTitles = len(rec.Hashes)
		status.LastUpdated = rec.LastUpdated
	}

	status.Runs, err = stores.history.RunHistory(ctx, site, history)
	if err != nil {
		return nil, err
	}
	return status, nil
}

func writeStatus(w io.Writer, s *siteStatus) {
	fmt.Fprintf(w, "Site:          %s\n", s.Site)
	fmt.Fprintf(w, "Store:         %s\n", s.Store)
	if s.Known {
		fmt.Fprintf(w, "Known titles:  %d\n", s.KnownTitles)
		fmt.Fprintf(w, "Last updated:  %s\n", s.LastUpdated.Local().Format("2006-01-02 15:04:05 MST"))
	} else {
		fmt.Fprintln(w, "Known titles:  none (the site has not been crawled yet)")
	}

	if len(s.Runs) == 0 {
		fmt.Fprintln(w, "\nNo runs recorded.")
		return
	}
	fmt.Fprintln(w, "\nRecent runs:")
	for _, r := range s.Runs {
		fmt.Fprintf(w, "  [%s] %s  %s  processed=%d skipped=%d failed=%d attachments=%d\n",
			report.Indicator(r.Status),
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			report.StatusText(r),
			r.Processed, r.Skipped, r.Failed, r.Attachments,
		)
	}
}
