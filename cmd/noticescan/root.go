package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/noticescan/internal/log"
)

// NewRootCmd creates the root command for noticescan.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "noticescan",
		Short: "Crawl public-notice boards and collect new announcements",
		Long: `noticescan crawls the public-notice boards of a site registry and saves
every new announcement with its body text and attachments.

Each site keeps a record of the titles it has already processed. A run
stops early once it meets enough consecutive known titles, so frequent
scheduled runs only fetch what is new.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			slog.SetDefault(newLogger(cmd))
		},
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON lines")

	// Add subcommands
	cmd.AddCommand(NewScanCmd())
	cmd.AddCommand(NewSitesCmd())
	cmd.AddCommand(NewStatusCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// getLogJSONFlag retrieves the log-json flag from the command or its parent.
func getLogJSONFlag(cmd *cobra.Command) bool {
	logJSON, err := cmd.Flags().GetBool("log-json")
	if err != nil {
		logJSON, err = cmd.Root().PersistentFlags().GetBool("log-json")
		if err != nil {
			return false
		}
	}
	return logJSON
}

// newLogger creates the secure logger selected by the global flags.
// Logs go to stderr so that reports on stdout stay machine readable.
func newLogger(cmd *cobra.Command) *slog.Logger {
	return log.New(cmd.ErrOrStderr(), log.Options{
		Verbose: getVerboseFlag(cmd),
		JSON:    getLogJSONFlag(cmd),
	})
}
