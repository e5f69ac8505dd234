package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/noticescan/internal/config"
)

//go:embed templates/noticescan.yaml
var configTemplate embed.FS

// configTemplatePath is the template location inside configTemplate.
const configTemplatePath = "templates/noticescan.yaml"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a site registry template",
		Long: `Initialize writes a commented noticescan.yaml to the current directory.

The generated file includes:
- Defaults shared by every site
- A table board with JavaScript detail links
- A JSON API board that needs a headless browser

Examples:
  # Create noticescan.yaml in the current directory
  noticescan init

  # Create the registry in the XDG config directory
  noticescan init --xdg

  # Force overwrite existing file
  noticescan init -f`,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the site registry")
	cmd.Flags().Bool("xdg", false,
		"Write the registry to the XDG config directory instead")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite existing registry file")

	return cmd
}

// runInitCmd executes the init command.
func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	useXDG, err := cmd.Flags().GetBool("xdg")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}
	if useXDG {
		outputPath = filepath.Join(config.XDGConfigDir(), config.XDGConfigFile)
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("site registry already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile(configTemplatePath)
	if err != nil {
		return fmt.Errorf("failed to read registry template: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	// The registry may later hold cookies and headers.
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write site registry: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created site registry: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit this file to describe your boards:")
	fmt.Fprintln(out, "  - List URL, pagination and row selectors")
	fmt.Fprintln(out, "  - Detail link calls and content selectors")
	fmt.Fprintln(out, "  - Attachment download calls and widgets")
	return nil
}
