package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shawkym/agentpipe/pkg/export"
	"github.com/shawkym/agentpipe/pkg/swarmstate"
)

var exportCmd = &cobra.Command{
	Use:   "export [state-file]",
	Short: "Export a saved swarm run to different formats",
	Long: `Export a saved swarm state file (as written by "agentpipe run --save-state")
to JSON, Markdown, or HTML format.

Examples:
  # Export to JSON
  agentpipe export ~/.agentpipe/states/swarm-20231015-120000.json --format json

  # Export to Markdown with metrics
  agentpipe export state.json --format markdown --metrics

  # Export to HTML with custom title
  agentpipe export state.json --format html --title "Team Brainstorm"

  # Export the most recently saved run
  agentpipe export --latest --format markdown
`,
	RunE: runExport,
}

var (
	exportFormat     string
	exportOutput     string
	exportMetrics    bool
	exportByproducts bool
	exportTitle      string
	exportLatest     bool
)

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", "markdown", "Export format (json, markdown, html)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout)")
	exportCmd.Flags().BoolVar(&exportMetrics, "metrics", true, "Include metrics (tokens, cost)")
	exportCmd.Flags().BoolVar(&exportByproducts, "byproducts", false, "Include strategy byproducts (bids, votes, pipeline stages...)")
	exportCmd.Flags().StringVar(&exportTitle, "title", "", "Run title")
	exportCmd.Flags().BoolVar(&exportLatest, "latest", false, "Export the most recently saved state")
}

func runExport(cmd *cobra.Command, args []string) error {
	var inputFile string
	if exportLatest {
		stateDir, err := swarmstate.GetDefaultStateDir()
		if err != nil {
			return fmt.Errorf("failed to get default state directory: %w", err)
		}

		latest, err := findLatestState(stateDir)
		if err != nil {
			return fmt.Errorf("failed to find latest state: %w", err)
		}
		inputFile = latest
		fmt.Fprintf(os.Stderr, "Exporting latest run: %s\n", filepath.Base(inputFile))
	} else {
		if len(args) == 0 {
			return fmt.Errorf("state file path required (or use --latest flag)")
		}
		inputFile = args[0]
	}

	state, err := swarmstate.LoadState(inputFile)
	if err != nil {
		return fmt.Errorf("failed to load state file: %w", err)
	}

	format := export.Format(strings.ToLower(exportFormat))
	switch format {
	case export.FormatJSON, export.FormatMarkdown, export.FormatHTML:
		// Valid format
	default:
		return fmt.Errorf("invalid format: %s (use json, markdown, or html)", exportFormat)
	}

	title := exportTitle
	if title == "" {
		title = fmt.Sprintf("AgentPipe Run - %s", filepath.Base(inputFile))
	}

	exporter := export.NewExporter(export.ExportOptions{
		Format:            format,
		IncludeMetrics:    exportMetrics,
		IncludeByproducts: exportByproducts,
		Title:             title,
	})

	var writer *os.File
	if exportOutput == "" {
		writer = os.Stdout
	} else {
		f, err := os.Create(exportOutput)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close output file: %v\n", closeErr)
			}
		}()
		writer = f
	}

	if err := exporter.Export(state, writer); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	if exportOutput != "" {
		fmt.Fprintf(os.Stderr, "Exported %d agent result(s) to %s\n", len(state.Result.AgentResults), exportOutput)
	}

	return nil
}

// findLatestState finds the most recently modified state file in dir.
func findLatestState(dir string) (string, error) {
	states, err := swarmstate.ListStates(dir)
	if err != nil {
		return "", err
	}

	var latestFile string
	var latestTime int64

	for _, path := range states {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Unix() > latestTime {
			latestTime = info.ModTime().Unix()
			latestFile = path
		}
	}

	if latestFile == "" {
		return "", fmt.Errorf("no state files found in %s", dir)
	}

	return latestFile, nil
}
