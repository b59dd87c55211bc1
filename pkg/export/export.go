// Package export renders a finished swarm run to a shareable document.
// Supported formats are JSON, Markdown, and HTML.
package export

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/shawkym/agentpipe/pkg/swarmstate"
)

// Format represents the export format type.
type Format string

const (
	// FormatJSON exports the run as JSON
	FormatJSON Format = "json"
	// FormatMarkdown exports the run as Markdown
	FormatMarkdown Format = "markdown"
	// FormatHTML exports the run as HTML
	FormatHTML Format = "html"
)

// ExportOptions contains options for exporting a run.
type ExportOptions struct {
	// Format specifies the export format (json, markdown, html)
	Format Format
	// IncludeMetrics includes token counts and costs in export
	IncludeMetrics bool
	// IncludeByproducts includes strategy-specific byproducts (bids,
	// votes, pipeline stage outputs, debate transcript...)
	IncludeByproducts bool
	// Title is an optional title for the exported run
	Title string
}

// Exporter handles exporting a saved swarm state to different formats.
type Exporter struct {
	options ExportOptions
}

// NewExporter creates a new Exporter with the given options.
func NewExporter(options ExportOptions) *Exporter {
	return &Exporter{
		options: options,
	}
}

// Export writes state to the writer in the configured format.
func (e *Exporter) Export(state *swarmstate.State, writer io.Writer) error {
	switch e.options.Format {
	case FormatJSON:
		return e.exportJSON(state, writer)
	case FormatMarkdown:
		return e.exportMarkdown(state, writer)
	case FormatHTML:
		return e.exportHTML(state, writer)
	default:
		return fmt.Errorf("unsupported export format: %s", e.options.Format)
	}
}

// exportJSON exports the run as JSON.
func (e *Exporter) exportJSON(state *swarmstate.State, writer io.Writer) error {
	output := struct {
		Title      string                   `json:"title,omitempty"`
		ExportedAt string                   `json:"exported_at"`
		Strategy   string                   `json:"strategy"`
		Output     string                   `json:"output"`
		Agents     []agentSection           `json:"agents"`
		Byproducts map[string]interface{}   `json:"byproducts,omitempty"`
		Summary    *ExportSummary           `json:"summary,omitempty"`
	}{
		Title:      e.options.Title,
		ExportedAt: time.Now().Format(time.RFC3339),
		Strategy:   state.Metadata.Strategy,
		Output:     state.Result.Output,
		Agents:     agentSections(state),
	}

	if e.options.IncludeByproducts {
		output.Byproducts = state.Result.Byproducts
	}
	if e.options.IncludeMetrics {
		output.Summary = calculateSummary(state)
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

// exportMarkdown exports the run as Markdown.
func (e *Exporter) exportMarkdown(state *swarmstate.State, writer io.Writer) error {
	var sb strings.Builder

	title := e.options.Title
	if title == "" {
		title = fmt.Sprintf("AgentPipe Run - %s", state.Metadata.Strategy)
	}
	sb.WriteString("# ")
	sb.WriteString(title)
	sb.WriteString("\n\n")

	sb.WriteString("*Exported: ")
	sb.WriteString(time.Now().Format("2006-01-02 15:04:05"))
	sb.WriteString("*\n\n")

	if e.options.IncludeMetrics {
		summary := calculateSummary(state)
		sb.WriteString("## Summary\n\n")
		sb.WriteString(fmt.Sprintf("- **Strategy**: %s\n", state.Metadata.Strategy))
		sb.WriteString(fmt.Sprintf("- **Agents**: %d\n", summary.AgentCount))
		sb.WriteString(fmt.Sprintf("- **Duration**: %dms\n", state.Metadata.Duration))
		sb.WriteString(fmt.Sprintf("- **Total Tokens**: %d\n", summary.TotalTokens))
		sb.WriteString(fmt.Sprintf("- **Total Cost**: $%.4f\n", summary.TotalCost))
		sb.WriteString("\n---\n\n")
	}

	sb.WriteString("## Final output\n\n")
	sb.WriteString(state.Result.Output)
	sb.WriteString("\n\n---\n\n")

	sb.WriteString("## Agent results\n\n")
	for _, a := range agentSections(state) {
		sb.WriteString("### ")
		sb.WriteString(a.Name)
		sb.WriteString("\n\n")
		sb.WriteString(a.Output)
		sb.WriteString("\n\n")
		if e.options.IncludeMetrics {
			sb.WriteString(fmt.Sprintf("*Tokens: %d | Cost: $%.4f*\n\n", a.Usage.TotalTokens, a.Usage.Cost))
		}
		sb.WriteString("---\n\n")
	}

	if e.options.IncludeByproducts && len(state.Result.Byproducts) > 0 {
		sb.WriteString("## Byproducts\n\n")
		for _, key := range sortedKeys(state.Result.Byproducts) {
			sb.WriteString(fmt.Sprintf("- **%s**: %v\n", key, state.Result.Byproducts[key]))
		}
		sb.WriteString("\n")
	}

	_, err := writer.Write([]byte(sb.String()))
	return err
}

// exportHTML exports the run as HTML.
func (e *Exporter) exportHTML(state *swarmstate.State, writer io.Writer) error {
	var sb strings.Builder

	title := e.options.Title
	if title == "" {
		title = "AgentPipe Run"
	}

	sb.WriteString("<!DOCTYPE html>\n")
	sb.WriteString("<html lang=\"en\">\n")
	sb.WriteString("<head>\n")
	sb.WriteString("  <meta charset=\"UTF-8\">\n")
	sb.WriteString("  <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	sb.WriteString(fmt.Sprintf("  <title>%s</title>\n", html.EscapeString(title)))
	sb.WriteString("  <style>\n")
	sb.WriteString(getCSS())
	sb.WriteString("  </style>\n")
	sb.WriteString("</head>\n")
	sb.WriteString("<body>\n")
	sb.WriteString("  <div class=\"container\">\n")
	sb.WriteString("    <header>\n")
	sb.WriteString(fmt.Sprintf("      <h1>%s</h1>\n", html.EscapeString(title)))
	sb.WriteString(fmt.Sprintf("      <p class=\"export-date\">Exported: %s</p>\n", time.Now().Format("2006-01-02 15:04:05")))
	sb.WriteString("    </header>\n\n")

	if e.options.IncludeMetrics {
		summary := calculateSummary(state)
		sb.WriteString("    <div class=\"summary\">\n")
		sb.WriteString("      <h2>Summary</h2>\n")
		sb.WriteString("      <div class=\"summary-stats\">\n")
		sb.WriteString(fmt.Sprintf("        <div class=\"stat\"><strong>Strategy:</strong> %s</div>\n", html.EscapeString(state.Metadata.Strategy)))
		sb.WriteString(fmt.Sprintf("        <div class=\"stat\"><strong>Agents:</strong> %d</div>\n", summary.AgentCount))
		sb.WriteString(fmt.Sprintf("        <div class=\"stat\"><strong>Total Tokens:</strong> %d</div>\n", summary.TotalTokens))
		sb.WriteString(fmt.Sprintf("        <div class=\"stat\"><strong>Total Cost:</strong> $%.4f</div>\n", summary.TotalCost))
		sb.WriteString("      </div>\n")
		sb.WriteString("    </div>\n\n")
	}

	sb.WriteString("    <div class=\"final-output\">\n")
	sb.WriteString("      <h2>Final output</h2>\n")
	sb.WriteString("      <div class=\"message-content\">")
	sb.WriteString(strings.ReplaceAll(html.EscapeString(state.Result.Output), "\n", "<br>"))
	sb.WriteString("</div>\n")
	sb.WriteString("    </div>\n\n")

	sb.WriteString("    <div class=\"conversation\">\n")
	sb.WriteString("      <h2>Agent results</h2>\n")
	for _, a := range agentSections(state) {
		sb.WriteString("      <div class=\"message message-agent\">\n")
		sb.WriteString("        <div class=\"message-header\">\n")
		sb.WriteString(fmt.Sprintf("          <span class=\"agent-name\">%s</span>\n", html.EscapeString(a.Name)))
		sb.WriteString("        </div>\n")
		sb.WriteString("        <div class=\"message-content\">\n          ")
		sb.WriteString(strings.ReplaceAll(html.EscapeString(a.Output), "\n", "<br>"))
		sb.WriteString("\n        </div>\n")
		if e.options.IncludeMetrics {
			sb.WriteString("        <div class=\"message-metrics\">\n")
			sb.WriteString(fmt.Sprintf("          Tokens: %d | Cost: $%.4f\n", a.Usage.TotalTokens, a.Usage.Cost))
			sb.WriteString("        </div>\n")
		}
		sb.WriteString("      </div>\n\n")
	}
	sb.WriteString("    </div>\n")
	sb.WriteString("  </div>\n")
	sb.WriteString("</body>\n")
	sb.WriteString("</html>\n")

	_, err := writer.Write([]byte(sb.String()))
	return err
}

// agentSection is a flattened, sorted view of one strategy.Result
// AgentResults entry, used by every export format.
type agentSection struct {
	Name   string       `json:"name"`
	Output string       `json:"output"`
	Usage  usageSummary `json:"usage"`
}

type usageSummary struct {
	TotalTokens int     `json:"total_tokens"`
	Cost        float64 `json:"cost"`
}

func agentSections(state *swarmstate.State) []agentSection {
	names := make([]string, 0, len(state.Result.AgentResults))
	for name := range state.Result.AgentResults {
		names = append(names, name)
	}
	sort.Strings(names)

	sections := make([]agentSection, 0, len(names))
	for _, name := range names {
		r := state.Result.AgentResults[name]
		sections = append(sections, agentSection{
			Name:   name,
			Output: r.Output,
			Usage: usageSummary{
				TotalTokens: r.Usage.TotalTokens,
				Cost:        r.Usage.Cost,
			},
		})
	}
	return sections
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ExportSummary contains summary statistics for an exported run.
type ExportSummary struct {
	AgentCount  int     `json:"agent_count"`
	TotalTokens int     `json:"total_tokens"`
	TotalCost   float64 `json:"total_cost"`
}

// calculateSummary computes summary statistics from a saved state.
func calculateSummary(state *swarmstate.State) *ExportSummary {
	summary := &ExportSummary{
		AgentCount: len(state.Result.AgentResults),
	}
	for _, r := range state.Result.AgentResults {
		summary.TotalTokens += r.Usage.TotalTokens
		summary.TotalCost += r.Usage.Cost
	}
	return summary
}

// getCSS returns the CSS styles for HTML export.
func getCSS() string {
	return `    body {
      font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, Cantarell, sans-serif;
      line-height: 1.6;
      color: #333;
      max-width: 100%;
      margin: 0;
      padding: 0;
      background-color: #f5f5f5;
    }
    .container {
      max-width: 900px;
      margin: 0 auto;
      padding: 20px;
      background-color: white;
      box-shadow: 0 0 10px rgba(0,0,0,0.1);
    }
    header {
      border-bottom: 2px solid #e0e0e0;
      padding-bottom: 20px;
      margin-bottom: 30px;
    }
    h1 {
      margin: 0;
      color: #2c3e50;
    }
    h2 {
      color: #34495e;
      border-bottom: 1px solid #e0e0e0;
      padding-bottom: 10px;
    }
    .export-date {
      color: #7f8c8d;
      font-style: italic;
      margin: 10px 0 0 0;
    }
    .summary {
      background-color: #ecf0f1;
      padding: 20px;
      border-radius: 8px;
      margin-bottom: 30px;
    }
    .summary-stats {
      display: grid;
      grid-template-columns: repeat(auto-fit, minmax(200px, 1fr));
      gap: 15px;
      margin-top: 15px;
    }
    .stat {
      background-color: white;
      padding: 10px;
      border-radius: 4px;
      box-shadow: 0 1px 3px rgba(0,0,0,0.1);
    }
    .conversation {
      margin-top: 30px;
    }
    .final-output {
      margin-top: 20px;
    }
    .message {
      margin-bottom: 25px;
      padding: 15px;
      border-radius: 8px;
      background-color: #fff;
      border-left: 4px solid #3498db;
      box-shadow: 0 1px 3px rgba(0,0,0,0.1);
    }
    .message-header {
      display: flex;
      justify-content: space-between;
      align-items: center;
      margin-bottom: 10px;
      padding-bottom: 8px;
      border-bottom: 1px solid #e0e0e0;
    }
    .agent-name {
      font-weight: bold;
      color: #2980b9;
      font-size: 1.1em;
    }
    .message-content {
      margin: 10px 0;
      line-height: 1.8;
    }
    .message-metrics {
      margin-top: 10px;
      padding-top: 10px;
      border-top: 1px solid #e0e0e0;
      font-size: 0.85em;
      color: #7f8c8d;
      font-style: italic;
    }
    @media print {
      .container {
        box-shadow: none;
      }
      .message {
        break-inside: avoid;
      }
    }`
}
