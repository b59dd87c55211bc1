package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shawkym/agentpipe/pkg/agent"
	"github.com/shawkym/agentpipe/pkg/config"
	"github.com/shawkym/agentpipe/pkg/strategy"
	"github.com/shawkym/agentpipe/pkg/swarmstate"
)

func testState() *swarmstate.State {
	return &swarmstate.State{
		Version: "1.0",
		SavedAt: time.Now(),
		Config:  config.NewDefaultConfig(),
		Result: strategy.Result{
			Output: "Final synthesized answer",
			AgentResults: map[string]agent.RunResult{
				"Alice": {Output: "Alice's contribution", Usage: agent.Usage{TotalTokens: 100, Cost: 0.0010}},
				"Bob":   {Output: "Bob's contribution", Usage: agent.Usage{TotalTokens: 200, Cost: 0.0020}},
			},
			Byproducts: map[string]interface{}{
				"winner": "Alice",
			},
		},
		Metadata: swarmstate.StateMetadata{
			StartedAt:  time.Now(),
			Duration:   1500,
			AgentCount: 2,
			Strategy:   "auction",
		},
	}
}

func TestExportJSON(t *testing.T) {
	state := testState()

	exporter := NewExporter(ExportOptions{
		Format:         FormatJSON,
		IncludeMetrics: true,
		Title:          "Test Run",
	})

	var buf bytes.Buffer
	if err := exporter.Export(state, &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("Invalid JSON output: %v", err)
	}

	if result["title"] != "Test Run" {
		t.Errorf("Expected title 'Test Run', got %v", result["title"])
	}
	if result["output"] != "Final synthesized answer" {
		t.Errorf("Expected final output in JSON, got %v", result["output"])
	}

	agents, ok := result["agents"].([]interface{})
	if !ok || len(agents) != 2 {
		t.Fatalf("Expected 2 agent sections, got %v", result["agents"])
	}

	summary, ok := result["summary"].(map[string]interface{})
	if !ok {
		t.Fatal("summary field is missing or invalid")
	}
	if summary["total_tokens"] != float64(300) {
		t.Errorf("Expected 300 total tokens in summary, got %v", summary["total_tokens"])
	}

	if _, hasByproducts := result["byproducts"]; hasByproducts {
		t.Error("Expected byproducts to be omitted when IncludeByproducts is false")
	}
}

func TestExportJSONIncludesByproductsWhenRequested(t *testing.T) {
	state := testState()

	exporter := NewExporter(ExportOptions{
		Format:            FormatJSON,
		IncludeByproducts: true,
	})

	var buf bytes.Buffer
	if err := exporter.Export(state, &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("Invalid JSON output: %v", err)
	}

	byproducts, ok := result["byproducts"].(map[string]interface{})
	if !ok || byproducts["winner"] != "Alice" {
		t.Errorf("Expected byproducts to include winner=Alice, got %v", result["byproducts"])
	}
}

func TestExportMarkdown(t *testing.T) {
	state := testState()

	exporter := NewExporter(ExportOptions{
		Format:         FormatMarkdown,
		IncludeMetrics: true,
		Title:          "Test Run",
	})

	var buf bytes.Buffer
	if err := exporter.Export(state, &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	output := buf.String()

	if !strings.Contains(output, "# Test Run") {
		t.Error("Expected markdown to contain title")
	}
	if !strings.Contains(output, "## Summary") {
		t.Error("Expected markdown to contain summary section")
	}
	if !strings.Contains(output, "**Strategy**: auction") {
		t.Error("Expected summary to show strategy name")
	}
	if !strings.Contains(output, "## Final output") {
		t.Error("Expected markdown to contain the final output section")
	}
	if !strings.Contains(output, "### Alice") || !strings.Contains(output, "### Bob") {
		t.Error("Expected markdown to contain per-agent sections")
	}
	if !strings.Contains(output, "Tokens:") {
		t.Error("Expected markdown to contain token metrics")
	}
}

func TestExportMarkdownIncludesByproductsWhenRequested(t *testing.T) {
	state := testState()

	exporter := NewExporter(ExportOptions{
		Format:            FormatMarkdown,
		IncludeByproducts: true,
	})

	var buf bytes.Buffer
	if err := exporter.Export(state, &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "## Byproducts") || !strings.Contains(output, "winner") {
		t.Error("Expected markdown to contain a byproducts section")
	}
}

func TestExportHTML(t *testing.T) {
	state := testState()

	exporter := NewExporter(ExportOptions{
		Format:         FormatHTML,
		IncludeMetrics: true,
		Title:          "Test Run",
	})

	var buf bytes.Buffer
	if err := exporter.Export(state, &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	output := buf.String()

	if !strings.Contains(output, "<!DOCTYPE html>") {
		t.Error("Expected valid HTML document")
	}
	if !strings.Contains(output, "<title>Test Run</title>") {
		t.Error("Expected HTML title")
	}
	if !strings.Contains(output, "<style>") {
		t.Error("Expected CSS styles")
	}
	if !strings.Contains(output, "<div class=\"summary\">") {
		t.Error("Expected summary div")
	}
	if !strings.Contains(output, "Final synthesized answer") {
		t.Error("Expected the final output to appear in HTML")
	}
	if !strings.Contains(output, "<div class=\"message") {
		t.Error("Expected per-agent message divs")
	}
}

func TestExportWithoutMetrics(t *testing.T) {
	state := testState()

	exporter := NewExporter(ExportOptions{
		Format:         FormatJSON,
		IncludeMetrics: false,
	})

	var buf bytes.Buffer
	if err := exporter.Export(state, &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("Invalid JSON output: %v", err)
	}

	if _, ok := result["summary"]; ok {
		t.Error("Expected no summary when IncludeMetrics is false")
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	state := testState()

	exporter := NewExporter(ExportOptions{Format: "invalid"})

	var buf bytes.Buffer
	err := exporter.Export(state, &buf)
	if err == nil {
		t.Fatal("Expected error for unsupported format")
	}
	if !strings.Contains(err.Error(), "unsupported export format") {
		t.Errorf("Expected 'unsupported export format' error, got: %v", err)
	}
}

func TestCalculateSummary(t *testing.T) {
	state := testState()
	summary := calculateSummary(state)

	if summary.AgentCount != 2 {
		t.Errorf("Expected 2 agents, got %d", summary.AgentCount)
	}
	if summary.TotalTokens != 300 {
		t.Errorf("Expected 300 total tokens, got %d", summary.TotalTokens)
	}
	expectedCost := 0.0030
	if summary.TotalCost != expectedCost {
		t.Errorf("Expected cost %.4f, got %.4f", expectedCost, summary.TotalCost)
	}
}

func TestExportEmptyAgentResults(t *testing.T) {
	state := testState()
	state.Result.AgentResults = map[string]agent.RunResult{}

	exporter := NewExporter(ExportOptions{Format: FormatJSON})

	var buf bytes.Buffer
	if err := exporter.Export(state, &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &result); err != nil {
		t.Fatalf("Invalid JSON output: %v", err)
	}

	agents, ok := result["agents"].([]interface{})
	if !ok || len(agents) != 0 {
		t.Errorf("Expected 0 agent sections, got %v", result["agents"])
	}
}

func TestHTMLSpecialCharactersAreEscaped(t *testing.T) {
	state := testState()
	state.Result.AgentResults = map[string]agent.RunResult{
		"Agent<script>alert('xss')</script>": {Output: "Message with <html> & special chars"},
	}

	exporter := NewExporter(ExportOptions{Format: FormatHTML})

	var buf bytes.Buffer
	if err := exporter.Export(state, &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	output := buf.String()
	if strings.Contains(output, "<script>") {
		t.Error("HTML not properly escaped - XSS vulnerability")
	}
	if !strings.Contains(output, "&lt;html&gt;") {
		t.Error("Expected HTML entities for <html>")
	}
	if !strings.Contains(output, "&amp;") {
		t.Error("Expected HTML entity for &")
	}
}

func TestMarkdownAgentsAreSortedByName(t *testing.T) {
	state := testState()
	state.Result.AgentResults = map[string]agent.RunResult{
		"Charlie": {Output: "Hello from Charlie"},
		"Alice":   {Output: "Hello from Alice"},
		"Bob":     {Output: "Hello from Bob"},
	}

	exporter := NewExporter(ExportOptions{Format: FormatMarkdown})

	var buf bytes.Buffer
	if err := exporter.Export(state, &buf); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	output := buf.String()
	aliceIdx := strings.Index(output, "### Alice")
	bobIdx := strings.Index(output, "### Bob")
	charlieIdx := strings.Index(output, "### Charlie")

	if aliceIdx == -1 || bobIdx == -1 || charlieIdx == -1 {
		t.Fatal("Expected all three agents in output")
	}
	if !(aliceIdx < bobIdx && bobIdx < charlieIdx) {
		t.Error("Expected agents in sorted order: Alice, Bob, Charlie")
	}
}
