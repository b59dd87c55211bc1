package adapters

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/shawkym/agentpipe/internal/registry"
	"github.com/shawkym/agentpipe/pkg/agent"
	"github.com/shawkym/agentpipe/pkg/log"
)

type CrushAgent struct {
	agent.BaseAgent
	execPath string
}

func NewCrushAgent() agent.Agent {
	return &CrushAgent{}
}

func (c *CrushAgent) Initialize(config agent.AgentConfig) error {
	if err := c.BaseAgent.Initialize(config); err != nil {
		log.WithFields(map[string]interface{}{
			"agent_id":   config.ID,
			"agent_name": config.Name,
		}).WithError(err).Error("crush agent base initialization failed")
		return err
	}

	path, err := exec.LookPath("crush")
	if err != nil {
		log.WithFields(map[string]interface{}{
			"agent_id":   c.ID,
			"agent_name": c.Name,
		}).WithError(err).Error("crush CLI not found in PATH")
		return fmt.Errorf("crush CLI not found: %w", err)
	}
	c.execPath = path

	log.WithFields(map[string]interface{}{
		"agent_id":   c.ID,
		"agent_name": c.Name,
		"exec_path":  path,
		"model":      c.Config.Model,
	}).Info("crush agent initialized successfully")

	return nil
}

func (c *CrushAgent) IsAvailable() bool {
	_, err := exec.LookPath("crush")
	return err == nil
}

func (c *CrushAgent) GetCLIVersion() string {
	return registry.GetInstalledVersion("crush")
}

func (c *CrushAgent) HealthCheck(ctx context.Context) error {
	if c.execPath == "" {
		log.WithField("agent_name", c.Name).Error("crush health check failed: not initialized")
		return fmt.Errorf("crush CLI not initialized")
	}

	log.WithField("agent_name", c.Name).Debug("starting crush health check")

	// Check if the Crush CLI binary exists and responds to --version
	cmd := exec.CommandContext(ctx, c.execPath, "--version")
	output, err := cmd.CombinedOutput()

	if err != nil {
		// Try with -v flag if --version doesn't work
		log.WithField("agent_name", c.Name).Debug("--version check failed, trying -v")
		cmd = exec.CommandContext(ctx, c.execPath, "-v")
		output, err = cmd.CombinedOutput()

		if err != nil {
			// If both fail, the CLI is not properly installed
			log.WithField("agent_name", c.Name).WithError(err).Error("crush health check failed: CLI not responding")
			return fmt.Errorf("crush CLI not responding to --version or -v: %w", err)
		}
	}

	// Check if output contains version information
	outputStr := string(output)
	if len(outputStr) < 3 {
		log.WithFields(map[string]interface{}{
			"agent_name":    c.Name,
			"output_length": len(outputStr),
		}).Error("crush health check failed: output too short")
		return fmt.Errorf("crush CLI returned suspiciously short output")
	}

	log.WithField("agent_name", c.Name).Info("crush health check passed")
	return nil
}

func (c *CrushAgent) SendMessage(ctx context.Context, messages []agent.Message) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}

	log.WithFields(map[string]interface{}{
		"agent_name":    c.Name,
		"message_count": len(messages),
	}).Debug("sending message to crush CLI")

	// Filter out this agent's own messages
	relevantMessages := c.filterRelevantMessages(messages)

	// Build prompt with structured format
	prompt := c.buildPrompt(relevantMessages, true)

	// Build command args - Crush accepts prompt via stdin or as argument
	// Using stdin for consistency with other adapters
	args := []string{}

	// Add model flag if specified
	if c.Config.Model != "" {
		args = append(args, "--model", c.Config.Model)
	}

	// Crush CLI takes prompt via stdin or command-line argument
	cmd := exec.CommandContext(ctx, c.execPath, args...)
	cmd.Stdin = strings.NewReader(prompt)

	startTime := time.Now()
	output, err := cmd.CombinedOutput()
	duration := time.Since(startTime)

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			log.WithFields(map[string]interface{}{
				"agent_name": c.Name,
				"exit_code":  exitErr.ExitCode(),
				"duration":   duration.String(),
			}).WithError(err).Error("crush execution failed with exit code")
			return "", fmt.Errorf("crush execution failed (exit code %d): %s", exitErr.ExitCode(), string(output))
		}
		log.WithFields(map[string]interface{}{
			"agent_name": c.Name,
			"duration":   duration.String(),
		}).WithError(err).Error("crush execution failed")
		return "", fmt.Errorf("crush execution failed: %w\nOutput: %s", err, string(output))
	}

	// Clean up output - remove system messages and prompts
	outputStr := string(output)
	cleanedOutput := c.cleanOutput(outputStr)

	log.WithFields(map[string]interface{}{
		"agent_name":    c.Name,
		"duration":      duration.String(),
		"response_size": len(output),
	}).Info("crush message sent successfully")

	return cleanedOutput, nil
}

func (c *CrushAgent) StreamMessage(ctx context.Context, messages []agent.Message, writer io.Writer) error {
	if len(messages) == 0 {
		return nil
	}

	log.WithFields(map[string]interface{}{
		"agent_name":    c.Name,
		"message_count": len(messages),
	}).Debug("starting crush streaming message")

	// Filter out this agent's own messages
	relevantMessages := c.filterRelevantMessages(messages)

	// Build prompt with structured format
	prompt := c.buildPrompt(relevantMessages, true)

	// Build command args
	args := []string{}

	// Add model flag if specified
	if c.Config.Model != "" {
		args = append(args, "--model", c.Config.Model)
	}

	// Crush CLI takes prompt via stdin
	cmd := exec.CommandContext(ctx, c.execPath, args...)
	cmd.Stdin = strings.NewReader(prompt)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.WithField("agent_name", c.Name).WithError(err).Error("failed to create stdout pipe")
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		log.WithField("agent_name", c.Name).WithError(err).Error("failed to start crush process")
		return fmt.Errorf("failed to start crush: %w", err)
	}

	startTime := time.Now()
	scanner := bufio.NewScanner(stdout)
	lineCount := 0
	for scanner.Scan() {
		line := scanner.Text()
		// Skip system messages and prompts
		if c.shouldSkipLine(line) {
			continue
		}
		fmt.Fprintln(writer, line)
		lineCount++
	}

	if err := scanner.Err(); err != nil {
		log.WithField("agent_name", c.Name).WithError(err).Error("error reading streaming output")
		return fmt.Errorf("error reading output: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		log.WithField("agent_name", c.Name).WithError(err).Error("crush streaming execution failed")
		return fmt.Errorf("crush execution failed: %w", err)
	}

	duration := time.Since(startTime)
	log.WithFields(map[string]interface{}{
		"agent_name": c.Name,
		"duration":   duration.String(),
		"lines":      lineCount,
	}).Info("crush streaming message completed")

	return nil
}

// filterRelevantMessages filters out this agent's own messages
// We exclude this agent's own messages to avoid showing Crush what it already said
func (c *CrushAgent) filterRelevantMessages(messages []agent.Message) []agent.Message {
	relevant := make([]agent.Message, 0, len(messages))

	for _, msg := range messages {
		// Skip this agent's own messages
		if msg.AgentName == c.Name || msg.AgentID == c.ID {
			continue
		}
		// Include messages from other agents and system messages
		relevant = append(relevant, msg)
	}

	return relevant
}

func (c *CrushAgent) buildPrompt(messages []agent.Message, isInitialSession bool) string {
	var prompt strings.Builder

	// PART 1: IDENTITY AND ROLE (always first)
	prompt.WriteString("AGENT SETUP:\n")
	prompt.WriteString(strings.Repeat("=", 60))
	prompt.WriteString("\n")
	prompt.WriteString(fmt.Sprintf("You are '%s' participating in a multi-agent conversation.\n\n", c.Name))

	if c.Config.Prompt != "" {
		prompt.WriteString("YOUR ROLE AND INSTRUCTIONS:\n")
		prompt.WriteString(c.Config.Prompt)
		prompt.WriteString("\n")
	}
	prompt.WriteString(strings.Repeat("=", 60))
	prompt.WriteString("\n\n")

	// PART 2: CONVERSATION CONTEXT (after role is established)
	if len(messages) > 0 {
		// Deliver ALL existing messages including initial prompt and all conversation
		var initialPrompt string
		var otherMessages []agent.Message

		// IMPORTANT: Find the orchestrator's initial prompt (AgentID/AgentName = "host" or "system")
		// Agent announcements are also system messages, but they come from specific agents
		for _, msg := range messages {
			if msg.Role == "system" && (msg.AgentID == "system" || msg.AgentID == "host" || msg.AgentName == "System" || msg.AgentName == "HOST") && initialPrompt == "" {
				// This is the orchestrator's initial prompt - show it prominently
				initialPrompt = msg.Content
			} else {
				// ALL other messages (agent announcements, other system messages, agent responses)
				otherMessages = append(otherMessages, msg)
			}
		}

		// Show the initial prompt as a DIRECT INSTRUCTION
		if initialPrompt != "" {
			prompt.WriteString("YOUR TASK - PLEASE RESPOND TO THIS:\n")
			prompt.WriteString(strings.Repeat("=", 60))
			prompt.WriteString("\n")
			prompt.WriteString(initialPrompt)
			prompt.WriteString("\n")
			prompt.WriteString(strings.Repeat("=", 60))
			prompt.WriteString("\n\n")
		}

		// Then show ALL remaining conversation (system messages + agent messages)
		if len(otherMessages) > 0 {
			prompt.WriteString("CONVERSATION SO FAR:\n")
			prompt.WriteString(strings.Repeat("-", 60))
			prompt.WriteString("\n")
			for _, msg := range otherMessages {
				timestamp := time.Unix(msg.Timestamp, 0).Format("15:04:05")
				// Include role indicator for system messages to make them clear
				if msg.Role == "system" {
					prompt.WriteString(fmt.Sprintf("[%s] SYSTEM: %s\n", timestamp, msg.Content))
				} else {
					prompt.WriteString(fmt.Sprintf("[%s] %s: %s\n", timestamp, msg.AgentName, msg.Content))
				}
			}
			prompt.WriteString(strings.Repeat("-", 60))
			prompt.WriteString("\n\n")
		}

		if initialPrompt != "" {
			prompt.WriteString(fmt.Sprintf("Now respond to the task above as %s. Provide a direct, thoughtful answer.", c.Name))
		} else {
			prompt.WriteString(fmt.Sprintf("Now, as %s, respond to the conversation.", c.Name))
		}
	}

	return prompt.String()
}

// cleanOutput removes system messages, prompts, and other noise from Crush output
func (c *CrushAgent) cleanOutput(output string) string {
	lines := strings.Split(output, "\n")
	cleanedLines := make([]string, 0, len(lines))

	for _, line := range lines {
		if c.shouldSkipLine(line) {
			continue
		}
		cleanedLines = append(cleanedLines, line)
	}

	return strings.TrimSpace(strings.Join(cleanedLines, "\n"))
}

// shouldSkipLine determines if a line should be filtered out from output
func (c *CrushAgent) shouldSkipLine(line string) bool {
	// Skip empty lines
	if strings.TrimSpace(line) == "" {
		return false // Keep empty lines for formatting
	}

	// Skip setup/initialization messages
	if strings.Contains(line, "Crush CLI") ||
		strings.Contains(line, "Loading") ||
		strings.Contains(line, "Initializing") {
		return true
	}

	// Skip API key prompts
	if strings.Contains(line, "API key") ||
		strings.Contains(line, "ANTHROPIC_API_KEY") ||
		strings.Contains(line, "OPENAI_API_KEY") {
		return true
	}

	return false
}

func init() {
	agent.RegisterFactory("crush", NewCrushAgent)
}
