package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shawkym/agentpipe/pkg/log"
	"github.com/shawkym/agentpipe/pkg/swarmstate"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <state-file>",
	Short: "Inspect a saved swarm run",
	Long: `Resume loads and displays a previously saved swarm state file: the
strategy result, blackboard snapshot, and the configuration that produced it.

Example:
  agentpipe resume ~/.agentpipe/states/swarm-20231215-143022.json
  agentpipe resume --list  # List all saved states`,
	Args: cobra.MaximumNArgs(1),
	Run:  runResume,
}

var listStates bool

func init() {
	rootCmd.AddCommand(resumeCmd)

	resumeCmd.Flags().BoolVar(&listStates, "list", false, "List all saved swarm states")
}

func runResume(cmd *cobra.Command, args []string) {
	if listStates {
		listSavedStates()
		return
	}

	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Error: State file path required")
		fmt.Fprintln(os.Stderr, "Use 'agentpipe resume --list' to see available states")
		os.Exit(1)
	}

	statePath := args[0]

	log.WithField("state_path", statePath).Info("loading swarm state file")

	state, err := swarmstate.LoadState(statePath)
	if err != nil {
		log.WithError(err).WithField("state_path", statePath).Error("failed to load swarm state")
		fmt.Fprintf(os.Stderr, "Error loading state: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("📂 Loaded swarm state")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Saved at:    %s\n", state.SavedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Started at:  %s\n", state.Metadata.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Strategy:    %s\n", state.Metadata.Strategy)
	fmt.Printf("Agent count: %d\n", state.Metadata.AgentCount)

	if state.Config != nil && len(state.Config.Agents) > 0 {
		fmt.Println("\nAgents:")
		for _, a := range state.Config.Agents {
			fmt.Printf("  - %s (%s)\n", a.Name, a.Type)
		}
	}

	if state.Metadata.Description != "" {
		fmt.Printf("\nDescription: %s\n", state.Metadata.Description)
	}

	fmt.Println(strings.Repeat("=", 60))

	fmt.Println("\n💬 Result:")
	fmt.Println(strings.Repeat("-", 60))
	fmt.Println(state.Result.Output)
	fmt.Println(strings.Repeat("-", 60))

	if len(state.Result.AgentResults) > 0 {
		fmt.Println("\nPer-agent results:")
		for name, r := range state.Result.AgentResults {
			fmt.Printf("  - %s: %d tokens, $%.4f\n", name, r.Usage.TotalTokens, r.Usage.Cost)
		}
	}
}

func listSavedStates() {
	stateDir, err := swarmstate.GetDefaultStateDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting state directory: %v\n", err)
		os.Exit(1)
	}

	log.WithField("state_dir", stateDir).Debug("listing saved states")

	states, err := swarmstate.ListStates(stateDir)
	if err != nil {
		log.WithError(err).WithField("state_dir", stateDir).Error("failed to list states")
		fmt.Fprintf(os.Stderr, "Error listing states: %v\n", err)
		os.Exit(1)
	}

	if len(states) == 0 {
		fmt.Println("No saved swarm states found.")
		fmt.Printf("States are saved to: %s\n", stateDir)
		fmt.Println("\nTo save a swarm state, use:")
		fmt.Println("  agentpipe run -c config.yaml --save-state")
		return
	}

	fmt.Printf("📚 Saved swarm states (%d found):\n", len(states))
	fmt.Println(strings.Repeat("=", 60))

	for i, statePath := range states {
		info, err := swarmstate.GetStateInfo(statePath)
		if err != nil {
			log.WithError(err).WithField("state_path", statePath).Warn("failed to read state info")
			fmt.Printf("%d. %s (error reading info)\n", i+1, statePath)
			continue
		}

		fmt.Printf("\n%d. %s\n", i+1, statePath)
		fmt.Printf("   Saved:    %s\n", info.SavedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("   Strategy: %s\n", info.Strategy)
		fmt.Printf("   Agents:   %d\n", info.AgentCount)
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("\nTo inspect a state:")
	fmt.Println("  agentpipe resume <state-file>")
}
