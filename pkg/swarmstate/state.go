// Package swarmstate saves swarm runs to disk and loads them back for
// inspection, the same role pkg/conversation played for the teacher's
// turn-based chat transcripts, generalized to a strategy result plus the
// blackboard snapshot that produced it. A loaded state is not re-executed.
package swarmstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shawkym/agentpipe/pkg/config"
	"github.com/shawkym/agentpipe/pkg/coordinator"
	"github.com/shawkym/agentpipe/pkg/strategy"
)

// State is a saved swarm run: enough to inspect or replay the outcome of
// a strategy execution.
type State struct {
	Version string `json:"version"`
	SavedAt time.Time `json:"saved_at"`

	Config *config.Config `json:"config"`

	Result strategy.Result `json:"result"`

	// Blackboard is a snapshot of every section at save time.
	Blackboard map[string]interface{} `json:"blackboard"`

	Metadata StateMetadata `json:"metadata"`
}

// StateMetadata carries summary information about a saved run.
type StateMetadata struct {
	StartedAt   time.Time `json:"started_at"`
	Duration    int64     `json:"duration_ms"`
	AgentCount  int       `json:"agent_count"`
	Strategy    string    `json:"strategy"`
	Description string    `json:"description,omitempty"`
}

// NewState snapshots coord's blackboard and result into a State.
func NewState(coord *coordinator.Coordinator, result strategy.Result, cfg *config.Config, startedAt time.Time) *State {
	snapshot := make(map[string]interface{})
	for _, name := range coord.Blackboard.GetSections() {
		if section, err := coord.Blackboard.GetSection(name); err == nil {
			snapshot[name] = section.Data
		}
	}

	return &State{
		Version:    "1.0",
		SavedAt:    time.Now(),
		Config:     cfg,
		Result:     result,
		Blackboard: snapshot,
		Metadata: StateMetadata{
			StartedAt:  startedAt,
			Duration:   time.Since(startedAt).Milliseconds(),
			AgentCount: len(cfg.Agents),
			Strategy:   cfg.Swarm.Strategy,
		},
	}
}

// Save writes the state to path with 0600 permissions.
func (s *State) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	return nil
}

// LoadState loads a saved swarm state from path.
func LoadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}

	return &state, nil
}

// GetDefaultStateDir returns ~/.agentpipe/states.
func GetDefaultStateDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".agentpipe", "states"), nil
}

// GenerateStateFileName generates a timestamped state filename.
func GenerateStateFileName() string {
	return fmt.Sprintf("swarm-%s.json", time.Now().Format("20060102-150405"))
}

// ListStates lists saved state files in dir.
func ListStates(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	states := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".json" {
			states = append(states, filepath.Join(dir, entry.Name()))
		}
	}
	return states, nil
}

// StateInfo summarizes a saved state without requiring the caller to
// reparse the full result/blackboard payload.
type StateInfo struct {
	Path       string
	SavedAt    time.Time
	StartedAt  time.Time
	AgentCount int
	Strategy   string
}

// GetStateInfo reads summary information from a state file.
func GetStateInfo(path string) (*StateInfo, error) {
	state, err := LoadState(path)
	if err != nil {
		return nil, err
	}
	return &StateInfo{
		Path:       path,
		SavedAt:    state.SavedAt,
		StartedAt:  state.Metadata.StartedAt,
		AgentCount: state.Metadata.AgentCount,
		Strategy:   state.Metadata.Strategy,
	}, nil
}
