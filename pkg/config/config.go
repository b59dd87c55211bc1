// Package config provides configuration management for AgentPipe.
// It defines the structure for YAML configuration files and handles
// loading, validation, and default value application.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/shawkym/agentpipe/pkg/agent"
)

// Config is the top-level configuration structure for AgentPipe.
// It defines agents, orchestration behavior, logging settings, and bridge streaming.
type Config struct {
	// Version is the configuration file format version
	Version string `yaml:"version"`
	// Agents is the list of agent configurations
	Agents []agent.AgentConfig `yaml:"agents"`
	// Orchestrator defines conversation orchestration settings
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	// Swarm defines which coordination strategy drives the agents and its
	// per-strategy options. When Strategy is empty, Orchestrator.Mode is
	// translated into the matching strategy for backward compatibility.
	Swarm SwarmConfig `yaml:"swarm"`
	// Logging defines logging behavior
	Logging LoggingConfig `yaml:"logging"`
	// Backplane defines the optional persisted-state mirror (Matrix/Synapse
	// room) that swarm events and results are mirrored to.
	Backplane BackplaneConfig `yaml:"backplane"`
}

// OrchestratorConfig defines how the orchestrator manages conversations.
type OrchestratorConfig struct {
	// Mode is the orchestration mode: "round-robin", "reactive", or "free-form"
	Mode string `yaml:"mode"`
	// MaxTurns is the maximum number of conversation turns (0 = unlimited)
	MaxTurns int `yaml:"max_turns"`
	// TurnTimeout is the maximum time an agent has to respond
	TurnTimeout time.Duration `yaml:"turn_timeout"`
	// ResponseDelay is the pause between agent responses
	ResponseDelay time.Duration `yaml:"response_delay"`
	// InitialPrompt is an optional starting prompt for the conversation
	InitialPrompt string `yaml:"initial_prompt"`
	// Summary defines conversation summary generation settings
	Summary SummaryConfig `yaml:"summary"`
}

// SummaryConfig defines conversation summary generation behavior.
type SummaryConfig struct {
	// Enabled determines if conversation summaries are generated (default: true)
	Enabled bool `yaml:"enabled"`
	// Agent is the agent type to use for summary generation (default: "gemini")
	Agent string `yaml:"agent"`
}

// LoggingConfig defines conversation logging behavior.
type LoggingConfig struct {
	// Enabled determines if conversation logging is active
	Enabled bool `yaml:"enabled"`
	// ChatLogDir is the directory where chat logs are stored
	ChatLogDir string `yaml:"chat_log_dir"`
	// LogFormat is either "text" or "json"
	LogFormat string `yaml:"log_format"`
	// ShowMetrics determines if token/cost metrics are logged
	ShowMetrics bool `yaml:"show_metrics"`
}

// BackplaneConfig defines Matrix (Synapse) integration settings.
// When enabled, agents map to Matrix users and conversations are mirrored to a room.
type BackplaneConfig struct {
	// Enabled determines if Matrix integration is active (disabled by default)
	Enabled bool `yaml:"enabled"`
	// AutoProvision creates temporary Matrix users for agents via admin API (default: false)
	AutoProvision bool `yaml:"auto_provision"`
	// Homeserver is the base URL for the Matrix homeserver (e.g., https://matrix.example.com)
	Homeserver string `yaml:"homeserver"`
	// ServerName is the Matrix server name (defaults to homeserver host)
	ServerName string `yaml:"server_name"`
	// Room is the room ID or alias to join (e.g., !roomid:example.com or #alias:example.com)
	Room string `yaml:"room"`
	// SyncTimeoutMs is the long-poll timeout for sync in milliseconds (default: 30000)
	SyncTimeoutMs int `yaml:"sync_timeout_ms"`
	// AdminAccessToken is the Synapse admin access token (required for auto-provision)
	AdminAccessToken string `yaml:"admin_access_token"`
	// AdminUserID is the Matrix admin user for auto-provisioning (optional, used to login)
	AdminUserID string `yaml:"admin_user_id"`
	// AdminPassword is the Matrix admin password for auto-provisioning (optional, used to login)
	AdminPassword string `yaml:"admin_password"`
	// UserPrefix is the prefix for auto-provisioned users (default: "agentpipe")
	UserPrefix string `yaml:"user_prefix"`
	// Cleanup removes auto-provisioned users on shutdown (default: true)
	Cleanup *bool `yaml:"cleanup"`
	// EraseOnCleanup marks users as GDPR-erased when deactivating (default: false)
	EraseOnCleanup *bool `yaml:"erase_on_cleanup"`
	// Listener defines the Matrix user used to listen for inbound messages
	Listener agent.BackplaneUserConfig `yaml:"listener"`
}

// SwarmConfig selects and configures a coordination strategy.
type SwarmConfig struct {
	// Strategy is one of: hierarchical, round-robin, consensus, auction,
	// pipeline, debate. Empty defers to Orchestrator.Mode.
	Strategy string `yaml:"strategy"`
	// Budget caps cumulative token/cost/time usage across the run (0 = unlimited).
	Budget BudgetConfig `yaml:"budget"`
	// Breaker configures the circuit breaker shared by every agent unless overridden.
	Breaker BreakerConfig `yaml:"breaker"`
	// Retry configures the default failure-handling policy.
	Retry RetryPolicyConfig `yaml:"retry"`
	// MaxConcurrency bounds parallel agent invocations (default 4).
	MaxConcurrency int `yaml:"max_concurrency"`

	Hierarchical HierarchicalStrategyConfig `yaml:"hierarchical"`
	RoundRobin   RoundRobinStrategyConfig   `yaml:"round_robin"`
	Consensus    ConsensusStrategyConfig    `yaml:"consensus"`
	Auction      AuctionStrategyConfig      `yaml:"auction"`
	Pipeline     PipelineStrategyConfig     `yaml:"pipeline"`
	Debate       DebateStrategyConfig       `yaml:"debate"`
}

// BudgetConfig caps cumulative resource usage for a swarm run.
type BudgetConfig struct {
	MaxTokens int           `yaml:"max_tokens"`
	MaxCost   float64       `yaml:"max_cost"`
	MaxTime   time.Duration `yaml:"max_time"`
}

// BreakerConfig configures the circuit breaker applied to every agent.
type BreakerConfig struct {
	Threshold        int           `yaml:"threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
	SuccessThreshold int           `yaml:"success_threshold"`
}

// RetryPolicyConfig configures the default per-agent failure policy.
type RetryPolicyConfig struct {
	// Action is one of: retry, failover, skip, abort (default: retry)
	Action string `yaml:"action"`
	// Backoff is one of: constant, linear, exponential (default: exponential)
	Backoff      string        `yaml:"backoff"`
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	FailoverName string        `yaml:"failover_name"`
}

// HierarchicalStrategyConfig configures the hierarchical strategy.
type HierarchicalStrategyConfig struct {
	MaxDelegationDepth  int    `yaml:"max_delegation_depth"`
	WorkerCommunication string `yaml:"worker_communication"`
	RouteThrough        string `yaml:"route_through"`
	Visibility          string `yaml:"visibility"`
}

// RoundRobinStrategyConfig configures the round-robin strategy.
type RoundRobinStrategyConfig struct {
	Sticky    bool   `yaml:"sticky"`
	StickyKey string `yaml:"sticky_key"` // "input" selects a built-in hash-of-input key func
	// Rotation is one of: sequential, random (default: sequential)
	Rotation string `yaml:"rotation"`
}

// ConsensusStrategyConfig configures the consensus strategy.
type ConsensusStrategyConfig struct {
	Threshold float64            `yaml:"threshold"`
	MaxRounds int                `yaml:"max_rounds"`
	// Resolution is one of: majority, unanimous, weighted (default: majority)
	Resolution string             `yaml:"resolution"`
	// OnNoConsensus is one of: fail, escalate, supervisor-decides, majority-rules, arbitrate
	OnNoConsensus string             `yaml:"on_no_consensus"`
	Weights       map[string]float64 `yaml:"weights"`
}

// AuctionStrategyConfig configures the auction strategy.
type AuctionStrategyConfig struct {
	// Bidding is one of: capability-match, custom (default: capability-match)
	Bidding string `yaml:"bidding"`
	// Selection is one of: highest-bid, weighted-random (default: highest-bid)
	Selection string  `yaml:"selection"`
	MinBid    float64 `yaml:"min_bid"`
}

// PipelineStageConfig configures one stage of the pipeline strategy.
type PipelineStageConfig struct {
	Name  string `yaml:"name"`
	Agent string `yaml:"agent"`
	Gate  bool   `yaml:"gate"`
	// OnFail is one of: abort, skip, retry-previous, or "goto:<stage>" (default: abort)
	OnFail     string `yaml:"on_fail"`
	MaxRetries int    `yaml:"max_retries"`
}

// PipelineStrategyConfig configures the pipeline strategy.
type PipelineStrategyConfig struct {
	Stages []PipelineStageConfig `yaml:"stages"`
}

// DebateStrategyConfig configures the debate strategy.
type DebateStrategyConfig struct {
	Rounds int `yaml:"rounds"`
	// Format is one of: structured, free-form (default: structured)
	Format string `yaml:"format"`
}

// NewDefaultConfig creates a configuration with sensible defaults.
// The default log directory is ~/.agentpipe/chats.
func NewDefaultConfig() *Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	defaultLogDir := fmt.Sprintf("%s/.agentpipe/chats", homeDir)

	return &Config{
		Version: "1.0",
		Agents:  []agent.AgentConfig{},
		Orchestrator: OrchestratorConfig{
			Mode:          "round-robin",
			MaxTurns:      10,
			TurnTimeout:   30 * time.Second,
			ResponseDelay: 1 * time.Second,
			Summary: SummaryConfig{
				Enabled: true,
				Agent:   "gemini",
			},
		},
		Logging: LoggingConfig{
			Enabled:     true,
			ChatLogDir:  defaultLogDir,
			LogFormat:   "text",
			ShowMetrics: false,
		},
		Backplane: BackplaneConfig{
			Enabled:        false,
			SyncTimeoutMs:  30000,
			UserPrefix:     "agentpipe",
			Cleanup:        boolPtr(true),
			EraseOnCleanup: boolPtr(false),
		},
	}
}

// LoadConfig loads and validates a configuration from a YAML file.
// It applies default values for any missing optional fields.
// Returns an error if the file cannot be read, parsed, or is invalid.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}

// SaveConfig writes the configuration to a YAML file.
// The file is created with 0600 permissions (read/write for owner only).
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for errors.
// It ensures at least one agent is configured, all required fields are present,
// agent IDs are unique, and the orchestration mode is valid.
func (c *Config) Validate() error {
	if len(c.Agents) == 0 {
		return fmt.Errorf("at least one agent must be configured")
	}

	agentIDs := make(map[string]bool)
	for _, agent := range c.Agents {
		if agent.ID == "" {
			return fmt.Errorf("agent ID cannot be empty")
		}
		if agent.Type == "" {
			return fmt.Errorf("agent type cannot be empty for agent %s", agent.ID)
		}
		if agent.Name == "" {
			return fmt.Errorf("agent name cannot be empty for agent %s", agent.ID)
		}
		if agentIDs[agent.ID] {
			return fmt.Errorf("duplicate agent ID: %s", agent.ID)
		}
		agentIDs[agent.ID] = true

		if agent.Type == "api" {
			if agent.APIEndpoint == "" {
				return fmt.Errorf("api_endpoint is required for api agent %s", agent.ID)
			}
			if agent.APIKey == "" {
				return fmt.Errorf("api_key is required for api agent %s", agent.ID)
			}
		}
	}

	validModes := map[string]bool{
		"round-robin": true,
		"reactive":    true,
		"free-form":   true,
	}

	if c.Orchestrator.Mode != "" && !validModes[c.Orchestrator.Mode] {
		return fmt.Errorf("invalid orchestrator mode: %s", c.Orchestrator.Mode)
	}

	validStrategies := map[string]bool{
		"": true, "hierarchical": true, "round-robin": true, "consensus": true,
		"auction": true, "pipeline": true, "debate": true,
	}
	if !validStrategies[c.Swarm.Strategy] {
		return fmt.Errorf("invalid swarm strategy: %s", c.Swarm.Strategy)
	}
	if c.Swarm.Strategy == "pipeline" && len(c.Swarm.Pipeline.Stages) == 0 {
		return fmt.Errorf("swarm.pipeline.stages must have at least one stage")
	}

	if c.Backplane.Enabled {
		adminToken := c.Backplane.AdminAccessToken
		if adminToken == "" {
			adminToken = os.Getenv("MATRIX_ADMIN_TOKEN")
		}
		adminUser := c.Backplane.AdminUserID
		if adminUser == "" {
			adminUser = os.Getenv("MATRIX_ADMIN_USER")
		}
		adminPassword := c.Backplane.AdminPassword
		if adminPassword == "" {
			adminPassword = os.Getenv("MATRIX_ADMIN_PASSWORD")
		}

		if c.Backplane.AutoProvision || adminToken != "" || (adminUser != "" && adminPassword != "") {
			if adminToken == "" && (adminUser == "" || adminPassword == "") {
				return fmt.Errorf("matrix admin access is required for auto-provisioning (set admin_access_token or admin_user_id/admin_password)")
			}
		} else {
			if c.Backplane.Homeserver == "" {
				return fmt.Errorf("matrix.homeserver is required when matrix is enabled (or set MATRIX_ADMIN_TOKEN for auto-provisioning)")
			}
			if c.Backplane.Room == "" {
				return fmt.Errorf("matrix.room is required when matrix is enabled (or set MATRIX_ADMIN_TOKEN for auto-provisioning)")
			}

			for _, agentCfg := range c.Agents {
				if agentCfg.Backplane.UserID == "" {
					return fmt.Errorf("matrix user_id is required for agent %s when matrix is enabled (or set MATRIX_ADMIN_TOKEN for auto-provisioning)", agentCfg.ID)
				}
				if agentCfg.Backplane.AccessToken == "" && agentCfg.Backplane.Password == "" {
					return fmt.Errorf("matrix access_token or password is required for agent %s when matrix is enabled (or set MATRIX_ADMIN_TOKEN for auto-provisioning)", agentCfg.ID)
				}
			}
		}
	}

	return nil
}

// nolint:gocyclo // Config defaults are inherently sequential; complexity is acceptable for readability
func (c *Config) applyDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}

	if c.Orchestrator.Mode == "" {
		c.Orchestrator.Mode = "round-robin"
	}

	if c.Orchestrator.MaxTurns == 0 {
		c.Orchestrator.MaxTurns = 10
	}

	if c.Orchestrator.TurnTimeout == 0 {
		c.Orchestrator.TurnTimeout = 30 * time.Second
	}

	if c.Orchestrator.ResponseDelay == 0 {
		c.Orchestrator.ResponseDelay = 1 * time.Second
	}

	// Summary defaults
	// Note: Enabled defaults to true (opt-out with --no-summary)
	if c.Orchestrator.Summary.Agent == "" {
		c.Orchestrator.Summary.Agent = "gemini"
		// Default enabled to true for new configs
		c.Orchestrator.Summary.Enabled = true
	}

	// Logging defaults
	if c.Logging.ChatLogDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = "."
		}
		c.Logging.ChatLogDir = fmt.Sprintf("%s/.agentpipe/chats", homeDir)
	}

	if c.Logging.LogFormat == "" {
		c.Logging.LogFormat = "text"
	}

	// Swarm defaults
	if c.Swarm.MaxConcurrency == 0 {
		c.Swarm.MaxConcurrency = 4
	}
	if c.Swarm.Retry.Action == "" {
		c.Swarm.Retry.Action = "retry"
	}
	if c.Swarm.Retry.Backoff == "" {
		c.Swarm.Retry.Backoff = "exponential"
	}
	if c.Swarm.Retry.MaxRetries == 0 {
		c.Swarm.Retry.MaxRetries = 2
	}
	if c.Swarm.Retry.InitialDelay == 0 {
		c.Swarm.Retry.InitialDelay = 500 * time.Millisecond
	}
	if c.Swarm.Retry.MaxDelay == 0 {
		c.Swarm.Retry.MaxDelay = 10 * time.Second
	}
	if c.Swarm.Breaker.Threshold == 0 {
		c.Swarm.Breaker.Threshold = 3
	}
	if c.Swarm.Breaker.ResetTimeout == 0 {
		c.Swarm.Breaker.ResetTimeout = 30 * time.Second
	}
	if c.Swarm.Breaker.SuccessThreshold == 0 {
		c.Swarm.Breaker.SuccessThreshold = 1
	}
	if c.Swarm.Consensus.Threshold == 0 {
		c.Swarm.Consensus.Threshold = 0.5
	}

	// Matrix defaults
	if c.Backplane.SyncTimeoutMs == 0 {
		c.Backplane.SyncTimeoutMs = 30000
	}
	if c.Backplane.UserPrefix == "" {
		c.Backplane.UserPrefix = "agentpipe"
	}
	if c.Backplane.AdminAccessToken == "" {
		if env := os.Getenv("MATRIX_ADMIN_TOKEN"); env != "" {
			c.Backplane.AdminAccessToken = env
		}
	}
	if c.Backplane.AdminUserID == "" {
		if env := os.Getenv("MATRIX_ADMIN_USER"); env != "" {
			c.Backplane.AdminUserID = env
		}
	}
	if c.Backplane.AdminPassword == "" {
		if env := os.Getenv("MATRIX_ADMIN_PASSWORD"); env != "" {
			c.Backplane.AdminPassword = env
		}
	}
	if c.Backplane.AdminAccessToken != "" {
		// Prefer auto-provisioning when admin token is available
		c.Backplane.AutoProvision = true
	}
	if c.Backplane.AdminUserID != "" && c.Backplane.AdminPassword != "" {
		c.Backplane.AutoProvision = true
	}
	if c.Backplane.Cleanup == nil {
		c.Backplane.Cleanup = boolPtr(true)
	}
	if c.Backplane.EraseOnCleanup == nil {
		c.Backplane.EraseOnCleanup = boolPtr(false)
	}

	for i := range c.Agents {
		// Only apply temperature default if not explicitly set (< 0 means not set)
		// Allow 0 as a valid temperature for deterministic outputs
		if c.Agents[i].Temperature < 0 {
			c.Agents[i].Temperature = 0.7
		}
		if c.Agents[i].MaxTokens == 0 {
			c.Agents[i].MaxTokens = 2000
		}
	}
}

func boolPtr(v bool) *bool {
	return &v
}
