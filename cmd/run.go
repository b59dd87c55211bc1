package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/shawkym/agentpipe/internal/backplane"
	_ "github.com/shawkym/agentpipe/pkg/adapters"
	"github.com/shawkym/agentpipe/pkg/agent"
	"github.com/shawkym/agentpipe/pkg/config"
	"github.com/shawkym/agentpipe/pkg/coordinator"
	"github.com/shawkym/agentpipe/pkg/events"
	"github.com/shawkym/agentpipe/pkg/log"
	"github.com/shawkym/agentpipe/pkg/logger"
	"github.com/shawkym/agentpipe/pkg/metrics"
	"github.com/shawkym/agentpipe/pkg/middleware"
	"github.com/shawkym/agentpipe/pkg/runner"
	"github.com/shawkym/agentpipe/pkg/strategy"
	"github.com/shawkym/agentpipe/pkg/swarmbuild"
	"github.com/shawkym/agentpipe/pkg/swarmstate"
	"github.com/shawkym/agentpipe/pkg/tui"
)

var (
	configPath         string
	agents             []string
	strategyName       string
	maxTurns           int
	turnTimeout        int
	initialPrompt      string
	healthCheckTimeout int
	chatLogDir         string
	disableLogging     bool
	showMetrics        bool
	saveState          bool
	stateFile          string
	jsonOutput         bool
	metricsAddr        string
	useTUI             bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a coordination strategy across multiple AI agents",
	Long: `Run starts a swarm of AI agents under a coordination strategy
(hierarchical, round-robin, consensus, auction, pipeline, or debate). You can
specify agents directly via command line flags or use a YAML configuration
file that also configures the strategy.`,
	Run: runSwarm,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	runCmd.Flags().StringSliceVarP(&agents, "agents", "a", []string{}, "Agents to use (e.g., claude:Assistant1,gemini:Assistant2)")
	runCmd.Flags().StringVarP(&strategyName, "strategy", "s", "", "Coordination strategy (hierarchical, round-robin, consensus, auction, pipeline, debate)")
	runCmd.Flags().IntVar(&maxTurns, "max-turns", 0, "Maximum debate rounds (debate strategy only)")
	runCmd.Flags().IntVar(&turnTimeout, "timeout", 30, "Per-agent invocation timeout in seconds")
	runCmd.Flags().StringVarP(&initialPrompt, "prompt", "p", "", "Input to give the swarm")
	runCmd.Flags().Bool("skip-health-check", false, "Skip agent health checks (not recommended)")
	runCmd.Flags().IntVar(&healthCheckTimeout, "health-check-timeout", 5, "Health check timeout in seconds")
	runCmd.Flags().StringVar(&chatLogDir, "log-dir", "", "Directory to save run logs (default: ~/.agentpipe/chats)")
	runCmd.Flags().BoolVar(&disableLogging, "no-log", false, "Disable run logging")
	runCmd.Flags().BoolVar(&showMetrics, "metrics", false, "Show response metrics (duration, tokens, cost)")
	runCmd.Flags().BoolVar(&saveState, "save-state", false, "Save swarm state on exit (to ~/.agentpipe/states)")
	runCmd.Flags().StringVar(&stateFile, "state-file", "", "Specific file path to save swarm state")
	runCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output events in JSON format (JSONL)")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address (e.g., :9090); disabled if empty")
	runCmd.Flags().BoolVar(&useTUI, "tui", false, "Watch the run in a live terminal dashboard instead of plain stdout")
}

func runSwarm(cobraCmd *cobra.Command, args []string) {
	var cfg *config.Config
	var err error

	if configPath != "" {
		log.WithField("config_path", configPath).Debug("loading configuration from file")
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			log.WithError(err).WithField("config_path", configPath).Error("failed to load configuration")
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	} else if len(agents) > 0 {
		cfg = config.NewDefaultConfig()
		for i, agentSpec := range agents {
			agentCfg, specErr := parseAgentSpec(agentSpec, i)
			if specErr != nil {
				log.WithError(specErr).WithField("agent_spec", agentSpec).Error("failed to parse agent specification")
				fmt.Fprintf(os.Stderr, "Error parsing agent spec: %v\n", specErr)
				os.Exit(1)
			}
			cfg.Agents = append(cfg.Agents, agentCfg)
		}
	} else {
		log.Error("no configuration source specified (need --config or --agents)")
		fmt.Fprintf(os.Stderr, "Error: Either --config or --agents must be specified\n")
		os.Exit(1)
	}

	if strategyName != "" {
		cfg.Swarm.Strategy = strategyName
	}
	if maxTurns > 0 {
		cfg.Swarm.Debate.Rounds = maxTurns
		cfg.Orchestrator.MaxTurns = maxTurns
	}
	if initialPrompt != "" {
		cfg.Orchestrator.InitialPrompt = initialPrompt
	}
	if cobraCmd.Flags().Changed("timeout") {
		cfg.Orchestrator.TurnTimeout = time.Duration(turnTimeout) * time.Second
	}
	if disableLogging {
		cfg.Logging.Enabled = false
	}
	if chatLogDir != "" {
		cfg.Logging.ChatLogDir = chatLogDir
		cfg.Logging.Enabled = true
	}
	if showMetrics {
		cfg.Logging.ShowMetrics = true
	}

	if err := startSwarm(cobraCmd, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseAgentSpec(spec string, index int) (agent.AgentConfig, error) {
	agentType, model, name, err := parseAgentSpecWithModel(spec)
	if err != nil {
		return agent.AgentConfig{}, fmt.Errorf("invalid agent specification '%s': %w", spec, err)
	}
	if name == "" {
		name = fmt.Sprintf("%s-agent-%d", agentType, index+1)
	}
	return agent.AgentConfig{
		ID:    fmt.Sprintf("%s-%d", agentType, index),
		Type:  agentType,
		Name:  name,
		Model: model,
	}, nil
}

// agentTypeFor looks up the configured agent type for a metrics label,
// falling back to "unknown" for names not present in cfg.Agents.
func agentTypeFor(cfg *config.Config, name string) string {
	for _, a := range cfg.Agents {
		if a.Name == name {
			return a.Type
		}
	}
	return "unknown"
}

func startSwarm(cmd *cobra.Command, cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gracefulShutdown := false
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\n\n⏸️  Interrupted. Shutting down gracefully...")
		gracefulShutdown = true
		cancel()
	}()

	verbose := viper.GetBool("verbose")

	if !jsonOutput {
		fmt.Println("🔍 Initializing agents...")
	}

	agentsList := make([]agent.Agent, 0, len(cfg.Agents))
	skipHealthCheck, _ := cmd.Flags().GetBool("skip-health-check")

	for _, agentCfg := range cfg.Agents {
		a, err := agent.CreateAgent(agentCfg)
		if err != nil {
			return fmt.Errorf("failed to create agent %s: %w", agentCfg.Name, err)
		}
		if !a.IsAvailable() {
			return fmt.Errorf("agent %s (type: %s) is not available - please run 'agentpipe doctor'", agentCfg.Name, agentCfg.Type)
		}

		if !skipHealthCheck {
			timeout := time.Duration(healthCheckTimeout) * time.Second
			if timeout == 0 {
				timeout = 5 * time.Second
			}
			healthCtx, hcCancel := context.WithTimeout(context.Background(), timeout)
			err = a.HealthCheck(healthCtx)
			hcCancel()
			if err != nil {
				return fmt.Errorf("agent %s failed health check: %w", agentCfg.Name, err)
			}
		} else if verbose {
			fmt.Printf("  ⚠️  Skipping health check for %s\n", agentCfg.Name)
		}

		agentsList = append(agentsList, a)
	}

	if len(agentsList) == 0 {
		return fmt.Errorf("no agents configured")
	}

	if !jsonOutput {
		fmt.Printf("✅ All %d agents initialized successfully\n\n", len(agentsList))
	}

	var chatLogger *logger.ChatLogger
	if cfg.Logging.Enabled {
		var consoleWriter io.Writer = os.Stdout
		if jsonOutput {
			consoleWriter = nil
		}
		var err error
		chatLogger, err = logger.NewChatLogger(cfg.Logging.ChatLogDir, cfg.Logging.LogFormat, consoleWriter, cfg.Logging.ShowMetrics)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: Failed to create chat logger: %v\n", err)
		} else {
			defer chatLogger.Close()
			if jsonOutput {
				chatLogger.SetJSONWriter(os.Stdout)
			}
		}
	}

	chain := middleware.NewChain()
	agentRunner := runner.NewAgentRunner(chain)

	sw, err := swarmbuild.Build(cfg, agentsList, agentRunner)
	if err != nil {
		return fmt.Errorf("failed to build swarm: %w", err)
	}

	if chatLogger != nil {
		sw.Events().On("agent:start", func(ev events.Event) {
			chatLogger.LogSystem(fmt.Sprintf("%s is working...", ev.AgentName))
		})
		sw.Events().On("agent:error", func(ev events.Event) {
			chatLogger.LogError(ev.AgentName, fmt.Errorf("%v", ev.Data))
		})
	}

	// Backplane mirror is entirely optional: the coordinator runs
	// single-process whether or not it's configured.
	var bridge *backplane.Bridge
	if cfg.Backplane.Enabled {
		bridge, err = backplane.NewBridge(cfg.Backplane, cfg.Agents)
		if err != nil {
			return fmt.Errorf("failed to start backplane mirror: %w", err)
		}
		defer bridge.Close()
		bridge.Start(ctx, nil)

		sw.Events().On("agent:complete", func(ev events.Event) {
			data, ok := ev.Data.(map[string]interface{})
			if !ok {
				return
			}
			r, ok := data["result"].(agent.RunResult)
			if !ok {
				return
			}
			bridge.Send(agent.Message{
				AgentID:   ev.AgentName,
				AgentName: ev.AgentName,
				Content:   r.Output,
				Role:      "agent",
				Timestamp: time.Now().Unix(),
			})
		})
	}

	if metricsAddr != "" {
		metricsServer := metrics.NewServer(metrics.ServerConfig{Addr: metricsAddr})
		go func() {
			if srvErr := metricsServer.Start(); srvErr != nil {
				log.WithError(srvErr).Warn("metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = metricsServer.Stop(shutdownCtx)
		}()

		m := metricsServer.GetMetrics()
		m.SetActiveSwarms(1)

		for _, agentCfg := range cfg.Agents {
			m.SetBreakerState(agentCfg.Name, metrics.BreakerClosed)
		}

		sw.Events().On("agent:complete", func(ev events.Event) {
			data, ok := ev.Data.(map[string]interface{})
			if !ok {
				return
			}
			r, ok := data["result"].(agent.RunResult)
			if !ok {
				return
			}
			agentType := agentTypeFor(cfg, ev.AgentName)
			m.RecordAgentRun(ev.AgentName, agentType, "success", r.Usage.Duration, r.Usage.TotalTokens, r.Usage.Cost, len(r.Output))
		})
		sw.Events().On("agent:error", func(ev events.Event) {
			m.RecordAgentError(ev.AgentName, agentTypeFor(cfg, ev.AgentName))
		})
		sw.Events().On("agent:retry", func(ev events.Event) {
			m.IncRetryAttempt(ev.AgentName)
		})
		sw.Events().On("agent:complete", func(ev events.Event) {
			for kind, ratio := range sw.Coordinator().Resources.UsedRatio() {
				m.SetResourceBudgetUsed(kind, ratio)
			}
		})
		sw.Events().On("*", func(ev events.Event) {
			if strings.HasSuffix(ev.Type, ":round") || strings.HasSuffix(ev.Type, ":stage") {
				m.IncStrategyRound(cfg.Swarm.Strategy)
			}
		})
	}

	log.WithFields(map[string]interface{}{
		"strategy":    cfg.Swarm.Strategy,
		"agent_count": len(agentsList),
	}).Info("starting agentpipe swarm")

	var result strategy.Result
	var runErr error

	if useTUI {
		result, runErr = tui.Run(ctx, sw, cfg.Orchestrator.InitialPrompt)
	} else {
		if !jsonOutput {
			fmt.Println("🚀 Starting AgentPipe swarm...")
			fmt.Printf("Strategy: %s | Agents: %d\n", cfg.Swarm.Strategy, len(agentsList))
			fmt.Println(strings.Repeat("=", 60))
		}
		result, runErr = sw.Run(ctx, cfg.Orchestrator.InitialPrompt)
	}

	if runErr != nil {
		log.WithError(runErr).Error("swarm run failed")
	} else {
		log.Info("swarm run completed successfully")
		if chatLogger != nil {
			for name, r := range result.AgentResults {
				chatLogger.LogMessage(agent.Message{
					AgentID:   name,
					AgentName: name,
					Content:   r.Output,
					Role:      "agent",
					Timestamp: time.Now().Unix(),
					Metrics: &agent.ResponseMetrics{
						Duration:    r.Usage.Duration,
						TotalTokens: r.Usage.TotalTokens,
						Cost:        r.Usage.Cost,
					},
				})
			}
		}
	}

	if !jsonOutput && !useTUI {
		fmt.Println("\n" + strings.Repeat("=", 60))
		if gracefulShutdown {
			fmt.Println("📊 Session Summary (Interrupted)")
		} else if runErr != nil {
			fmt.Println("📊 Session Summary (Ended with Error)")
		} else {
			fmt.Println("📊 Session Summary (Completed)")
		}
		fmt.Println(strings.Repeat("=", 60))
		fmt.Println(result.Output)
	}

	if saveState || stateFile != "" {
		if saveErr := saveSwarmState(sw.Coordinator(), result, cfg, stateFile); saveErr != nil {
			log.WithError(saveErr).Error("failed to save swarm state")
			fmt.Fprintf(os.Stderr, "Warning: Failed to save swarm state: %v\n", saveErr)
		}
	}

	if runErr != nil {
		return fmt.Errorf("swarm run error: %w", runErr)
	}
	return nil
}

// saveSwarmState snapshots the swarm's blackboard and the strategy result
// to disk, at stateFile if given, otherwise the default state directory.
func saveSwarmState(coord *coordinator.Coordinator, result strategy.Result, cfg *config.Config, stateFilePath string) error {
	state := swarmstate.NewState(coord, result, cfg, time.Now())

	var savePath string
	if stateFilePath != "" {
		savePath = stateFilePath
	} else {
		stateDir, err := swarmstate.GetDefaultStateDir()
		if err != nil {
			return fmt.Errorf("failed to get state directory: %w", err)
		}
		savePath = filepath.Join(stateDir, swarmstate.GenerateStateFileName())
	}

	if err := state.Save(savePath); err != nil {
		return err
	}

	fmt.Printf("\n💾 Swarm state saved to: %s\n", savePath)
	return nil
}
