// Package swarmbuild translates a pkg/config.Config into a wired
// coordinator.Coordinator and pkg/strategy.Strategy, the assembly step
// cmd/run.go needs.
package swarmbuild

import (
	"fmt"
	"time"

	"github.com/shawkym/agentpipe/pkg/agent"
	"github.com/shawkym/agentpipe/pkg/circuitbreaker"
	"github.com/shawkym/agentpipe/pkg/config"
	"github.com/shawkym/agentpipe/pkg/coordinator"
	"github.com/shawkym/agentpipe/pkg/resource"
	"github.com/shawkym/agentpipe/pkg/strategy"
	"github.com/shawkym/agentpipe/pkg/swarm"
)

// Build constructs a Coordinator from cfg and agents, registers every
// agent with the configured breaker/retry policy, builds the configured
// Strategy, and returns a ready-to-run Swarm.
func Build(cfg *config.Config, agents []agent.Agent, runner coordinator.Runner) (*swarm.Swarm, error) {
	coord := coordinator.New(coordinator.Options{
		SwarmName: "agentpipe",
		Runner:    runner,
		Limits: resource.Limits{
			MaxTokens: cfg.Swarm.Budget.MaxTokens,
			MaxCost:   cfg.Swarm.Budget.MaxCost,
			MaxTime:   cfg.Swarm.Budget.MaxTime,
		},
		DefaultPolicy: buildPolicy(cfg.Swarm.Retry, cfg.Orchestrator.TurnTimeout),
	})

	breakerCfg := circuitbreaker.Config{
		Threshold:        cfg.Swarm.Breaker.Threshold,
		ResetTimeout:     cfg.Swarm.Breaker.ResetTimeout,
		SuccessThreshold: cfg.Swarm.Breaker.SuccessThreshold,
	}

	policy := buildPolicy(cfg.Swarm.Retry, cfg.Orchestrator.TurnTimeout)
	for _, a := range agents {
		agentCfg := findAgentConfig(cfg, a.GetID())
		sa := agent.NewSwarmAgent(a, agent.Metadata{
			Role:      agentCfg.Role,
			Expertise: agentCfg.Capabilities,
			Weight:    agentCfg.Weight,
		})
		coord.RegisterAgent(a.GetName(), sa, &breakerCfg, &policy)
	}

	strat, err := buildStrategy(cfg, coord)
	if err != nil {
		return nil, fmt.Errorf("swarmbuild: %w", err)
	}

	return swarm.New(coord, strat), nil
}

func findAgentConfig(cfg *config.Config, id string) agent.AgentConfig {
	for _, a := range cfg.Agents {
		if a.ID == id {
			return a
		}
	}
	return agent.AgentConfig{}
}

func buildPolicy(cfg config.RetryPolicyConfig, perCallTimeout time.Duration) coordinator.FailurePolicy {
	action := coordinator.FailureRetry
	switch cfg.Action {
	case "failover":
		action = coordinator.FailureFailover
	case "skip":
		action = coordinator.FailureSkip
	case "abort":
		action = coordinator.FailureAbort
	}

	backoff := coordinator.BackoffExponential
	switch cfg.Backoff {
	case "constant":
		backoff = coordinator.BackoffConstant
	case "linear":
		backoff = coordinator.BackoffLinear
	}

	return coordinator.FailurePolicy{
		Action: action,
		Retry: coordinator.RetryConfig{
			MaxRetries:   cfg.MaxRetries,
			Backoff:      backoff,
			InitialDelay: cfg.InitialDelay,
			MaxDelay:     cfg.MaxDelay,
		},
		FailoverName:   cfg.FailoverName,
		PerCallTimeout: perCallTimeout,
	}
}

// strategyName resolves the effective strategy, translating the legacy
// Orchestrator.Mode values when Swarm.Strategy is unset.
func strategyName(cfg *config.Config) string {
	if cfg.Swarm.Strategy != "" {
		return cfg.Swarm.Strategy
	}
	switch cfg.Orchestrator.Mode {
	case "reactive":
		return "debate"
	default:
		return "round-robin"
	}
}

func buildStrategy(cfg *config.Config, coord *coordinator.Coordinator) (strategy.Strategy, error) {
	switch strategyName(cfg) {
	case "hierarchical":
		return strategy.NewHierarchical(coord, strategy.HierarchicalConfig{
			MaxDelegationDepth:  cfg.Swarm.Hierarchical.MaxDelegationDepth,
			WorkerCommunication: cfg.Swarm.Hierarchical.WorkerCommunication,
			RouteThrough:        cfg.Swarm.Hierarchical.RouteThrough,
			Visibility:          cfg.Swarm.Hierarchical.Visibility,
		})
	case "consensus":
		resolution := strategy.ResolutionMajority
		switch cfg.Swarm.Consensus.Resolution {
		case "unanimous":
			resolution = strategy.ResolutionUnanimous
		case "weighted":
			resolution = strategy.ResolutionWeighted
		}
		onNoConsensus := strategy.NoConsensusFail
		switch cfg.Swarm.Consensus.OnNoConsensus {
		case "escalate":
			onNoConsensus = strategy.NoConsensusEscalate
		case "supervisor-decides":
			onNoConsensus = strategy.NoConsensusSupervisorDecides
		case "majority-rules":
			onNoConsensus = strategy.NoConsensusMajorityRules
		case "arbitrate":
			onNoConsensus = strategy.NoConsensusArbitrate
		}
		return strategy.NewConsensus(coord, strategy.ConsensusConfig{
			Threshold:     cfg.Swarm.Consensus.Threshold,
			MaxRounds:     cfg.Swarm.Consensus.MaxRounds,
			Resolution:    resolution,
			OnNoConsensus: onNoConsensus,
			Weights:       cfg.Swarm.Consensus.Weights,
		})
	case "auction":
		bidding := strategy.BiddingCapabilityMatch
		if cfg.Swarm.Auction.Bidding == "custom" {
			bidding = strategy.BiddingCustom
		}
		selection := strategy.SelectionHighestBid
		if cfg.Swarm.Auction.Selection == "weighted-random" {
			selection = strategy.SelectionWeightedRandom
		}
		return strategy.NewAuction(coord, strategy.AuctionConfig{
			Bidding:   bidding,
			Selection: selection,
			MinBid:    cfg.Swarm.Auction.MinBid,
		})
	case "pipeline":
		stages := make([]strategy.Stage, 0, len(cfg.Swarm.Pipeline.Stages))
		gates := make(map[string]strategy.Gate)
		for _, s := range cfg.Swarm.Pipeline.Stages {
			stages = append(stages, strategy.Stage{Name: s.Name, Agent: s.Agent, Gate: s.Gate})
			if s.Gate {
				gates[s.Name] = strategy.Gate{
					OnFail:     strategy.GateFailAction(orDefault(s.OnFail, string(strategy.GateAbort))),
					MaxRetries: s.MaxRetries,
				}
			}
		}
		return strategy.NewPipeline(coord, strategy.PipelineConfig{Stages: stages, Gates: gates})
	case "debate":
		format := strategy.DebateStructured
		if cfg.Swarm.Debate.Format == "free-form" {
			format = strategy.DebateFreeForm
		}
		rounds := cfg.Swarm.Debate.Rounds
		if rounds == 0 {
			rounds = cfg.Orchestrator.MaxTurns
		}
		if rounds == 0 {
			rounds = 3
		}
		return strategy.NewDebate(coord, strategy.DebateConfig{Rounds: rounds, Format: format})
	default:
		rotation := strategy.RotationSequential
		if cfg.Swarm.RoundRobin.Rotation == "random" {
			rotation = strategy.RotationRandom
		}
		return strategy.NewRoundRobin(coord, strategy.RoundRobinConfig{
			Sticky:   cfg.Swarm.RoundRobin.Sticky,
			Rotation: rotation,
		})
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
