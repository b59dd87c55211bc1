package strategy

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/shawkym/agentpipe/pkg/agent"
	"github.com/shawkym/agentpipe/pkg/coordinator"
	"github.com/shawkym/agentpipe/pkg/swarmerr"
)

// Resolution selects how a round's votes are tested for consensus.
type Resolution string

const (
	ResolutionMajority  Resolution = "majority"
	ResolutionUnanimous Resolution = "unanimous"
	ResolutionWeighted  Resolution = "weighted"
)

// NoConsensusAction selects what happens once maxRounds is exhausted
// without reaching consensus.
type NoConsensusAction string

const (
	NoConsensusFail             NoConsensusAction = "fail"
	NoConsensusEscalate         NoConsensusAction = "escalate"
	NoConsensusSupervisorDecides NoConsensusAction = "supervisor-decides"
	NoConsensusMajorityRules    NoConsensusAction = "majority-rules"
	NoConsensusArbitrate        NoConsensusAction = "arbitrate"
)

// ConsensusConfig configures the consensus strategy.
type ConsensusConfig struct {
	Threshold     float64
	MaxRounds     int
	Resolution    Resolution
	OnNoConsensus NoConsensusAction
	Weights       map[string]float64
}

// Consensus drives a multi-round vote among the non-supervisor agents
// until a resolution threshold is met or maxRounds is exhausted.
type Consensus struct {
	base
	cfg ConsensusConfig
}

var voteFirstPattern = regexp.MustCompile(`(?i)VOTE:\s*(.+)`)
var voteFallbackPattern = regexp.MustCompile(`(?i)(?:decision|vote|choose|select):\s*(.+)`)

// NewConsensus constructs a Consensus strategy requiring at least two
// non-supervisor agents.
func NewConsensus(coord *coordinator.Coordinator, cfg ConsensusConfig) (*Consensus, error) {
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 1
	}
	if cfg.Resolution == "" {
		cfg.Resolution = ResolutionMajority
	}
	if len(voters(coord)) < 2 {
		return nil, fmt.Errorf("%w: consensus requires at least two non-supervisor agents", swarmerr.ErrInvalidConfig)
	}
	return &Consensus{base: base{coord: coord}, cfg: cfg}, nil
}

func (c *Consensus) Name() string { return "consensus" }

func voters(coord *coordinator.Coordinator) []string {
	var out []string
	for _, n := range coord.AgentNames() {
		sa, _ := coord.GetAgent(n)
		if sa.Metadata.Role != agent.RoleSupervisor {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

type vote struct {
	agent     string
	decision  string
	timestamp time.Time
}

type roundRecord struct {
	round int
	votes []vote
}

func (c *Consensus) Execute(ctx context.Context, opts Options) (Result, error) {
	eligible := voters(c.coord)

	var history []roundRecord

	for r := 1; r <= c.cfg.MaxRounds; r++ {
		c.coord.Events.Emit("consensus:round", map[string]interface{}{"round": r}, "")

		prompt := buildConsensusPrompt(opts.Input, history, r)
		round := roundRecord{round: r}
		agentResults := make(map[string]agent.RunResult)

		for _, name := range eligible {
			result, err := c.coord.RunAgent(ctx, name, prompt)
			if err != nil {
				return Result{}, err
			}
			agentResults[name] = result
			decision := extractVote(result.Output)
			round.votes = append(round.votes, vote{agent: name, decision: decision, timestamp: time.Now()})
			c.coord.Events.Emit("consensus:vote", map[string]interface{}{"agent": name, "decision": decision, "round": r}, name)
		}
		history = append(history, round)

		if decision, ok := c.testConsensus(round, eligible); ok {
			c.coord.Events.Emit("consensus:reached", map[string]interface{}{"decision": decision, "round": r}, "")
			res := newResult(fmt.Sprintf("CONSENSUS REACHED: %s", decision))
			res.AgentResults = agentResults
			res.Byproducts["decision"] = decision
			res.Byproducts["rounds"] = r
			res.Byproducts["history"] = history
			return res, nil
		}
	}

	return c.resolveNoConsensus(ctx, opts, history, eligible)
}

func buildConsensusPrompt(input string, history []roundRecord, round int) string {
	if round == 1 {
		return input
	}
	var b strings.Builder
	b.WriteString(input)
	b.WriteString("\n\nPrior rounds:\n")

	start := len(history) - 4
	if start < 0 {
		start = 0
	}
	for _, r := range history[start:] {
		b.WriteString(fmt.Sprintf("Round %d votes:\n", r.round))
		for _, v := range r.votes {
			b.WriteString(fmt.Sprintf("- %s: %s\n", v.agent, v.decision))
		}
	}
	b.WriteString("\nCast your vote with a line starting with VOTE: <decision>.\n")
	return b.String()
}

func extractVote(output string) string {
	if m := voteFirstPattern.FindStringSubmatch(output); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := voteFallbackPattern.FindStringSubmatch(output); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func (c *Consensus) weightFor(name string, eligible []string) float64 {
	if w, ok := c.cfg.Weights[name]; ok {
		return w
	}
	sa, _ := c.coord.GetAgent(name)
	if sa.Metadata.Weight != 0 {
		return sa.Metadata.Weight
	}
	return 1
}

type tally struct {
	decision      string
	count         int
	weight        float64
	firstVoteTime time.Time
}

func (c *Consensus) tallyVotes(round roundRecord) []tally {
	tallies := map[string]*tally{}
	for _, v := range round.votes {
		key := strings.ToLower(strings.TrimSpace(v.decision))
		if key == "" {
			continue
		}
		t, ok := tallies[key]
		if !ok {
			t = &tally{decision: key, firstVoteTime: v.timestamp}
			tallies[key] = t
		}
		t.count++
		t.weight += c.weightFor(v.agent, nil)
		if v.timestamp.Before(t.firstVoteTime) {
			t.firstVoteTime = v.timestamp
		}
	}

	out := make([]tally, 0, len(tallies))
	for _, t := range tallies {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].firstVoteTime.Before(out[j].firstVoteTime)
	})
	return out
}

func (c *Consensus) testConsensus(round roundRecord, eligible []string) (string, bool) {
	tallies := c.tallyVotes(round)
	if len(tallies) == 0 {
		return "", false
	}
	top := tallies[0]
	total := len(round.votes)

	switch c.cfg.Resolution {
	case ResolutionUnanimous:
		if len(tallies) == 1 && top.count == len(eligible) {
			return top.decision, true
		}
	case ResolutionWeighted:
		var totalWeight float64
		for _, v := range round.votes {
			totalWeight += c.weightFor(v.agent, nil)
		}
		if totalWeight > 0 && top.weight/totalWeight >= c.cfg.Threshold {
			return top.decision, true
		}
	default: // majority
		if total > 0 && float64(top.count)/float64(total) >= c.cfg.Threshold {
			return top.decision, true
		}
	}
	return "", false
}

func (c *Consensus) resolveNoConsensus(ctx context.Context, opts Options, history []roundRecord, eligible []string) (Result, error) {
	last := history[len(history)-1]

	switch c.cfg.OnNoConsensus {
	case NoConsensusEscalate:
		res := newResult("ESCALATED: no consensus reached within configured rounds")
		res.Byproducts["history"] = history
		return res, nil
	case NoConsensusSupervisorDecides:
		supervisorName, _, err := findSupervisor(c.coord)
		if err != nil {
			return Result{}, err
		}
		summary := buildConsensusPrompt(opts.Input, history, len(history)+1)
		result, err := c.coord.RunAgent(ctx, supervisorName, "No consensus reached. Decide: "+summary)
		if err != nil {
			return Result{}, err
		}
		res := newResult(result.Output)
		res.AgentResults[supervisorName] = result
		res.Byproducts["history"] = history
		return res, nil
	case NoConsensusMajorityRules:
		tallies := c.tallyVotes(last)
		if len(tallies) == 0 {
			return Result{}, fmt.Errorf("%w: no votes cast", swarmerr.ErrNoConsensus)
		}
		res := newResult(fmt.Sprintf("MAJORITY RULES: %s", tallies[0].decision))
		res.Byproducts["decision"] = tallies[0].decision
		res.Byproducts["history"] = history
		return res, nil
	case NoConsensusArbitrate:
		tallies := c.tallyVotes(last)
		if len(tallies) == 0 {
			return Result{}, fmt.Errorf("%w: no votes cast", swarmerr.ErrNoConsensus)
		}
		res := newResult(fmt.Sprintf("ARBITRATED: %s", tallies[0].decision))
		res.Byproducts["decision"] = tallies[0].decision
		res.Byproducts["history"] = history
		return res, nil
	default: // fail
		return Result{}, fmt.Errorf("%w: after %d rounds", swarmerr.ErrNoConsensus, len(history))
	}
}
