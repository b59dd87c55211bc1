package strategy

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/shawkym/agentpipe/pkg/coordinator"
	"github.com/shawkym/agentpipe/pkg/swarmerr"
)

// Bidding selects how bids are collected.
type Bidding string

const (
	BiddingCapabilityMatch Bidding = "capability-match"
	BiddingCustom          Bidding = "custom"
)

// Selection selects how the winning bid is chosen.
type Selection string

const (
	SelectionHighestBid     Selection = "highest-bid"
	SelectionWeightedRandom Selection = "weighted-random"
)

// BidFunc computes a custom bid score (and optional reasoning) for an
// agent, used when Bidding is BiddingCustom.
type BidFunc func(ctx context.Context, agentName string, input string) (score float64, reasoning string, err error)

// AuctionConfig configures the auction strategy.
type AuctionConfig struct {
	Bidding   Bidding
	BidFunc   BidFunc
	Selection Selection
	MinBid    float64
}

// Bid is one agent's self-assessment for a task.
type Bid struct {
	Agent        string
	Score        float64
	Capabilities []string
	Reasoning    string
}

// Auction collects a bid from every agent and invokes the winner.
type Auction struct {
	base
	cfg AuctionConfig
}

var scorePattern = regexp.MustCompile(`(?i)SCORE:\s*([0-9.]+)`)
var capabilitiesPattern = regexp.MustCompile(`(?i)CAPABILITIES:\s*(.+)`)
var reasoningPattern = regexp.MustCompile(`(?i)REASONING:\s*(.+)`)

// NewAuction constructs an Auction strategy requiring at least one agent.
func NewAuction(coord *coordinator.Coordinator, cfg AuctionConfig) (*Auction, error) {
	if len(coord.AgentNames()) == 0 {
		return nil, swarmerr.ErrNoAgents
	}
	if cfg.Selection == "" {
		cfg.Selection = SelectionHighestBid
	}
	if cfg.Bidding == "" {
		cfg.Bidding = BiddingCapabilityMatch
	}
	if cfg.Bidding == BiddingCustom && cfg.BidFunc == nil {
		return nil, fmt.Errorf("%w: auction bidding=custom requires a BidFunc", swarmerr.ErrInvalidConfig)
	}
	return &Auction{base: base{coord: coord}, cfg: cfg}, nil
}

func (a *Auction) Name() string { return "auction" }

func (a *Auction) Execute(ctx context.Context, opts Options) (Result, error) {
	names := a.coord.AgentNames()

	a.coord.Blackboard.Write("auction", "bidding", "system")
	a.coord.Events.Emit("auction:start", map[string]interface{}{"participants": len(names)}, "")

	bids := a.collectBids(ctx, names, opts.Input)

	var valid []Bid
	for _, b := range bids {
		if b.Score >= a.cfg.MinBid {
			valid = append(valid, b)
		}
	}
	if len(valid) == 0 {
		return Result{}, swarmerr.ErrNoBids
	}

	a.coord.Blackboard.Write("auction", "selecting", "system")
	winner := a.selectWinner(valid)
	a.coord.Events.Emit("auction:winner", map[string]interface{}{"agent": winner.Agent, "score": winner.Score}, winner.Agent)

	a.coord.Blackboard.Write("auction", "executing", "system")
	winInput := withAuctionContext(winner, bids, opts.Input)
	winResult, err := a.coord.RunAgent(ctx, winner.Agent, winInput)
	if err != nil {
		return Result{}, err
	}

	a.coord.Blackboard.Write("auction", "completed", "system")
	a.coord.Events.Emit("auction:complete", map[string]interface{}{"winner": winner.Agent}, winner.Agent)

	res := newResult(winResult.Output)
	res.AgentResults[winner.Agent] = winResult

	bidMap := make(map[string]float64, len(bids))
	for _, b := range bids {
		bidMap[b.Agent] = b.Score
	}
	res.Byproducts["bids"] = bidMap
	res.Byproducts["auctionWinner"] = winner.Agent
	return res, nil
}

// withAuctionContext prepends the auction outcome to the original task so
// the winner knows it won, its score, and what it was up against.
func withAuctionContext(winner Bid, bids []Bid, input string) string {
	var b strings.Builder
	b.WriteString("You won this task's auction.\n")
	b.WriteString(fmt.Sprintf("Your bid score: %.2f\n", winner.Score))
	b.WriteString(fmt.Sprintf("Total participants: %d\n", len(bids)))
	if len(bids) > 1 {
		b.WriteString("Competing bids:\n")
		for _, bid := range bids {
			if bid.Agent == winner.Agent {
				continue
			}
			b.WriteString(fmt.Sprintf("- %s: %.2f\n", bid.Agent, bid.Score))
		}
	}
	b.WriteString("\nTask: ")
	b.WriteString(input)
	return b.String()
}

func (a *Auction) collectBids(ctx context.Context, names []string, input string) []Bid {
	bids := make([]Bid, len(names))
	var wg sync.WaitGroup
	for i, name := range names {
		i, name := i, name
		wg.Add(1)
		go func() {
			defer wg.Done()
			bids[i] = a.collectBid(ctx, name, input)
			a.coord.Events.Emit("auction:bid", map[string]interface{}{"agent": name, "score": bids[i].Score}, name)
		}()
	}
	wg.Wait()
	return bids
}

func (a *Auction) collectBid(ctx context.Context, name string, input string) Bid {
	if a.cfg.Bidding == BiddingCustom {
		score, reasoning, err := a.cfg.BidFunc(ctx, name, input)
		if err != nil {
			return Bid{Agent: name, Score: 0}
		}
		return Bid{Agent: name, Score: clamp01(score), Reasoning: reasoning}
	}

	prompt := fmt.Sprintf(
		"Assess your fit for this task and respond with exactly:\nSCORE: <0..1>\nCAPABILITIES: <comma-separated>\nREASONING: <one sentence>\n\nTask: %s",
		input,
	)
	result, err := a.coord.RunAgent(ctx, name, prompt)
	if err != nil {
		return Bid{Agent: name, Score: 0}
	}
	return parseBid(name, result.Output)
}

func parseBid(name, output string) Bid {
	score := 0.5
	if m := scorePattern.FindStringSubmatch(output); m != nil {
		if parsed, err := strconv.ParseFloat(m[1], 64); err == nil && !math.IsNaN(parsed) {
			score = clamp01(parsed)
		}
	}

	var caps []string
	if m := capabilitiesPattern.FindStringSubmatch(output); m != nil {
		for _, c := range strings.Split(m[1], ",") {
			if t := strings.TrimSpace(c); t != "" {
				caps = append(caps, t)
			}
		}
	}

	reasoning := ""
	if m := reasoningPattern.FindStringSubmatch(output); m != nil {
		reasoning = strings.TrimSpace(m[1])
	}

	return Bid{Agent: name, Score: score, Capabilities: caps, Reasoning: reasoning}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (a *Auction) selectWinner(bids []Bid) Bid {
	if a.cfg.Selection == SelectionWeightedRandom {
		return weightedRandomPick(bids)
	}
	best := bids[0]
	for _, b := range bids[1:] {
		if b.Score > best.Score {
			best = b
		}
	}
	return best
}

func weightedRandomPick(bids []Bid) Bid {
	var total float64
	for _, b := range bids {
		total += b.Score
	}
	if total == 0 {
		return bids[rand.Intn(len(bids))]
	}
	r := rand.Float64() * total
	var cum float64
	for _, b := range bids {
		cum += b.Score
		if r <= cum {
			return b
		}
	}
	return bids[len(bids)-1]
}
