package strategy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shawkym/agentpipe/pkg/agent"
	"github.com/shawkym/agentpipe/pkg/coordinator"
	"github.com/shawkym/agentpipe/pkg/messagebus"
	"github.com/shawkym/agentpipe/pkg/swarmerr"
)

// DebateFormat selects the turn-construction style for debate prompts.
type DebateFormat string

const (
	DebateStructured DebateFormat = "structured"
	DebateFreeForm   DebateFormat = "free-form"
)

// DebateConfig configures the debate strategy.
type DebateConfig struct {
	Rounds int
	Format DebateFormat
}

// Debate runs advocates and critics through Rounds of argument, then
// synthesizes a final answer via a moderator if one is registered.
type Debate struct {
	base
	cfg DebateConfig
}

// NewDebate constructs a Debate strategy requiring at least two debaters:
// advocate/critic agents when any are registered, otherwise all
// non-moderator agents.
func NewDebate(coord *coordinator.Coordinator, cfg DebateConfig) (*Debate, error) {
	if cfg.Rounds <= 0 {
		return nil, fmt.Errorf("%w: debate requires rounds > 0", swarmerr.ErrInvalidConfig)
	}
	if cfg.Format == "" {
		cfg.Format = DebateStructured
	}
	if len(debaters(coord)) < 2 {
		return nil, fmt.Errorf("%w: debate requires at least two non-moderator agents", swarmerr.ErrInvalidConfig)
	}
	return &Debate{base: base{coord: coord}, cfg: cfg}, nil
}

func (d *Debate) Name() string { return "debate" }

func debaters(coord *coordinator.Coordinator) []string {
	var advocatesCritics []string
	var everyoneElse []string
	for _, n := range coord.AgentNames() {
		sa, _ := coord.GetAgent(n)
		switch sa.Metadata.Role {
		case agent.RoleAdvocate, agent.RoleCritic:
			advocatesCritics = append(advocatesCritics, n)
		case agent.RoleModerator:
			// excluded
		default:
			everyoneElse = append(everyoneElse, n)
		}
	}
	if len(advocatesCritics) > 0 {
		sort.Strings(advocatesCritics)
		return advocatesCritics
	}
	sort.Strings(everyoneElse)
	return everyoneElse
}

func moderator(coord *coordinator.Coordinator) (string, bool) {
	for _, n := range coord.AgentNames() {
		sa, _ := coord.GetAgent(n)
		if sa.Metadata.Role == agent.RoleModerator {
			return n, true
		}
	}
	return "", false
}

func (d *Debate) Execute(ctx context.Context, opts Options) (Result, error) {
	names := debaters(d.coord)
	res := newResult("")

	var transcript []messagebus.Message

	for r := 1; r <= d.cfg.Rounds; r++ {
		d.coord.Events.Emit("debate:round", map[string]interface{}{"round": r}, "")

		for _, name := range names {
			d.coord.Events.Emit("debate:turn", map[string]interface{}{"round": r, "agent": name}, name)

			sa, _ := d.coord.GetAgent(name)
			prompt := buildDebatePrompt(opts.Input, transcript, r, d.cfg.Format)

			result, err := d.coord.RunAgent(ctx, name, prompt)
			if err != nil {
				return Result{}, err
			}
			res.AgentResults[name] = result

			transcript = append(transcript, messagebus.Message{
				From:    name,
				Content: result.Output,
				Type:    messagebus.TypeNotification,
				Metadata: map[string]interface{}{
					"round": r,
					"role":  string(sa.Metadata.Role),
				},
			})
		}
	}

	if modName, ok := moderator(d.coord); ok {
		synthesisPrompt := buildSynthesisPrompt(opts.Input, transcript)
		result, err := d.coord.RunAgent(ctx, modName, synthesisPrompt)
		if err != nil {
			return Result{}, err
		}
		res.AgentResults[modName] = result
		res.Output = result.Output
	} else {
		res.Output = formatDebateSummary(transcript)
	}

	res.Byproducts["transcript"] = transcript
	return res, nil
}

func buildDebatePrompt(input string, transcript []messagebus.Message, round int, format DebateFormat) string {
	if round == 1 && len(transcript) == 0 {
		return input
	}
	var b strings.Builder
	b.WriteString("Continue the debate.\n\n")
	if format == DebateStructured {
		b.WriteString("Respond in structured form: a clear position followed by supporting points.\n\n")
	}
	b.WriteString("Transcript so far:\n")
	for _, m := range transcript {
		role := ""
		if m.Metadata != nil {
			if r, ok := m.Metadata["role"].(string); ok {
				role = r
			}
		}
		b.WriteString(fmt.Sprintf("[%s/%s]: %s\n", m.From, role, m.Content))
	}
	b.WriteString(fmt.Sprintf("\nOriginal topic: %s\n", input))
	return b.String()
}

func buildSynthesisPrompt(input string, transcript []messagebus.Message) string {
	var b strings.Builder
	b.WriteString("Synthesize a final answer from the following debate.\n\n")
	b.WriteString(fmt.Sprintf("Topic: %s\n\n", input))
	for _, m := range transcript {
		b.WriteString(fmt.Sprintf("- %s: %s\n", m.From, m.Content))
	}
	return b.String()
}

func formatDebateSummary(transcript []messagebus.Message) string {
	byAgent := make(map[string][]string)
	var order []string
	for _, m := range transcript {
		if _, seen := byAgent[m.From]; !seen {
			order = append(order, m.From)
		}
		byAgent[m.From] = append(byAgent[m.From], m.Content)
	}

	var b strings.Builder
	b.WriteString("DEBATE SUMMARY\n")
	for _, name := range order {
		b.WriteString(fmt.Sprintf("\n%s:\n", name))
		for _, arg := range byAgent[name] {
			b.WriteString(fmt.Sprintf("- %s\n", arg))
		}
	}
	return b.String()
}
