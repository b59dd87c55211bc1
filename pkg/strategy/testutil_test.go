package strategy

import (
	"context"
	"io"

	"github.com/shawkym/agentpipe/pkg/agent"
)

// stubAgent is the minimal agent.Agent fake used by strategy tests that
// need a scripted runner to tell agents apart by name.
type stubAgent struct {
	name string
}

func (s *stubAgent) GetID() string                                  { return s.name }
func (s *stubAgent) GetName() string                                { return s.name }
func (s *stubAgent) GetType() string                                { return "stub" }
func (s *stubAgent) GetModel() string                                { return "stub-model" }
func (s *stubAgent) GetRateLimit() float64                          { return 0 }
func (s *stubAgent) GetRateLimitBurst() int                          { return 0 }
func (s *stubAgent) Initialize(agent.AgentConfig) error             { return nil }
func (s *stubAgent) SendMessage(context.Context, []agent.Message) (string, error) {
	return "", nil
}
func (s *stubAgent) StreamMessage(context.Context, []agent.Message, io.Writer) error { return nil }
func (s *stubAgent) Announce() string                                              { return s.name + " has joined" }
func (s *stubAgent) IsAvailable() bool                                             { return true }
func (s *stubAgent) HealthCheck(context.Context) error                            { return nil }
func (s *stubAgent) GetCLIVersion() string                                        { return "stub" }
func (s *stubAgent) GetPrompt() string                                            { return "" }
