// Package agents defines the capability contract the orchestrator
// sequences, and its three concrete roles. The orchestrator depends only
// on the Agent interface, never on a concrete role.
package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/Aut0Matee/AIDigitalWorkforce/internal/agents/websearch"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/models"
)

// TurnContext is everything an agent may consult for one turn: the task,
// the full prior transcript, and an optional human directive that must
// take priority over the original description.
type TurnContext struct {
	Title       string
	Description string
	Transcript  []models.Message
	Directive   string
}

// Agent produces one message's content from a turn context.
type Agent interface {
	Role() models.AgentRole
	Produce(ctx context.Context, tc TurnContext) (string, error)
}

// Completer is the text-generation capability agents invoke. Satisfied
// by llm.Client; tests substitute fakes.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Searcher is the optional web search capability of the researcher.
type Searcher interface {
	Search(ctx context.Context, query string) ([]websearch.Result, error)
}

// capabilityErr tags an upstream failure with the role that hit it so
// the orchestrator can apply its retry policy.
func capabilityErr(role models.AgentRole, err error) error {
	return &models.CapabilityError{Role: role, Err: err}
}

// formatTranscript renders prior messages for inclusion in a prompt.
func formatTranscript(msgs []models.Message) string {
	if len(msgs) == 0 {
		return "(no prior messages)"
	}
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "[%s] %s\n\n", m.AgentRole, m.Content)
	}
	return strings.TrimSpace(b.String())
}

// lastContentByRole returns the most recent message content for a role.
func lastContentByRole(msgs []models.Message, role models.AgentRole) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].AgentRole == role {
			return msgs[i].Content
		}
	}
	return ""
}

// directiveSection renders the human interjection block appended to the
// user prompt when an observer has redirected the run.
func directiveSection(directive string) string {
	if directive == "" {
		return ""
	}
	return fmt.Sprintf("\n\nHUMAN DIRECTIVE (takes priority over the original description):\n%s", directive)
}
