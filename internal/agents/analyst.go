package agents

import (
	"context"
	"fmt"

	"github.com/Aut0Matee/AIDigitalWorkforce/internal/models"
)

const analystSystemPrompt = `You are a quality analyst in a multi-agent workforce.
You review drafted content for accuracy, completeness, clarity and
engagement, then produce the refined final version. Return the improved
content itself, not a critique.`

// Analyst reviews the writer's draft and produces the refined version
// that becomes the task deliverable.
type Analyst struct {
	completer Completer
}

func NewAnalyst(completer Completer) *Analyst {
	return &Analyst{completer: completer}
}

func (a *Analyst) Role() models.AgentRole { return models.RoleAnalyst }

func (a *Analyst) Produce(ctx context.Context, tc TurnContext) (string, error) {
	draft := lastContentByRole(tc.Transcript, models.RoleWriter)
	if draft == "" {
		return "", capabilityErr(models.RoleAnalyst, fmt.Errorf("no writer draft to review"))
	}

	prompt := fmt.Sprintf(`Review and refine this draft so it fully satisfies the task:

Task Title: %s
Task Requirements: %s

Draft to Review:
%s

Assess accuracy, completeness, clarity, engagement and technical
quality, then return the improved final version of the content in clean
markdown. Do not include your assessment notes, only the refined
deliverable.%s`,
		tc.Title, tc.Description, draft, directiveSection(tc.Directive))

	content, err := a.completer.Complete(ctx, analystSystemPrompt, prompt)
	if err != nil {
		return "", capabilityErr(models.RoleAnalyst, err)
	}
	return content, nil
}
