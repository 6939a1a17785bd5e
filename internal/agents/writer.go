package agents

import (
	"context"
	"fmt"

	"github.com/Aut0Matee/AIDigitalWorkforce/internal/models"
)

const writerSystemPrompt = `You are a content writer in a multi-agent workforce.
You transform research findings into polished, well-structured content
that fulfils the task requirements. Write engaging prose with a clear
narrative, logical structure and clean markdown formatting.`

// Writer drafts the task content from the researcher's findings.
type Writer struct {
	completer Completer
}

func NewWriter(completer Completer) *Writer {
	return &Writer{completer: completer}
}

func (w *Writer) Role() models.AgentRole { return models.RoleWriter }

func (w *Writer) Produce(ctx context.Context, tc TurnContext) (string, error) {
	research := lastContentByRole(tc.Transcript, models.RoleResearcher)
	if research == "" {
		research = "(no research available; write from the task description alone)"
	}

	prompt := fmt.Sprintf(`Create the deliverable content for this task:

Task Title: %s
Task Description: %s

Research Findings:
%s

Conversation so far:
%s

Write a complete, well-structured draft that addresses every
requirement in the task description. Use markdown headings and keep the
tone appropriate for the audience implied by the task.%s`,
		tc.Title, tc.Description, research, formatTranscript(tc.Transcript), directiveSection(tc.Directive))

	content, err := w.completer.Complete(ctx, writerSystemPrompt, prompt)
	if err != nil {
		return "", capabilityErr(models.RoleWriter, err)
	}
	return content, nil
}
