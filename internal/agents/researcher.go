package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Aut0Matee/AIDigitalWorkforce/internal/agents/websearch"
	"github.com/Aut0Matee/AIDigitalWorkforce/internal/models"
)

const researcherSystemPrompt = `You are a research specialist in a multi-agent workforce.
You gather information, evaluate sources and synthesize findings into
structured, factual research reports. Be thorough, cite the sources you
were given, and clearly separate facts from interpretation.`

// Researcher searches the web for the task topic and synthesizes the
// findings into a research report. When search is unavailable it falls
// back to the model's own knowledge and says so.
type Researcher struct {
	completer Completer
	searcher  Searcher
	logger    *zap.Logger
}

func NewResearcher(completer Completer, searcher Searcher, logger *zap.Logger) *Researcher {
	return &Researcher{completer: completer, searcher: searcher, logger: logger}
}

func (r *Researcher) Role() models.AgentRole { return models.RoleResearcher }

func (r *Researcher) Produce(ctx context.Context, tc TurnContext) (string, error) {
	results := r.search(ctx, tc)

	var prompt string
	if len(results) > 0 {
		prompt = fmt.Sprintf(`Based on the following search results, create a comprehensive research synthesis for this task:

Task Title: %s
Task Description: %s

Search Results:
%s

Create a well-structured research report that includes:
1. Executive Summary (key findings in 2-3 sentences)
2. Main Findings (organized by relevance)
3. Key Data Points and Statistics
4. Notable Trends or Patterns
5. Important Considerations or Caveats

Format the response in clear markdown with proper headings.%s`,
			tc.Title, tc.Description, formatResults(results), directiveSection(tc.Directive))
	} else {
		prompt = fmt.Sprintf(`Without access to current web search, provide the best research insights you can for:

Title: %s
Description: %s

Based on your knowledge, provide background information, key concepts,
general trends, important factors, and recommendations for further
research. Be clear that this is based on general knowledge without
current web data.%s`,
			tc.Title, tc.Description, directiveSection(tc.Directive))
	}

	content, err := r.completer.Complete(ctx, researcherSystemPrompt, prompt)
	if err != nil {
		return "", capabilityErr(models.RoleResearcher, err)
	}
	return content, nil
}

// search is best-effort: a failed or absent search capability degrades
// to knowledge-only research instead of failing the turn.
func (r *Researcher) search(ctx context.Context, tc TurnContext) []websearch.Result {
	if r.searcher == nil {
		return nil
	}
	query := tc.Title
	if tc.Directive != "" {
		query = query + " " + tc.Directive
	}
	results, err := r.searcher.Search(ctx, query)
	if err != nil {
		r.logger.Warn("Web search failed, falling back to knowledge-only research",
			zap.String("query", query), zap.Error(err))
		return nil
	}
	return results
}

func formatResults(results []websearch.Result) string {
	var b strings.Builder
	for i, res := range results {
		if i >= 10 {
			break
		}
		content := res.Content
		if len(content) > 500 {
			content = content[:500] + "..."
		}
		fmt.Fprintf(&b, "Source: %s\nURL: %s\nContent: %s\n\n", res.Title, res.URL, content)
	}
	return strings.TrimSpace(b.String())
}
