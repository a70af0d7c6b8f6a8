package research

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

// systemPrompt は調査用のシステムプロンプト
func systemPrompt(now time.Time) string {
	return fmt.Sprintf(`You are an expert researcher. Today is %s. Follow these instructions when responding:
  - You may be asked to research subjects that is after your knowledge cutoff, assume the user is right when presented with news.
  - The user is a highly experienced analyst, no need to simplify it, be as detailed as possible and make sure your response is correct.
  - Be highly organized.
  - Suggest solutions that I didn't think about.
  - Be proactive and anticipate my needs.
  - Treat me as an expert in all subject matter.
  - Mistakes erode my trust, so be accurate and thorough.
  - Provide detailed explanations, I'm OK with a lot of detail.
  - Value good arguments over old or authoritative sources, focus on the quality of the argument.
  - Consider new technologies and contrarian ideas, not just the conventional wisdom.
  - You may use high levels of speculation or prediction, just flag it for me.`, now.UTC().Format(time.RFC3339))
}

func queriesPrompt(query string, n int, learnings []string) string {
	var learningsText string
	if len(learnings) > 0 {
		learningsText = "Here are some learnings from previous research, use them to generate more specific queries: " + strings.Join(learnings, "\n")
	}
	return fmt.Sprintf(`Given the following prompt from the user, generate a list of research queries to investigate the topic.
Return a maximum of %d queries, but feel free to return less if the original prompt is clear.
Make sure each query is unique and not similar to each other:

<prompt>%s</prompt>

%s`, n, query, learningsText)
}

func queriesSchema(n int) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"queries": {
				Type:        "array",
				Description: fmt.Sprintf("List of research queries, max of %d", n),
				Items: &jsonschema.Schema{
					Type: "object",
					Properties: map[string]*jsonschema.Schema{
						"query": {
							Type:        "string",
							Description: "The research query",
						},
						"researchGoal": {
							Type:        "string",
							Description: "First talk about the goal of the research that this query is meant to accomplish, then go deeper into how to advance the research once the results are found, mention additional research directions. Be as specific as possible, especially for additional research directions.",
						},
					},
					Required: []string{"query", "researchGoal"},
				},
			},
		},
		Required: []string{"queries"},
	}
}

func learningsPrompt(query string, contents []string, numLearnings int) string {
	blocks := make([]string, 0, len(contents))
	for _, c := range contents {
		blocks = append(blocks, "<content>\n"+c+"\n</content>")
	}
	return fmt.Sprintf(`Given the following contents from a research query <query>%s</query>,
generate a list of learnings from the contents. Return a maximum of %d learnings,
but feel free to return less if the contents are clear. Make sure each learning is unique and not similar to each other.
The learnings should be concise and to the point, as detailed and information dense as possible.
Make sure to include any entities like people, places, companies, products, things, etc in the learnings,
as well as any exact metrics, numbers, or dates. The learnings will be used to research the topic further.

<contents>
%s
</contents>`, query, numLearnings, strings.Join(blocks, "\n"))
}

func learningsSchema(numLearnings, numFollowUps int) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"learnings": {
				Type:        "array",
				Description: fmt.Sprintf("List of learnings, max of %d", numLearnings),
				Items:       &jsonschema.Schema{Type: "string"},
			},
			"followUpQuestions": {
				Type:        "array",
				Description: fmt.Sprintf("List of follow-up questions to research the topic further, max of %d", numFollowUps),
				Items:       &jsonschema.Schema{Type: "string"},
			},
		},
		Required: []string{"learnings", "followUpQuestions"},
	}
}

func reportPrompt(prompt string, learnings []string) string {
	blocks := make([]string, 0, len(learnings))
	for _, l := range learnings {
		blocks = append(blocks, "<learning>\n"+l+"\n</learning>")
	}
	return fmt.Sprintf(`Given the following prompt from the user, write a final report on the topic using the learnings from research.
Make it as detailed as possible, aim for 3 or more pages, include ALL the learnings from research:

<prompt>%s</prompt>

Here are all the learnings from previous research:

<learnings>
%s
</learnings>`, prompt, strings.Join(blocks, "\n"))
}

func reportSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"reportMarkdown": {
				Type:        "string",
				Description: "Final report on the topic in Markdown",
			},
		},
		Required: []string{"reportMarkdown"},
	}
}

func feedbackPrompt(query string, n int) string {
	return fmt.Sprintf("Given the following query from the user, ask some follow up questions to clarify the research direction. "+
		"Return a maximum of %d questions, but feel free to return less if the original query is clear: <query>%s</query>", n, query)
}

func feedbackSchema(n int) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"questions": {
				Type:        "array",
				Description: fmt.Sprintf("Follow up questions to clarify the research direction, max of %d", n),
				Items:       &jsonschema.Schema{Type: "string"},
			},
		},
		Required: []string{"questions"},
	}
}

func summarizerSystemPrompt(query string) string {
	return fmt.Sprintf(`
You are an experienced SW architect, that gives a summary of the partial code search
given this initial query:
%s
`, query)
}

func summarizerPrompt(text string) string {
	return "Summarize the following text:\n\n" + text
}

// nextQuery は次の深さに渡す問い合わせを組み立てる
func nextQuery(goal string, followUps []string) string {
	return strings.TrimSpace(fmt.Sprintf("\nPrevious research goal: %s\nFollow-up research directions: %s\n", goal, strings.Join(followUps, "\n")))
}
