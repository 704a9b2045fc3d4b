package prompt

import (
	"strings"

	"github.com/samber/lo"
)

// goalRule maps a set of case-insensitive keywords to an intent label.
// Rules are checked in order; the first rule with a matching keyword wins.
type goalRule struct {
	keywords []string
	goal     string
	refine   []goalRule // checked only when the rule itself matches
}

const fallbackGoal = "general reasoning or assistance"

var goalRules = []goalRule{
	{keywords: []string{"debug", "fix bug", "error", "not working"}, goal: "debug or fix code"},
	{keywords: []string{"code", "python", "javascript", "function", "script"}, goal: "generate or write code"},
	{keywords: []string{"summarize", "tl;dr", "summary", "condense"}, goal: "summarize text or content"},
	{
		keywords: []string{"write", "compose", "draft"},
		goal:     "write or create content",
		refine: []goalRule{
			{keywords: []string{"email", "letter", "message"}, goal: "write an email or message"},
			{keywords: []string{"essay", "article", "blog", "post"}, goal: "write an article or essay"},
		},
	},
	{keywords: []string{"analyze", "interpret", "examine"}, goal: "analyze or interpret information"},
	{keywords: []string{"explain", "what is", "how does", "why"}, goal: "learn or understand a concept"},
	{keywords: []string{"compare", "versus", " vs ", "difference between"}, goal: "compare ideas or options"},
	{keywords: []string{"translate", "translation"}, goal: "translate text"},
	{keywords: []string{"plan", "outline", "steps", "schedule", "roadmap"}, goal: "create a plan or outline"},
	{keywords: []string{"brainstorm", "ideas", "suggest"}, goal: "brainstorm ideas"},
	{keywords: []string{"review", "critique", "feedback"}, goal: "get feedback or review"},
}

// DetectGoal guesses the intent of a prompt from keywords. The result is
// only a hint for the model; the GOAL field of the reply is authoritative.
func DetectGoal(text string) string {
	lower := " " + strings.ToLower(text) + " "
	if goal, ok := matchGoal(lower, goalRules); ok {
		return goal
	}
	return fallbackGoal
}

func matchGoal(lower string, rules []goalRule) (string, bool) {
	for _, r := range rules {
		hit := lo.ContainsBy(r.keywords, func(kw string) bool {
			return strings.Contains(lower, kw)
		})
		if !hit {
			continue
		}
		if goal, ok := matchGoal(lower, r.refine); ok {
			return goal, true
		}
		return r.goal, true
	}
	return "", false
}
