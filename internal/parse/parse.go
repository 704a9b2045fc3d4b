// Package parse turns free-text LLM replies into the strict output contracts.
// Every function fails closed with a malformed_upstream_response error rather
// than defaulting a missing or out-of-range field.
package parse

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/amishk599/promptopt/internal/model"
)

// rewritePreambles are stripped from the start of a rewrite, case-insensitively.
var rewritePreambles = []string{
	"here is the rewritten prompt:",
	"here's the rewritten prompt:",
	"rewritten prompt:",
	"improved prompt:",
	"here is an improved version:",
	"here's an improved version:",
}

var numberedLine = regexp.MustCompile(`^(\d+)[.)]\s+(.+)$`)

// lines splits a reply into lines with surrounding whitespace removed.
func lines(reply string) []string {
	raw := strings.Split(strings.ReplaceAll(reply, "\r\n", "\n"), "\n")
	return lo.Map(raw, func(l string, _ int) string { return strings.TrimSpace(l) })
}

// singleField finds the one line starting with marker and returns the rest of it.
// Zero or several occurrences are both malformed.
func singleField(ls []string, marker string) (string, int, error) {
	idx := -1
	for i, l := range ls {
		if !strings.HasPrefix(l, marker) {
			continue
		}
		if idx >= 0 {
			return "", 0, model.NewMalformedError("reply contains %s more than once", marker)
		}
		idx = i
	}
	if idx < 0 {
		return "", 0, model.NewMalformedError("reply is missing %s", marker)
	}
	return strings.TrimSpace(strings.TrimPrefix(ls[idx], marker)), idx, nil
}

// Score extracts the score, goal and rewrite from a score reply. SCORE: and
// GOAL: are only looked for outside the rewrite block, so a rewrite may quote them.
func Score(reply string) (model.ScoreResult, error) {
	ls := lines(reply)

	rewrite, outside, err := rewriteBlock(ls)
	if err != nil {
		return model.ScoreResult{}, err
	}

	rawScore, _, err := singleField(outside, model.MarkerScore)
	if err != nil {
		return model.ScoreResult{}, err
	}
	score, err := strconv.Atoi(strings.TrimSuffix(rawScore, "/100"))
	if err != nil {
		return model.ScoreResult{}, model.NewMalformedError("score %q is not an integer", rawScore)
	}
	if score < model.MinScore || score > model.MaxScore {
		return model.ScoreResult{}, model.NewMalformedError("score %d is outside %d..%d", score, model.MinScore, model.MaxScore)
	}

	goal, _, err := singleField(outside, model.MarkerGoal)
	if err != nil {
		return model.ScoreResult{}, err
	}
	if goal == "" {
		return model.ScoreResult{}, model.NewMalformedError("goal is empty")
	}
	if utf8.RuneCountInString(goal) > model.MaxGoalLen {
		return model.ScoreResult{}, model.NewMalformedError("goal exceeds %d characters", model.MaxGoalLen)
	}

	return model.ScoreResult{Score: score, Rewrite: rewrite, Goal: goal}, nil
}

// rewriteBlock returns the text between the first REWRITE: line and the next
// END_REWRITE line, plus the lines outside the block. Text on the REWRITE:
// line itself belongs to the block. A second block is malformed.
func rewriteBlock(ls []string) (string, []string, error) {
	_, start, ok := lo.FindIndexOf(ls, func(l string) bool {
		return strings.HasPrefix(l, model.MarkerRewrite)
	})
	if !ok {
		return "", nil, model.NewMalformedError("reply is missing %s", model.MarkerRewrite)
	}

	end := -1
	for i := start + 1; i < len(ls); i++ {
		if ls[i] == model.MarkerRewriteEnd {
			end = i
			break
		}
	}
	if end < 0 {
		return "", nil, model.NewMalformedError("rewrite is not terminated by %s", model.MarkerRewriteEnd)
	}

	outside := append(append([]string{}, ls[:start]...), ls[end+1:]...)
	for _, l := range outside {
		if strings.HasPrefix(l, model.MarkerRewrite) || l == model.MarkerRewriteEnd {
			return "", nil, model.NewMalformedError("reply contains more than one rewrite block")
		}
	}

	first := strings.TrimSpace(strings.TrimPrefix(ls[start], model.MarkerRewrite))
	body := append([]string{first}, ls[start+1:end]...)
	rewrite := stripPreamble(strings.TrimSpace(strings.Join(body, "\n")))
	if rewrite == "" {
		return "", nil, model.NewMalformedError("rewrite is empty")
	}
	return rewrite, outside, nil
}

func stripPreamble(s string) string {
	lower := strings.ToLower(s)
	for _, p := range rewritePreambles {
		if strings.HasPrefix(lower, p) {
			return strings.TrimSpace(s[len(p):])
		}
	}
	return s
}

// Suggestions extracts numbered follow-up prompts. Numbering must run 1..n
// with no gaps, n must be within 1..max, and suggestions must be distinct.
// Lines that are not numbered are treated as surrounding prose.
func Suggestions(reply string, max int) (model.SuggestResult, error) {
	var out []string
	for _, l := range lines(reply) {
		m := numberedLine.FindStringSubmatch(l)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		if n != len(out)+1 {
			return model.SuggestResult{}, model.NewMalformedError("suggestion numbered %d out of sequence", n)
		}
		out = append(out, strings.TrimSpace(m[2]))
	}

	if len(out) == 0 {
		return model.SuggestResult{}, model.NewMalformedError("reply contains no numbered suggestions")
	}
	if max > 0 && len(out) > max {
		return model.SuggestResult{}, model.NewMalformedError("reply contains %d suggestions, at most %d allowed", len(out), max)
	}
	if dups := lo.FindDuplicatesBy(out, strings.ToLower); len(dups) > 0 {
		return model.SuggestResult{}, model.NewMalformedError("reply repeats suggestion %q", dups[0])
	}
	return model.SuggestResult{Suggestions: out}, nil
}

// Metadata extracts the title and category.
func Metadata(reply string) (model.MetadataResult, error) {
	ls := lines(reply)

	title, _, err := singleField(ls, model.MarkerTitle)
	if err != nil {
		return model.MetadataResult{}, err
	}
	title = strings.Trim(title, `"'`)
	if title == "" {
		return model.MetadataResult{}, model.NewMalformedError("title is empty")
	}
	if utf8.RuneCountInString(title) > model.MaxTitleLen {
		return model.MetadataResult{}, model.NewMalformedError("title exceeds %d characters", model.MaxTitleLen)
	}

	category, _, err := singleField(ls, model.MarkerCategory)
	if err != nil {
		return model.MetadataResult{}, err
	}
	category = strings.ToLower(strings.TrimSuffix(category, "."))
	if !lo.Contains(model.Categories, category) {
		return model.MetadataResult{}, model.NewMalformedError("category %q is not one of %s", category, strings.Join(model.Categories, ", "))
	}

	return model.MetadataResult{Title: title, Category: category}, nil
}
