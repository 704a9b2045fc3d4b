package model

// Reply markers shared by the instruction templates and the reply parser.
// A marker must start a line of the reply.
const (
	MarkerScore      = "SCORE:"
	MarkerGoal       = "GOAL:"
	MarkerRewrite    = "REWRITE:"
	MarkerRewriteEnd = "END_REWRITE"
	MarkerTitle      = "TITLE:"
	MarkerCategory   = "CATEGORY:"
)

const (
	MinScore = 0
	MaxScore = 100

	// SuggestionCount is how many follow-ups the suggest-next instruction asks for.
	SuggestionCount = 2

	MaxGoalLen  = 200
	MaxTitleLen = 100
)

// Categories is the fixed category enumeration for inferred metadata.
var Categories = []string{"coding", "writing", "analysis", "creative", "other"}
