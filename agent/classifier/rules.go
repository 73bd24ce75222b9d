package classifier

import (
	"regexp"
	"strings"

	contractx "github.com/chayanin/docrouter/agent/contract"
)

// Rule is one quick-route entry. Rules are evaluated in declaration order and
// the first match wins; matching is pure string work, never an external call.
type Rule struct {
	Name              string
	Pattern           *regexp.Regexp // optional regex over the normalized text
	Keywords          []string       // any-of substring match, lowercased
	RequiresDocuments bool
	Role              contractx.AgentRole
	Rationale         string
}

func (r Rule) matches(normalized string, hasDocuments bool) bool {
	if r.RequiresDocuments && !hasDocuments {
		return false
	}
	if r.Pattern != nil && r.Pattern.MatchString(normalized) {
		return true
	}
	for _, kw := range r.Keywords {
		if strings.Contains(normalized, kw) {
			return true
		}
	}
	return false
}

var (
	mathExprPattern      = regexp.MustCompile(`\d+\s*[\+\-\*/\^%]\s*\d+`)
	solveEquationPattern = regexp.MustCompile(`solve\s.*equation`)
)

// DefaultRules is the shipped quick-route table. Earlier rule = higher
// priority.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:      "math-expression",
			Pattern:   mathExprPattern,
			Role:      contractx.RoleGeneralKnowledge,
			Rationale: "mathematical calculation or equation detected",
		},
		{
			Name:      "math-keywords",
			Pattern:   solveEquationPattern,
			Keywords:  []string{"calculate", "derivative", "integral", "x ="},
			Role:      contractx.RoleGeneralKnowledge,
			Rationale: "mathematical calculation or equation detected",
		},
		{
			Name:              "document-comparison",
			Keywords:          []string{"compare", "difference", "contrast", "versus", " vs ", "between"},
			RequiresDocuments: true,
			Role:              contractx.RoleDocumentComparison,
			Rationale:         "document comparison request detected",
		},
		{
			Name:      "question-generation",
			Keywords:  []string{"generate question", "create question", "generate some question"},
			Role:      contractx.RoleQuestionGenerator,
			Rationale: "question generation request detected",
		},
		{
			Name:              "information-extraction",
			Keywords:          []string{"extract", "find", "get information", "what is", "tell me about"},
			RequiresDocuments: true,
			Role:              contractx.RoleInformationExtractor,
			Rationale:         "information extraction from documents detected",
		},
	}
}

func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
