package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	contractx "github.com/chayanin/docrouter/agent/contract"
)

var (
	//go:embed template/coordinator.txt
	coordinatorRaw string

	//go:embed template/general_knowledge.txt
	generalKnowledgeRaw string

	//go:embed template/information_extractor.txt
	informationExtractorRaw string

	//go:embed template/document_comparison.txt
	documentComparisonRaw string

	//go:embed template/question_generator.txt
	questionGeneratorRaw string

	//go:embed template/comparison_analyst.txt
	comparisonAnalystRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Coordinator          string
	GeneralKnowledge     string
	InformationExtractor string
	DocumentComparison   string
	QuestionGenerator    string
	ComparisonAnalyst    string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
// This is safe to call concurrently; the embed is compile-time, and trimming is cheap.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Coordinator:          strings.TrimSpace(coordinatorRaw),
		GeneralKnowledge:     strings.TrimSpace(generalKnowledgeRaw),
		InformationExtractor: strings.TrimSpace(informationExtractorRaw),
		DocumentComparison:   strings.TrimSpace(documentComparisonRaw),
		QuestionGenerator:    strings.TrimSpace(questionGeneratorRaw),
		ComparisonAnalyst:    strings.TrimSpace(comparisonAnalystRaw),
	}
}

// For returns the system prompt for a specialist role.
func (p PromptSet) For(role contractx.AgentRole) (string, error) {
	switch role {
	case contractx.RoleCoordinator:
		return p.Coordinator, nil
	case contractx.RoleGeneralKnowledge:
		return p.GeneralKnowledge, nil
	case contractx.RoleInformationExtractor:
		return p.InformationExtractor, nil
	case contractx.RoleDocumentComparison:
		return p.DocumentComparison, nil
	case contractx.RoleQuestionGenerator:
		return p.QuestionGenerator, nil
	case contractx.RoleComparisonAnalyst:
		return p.ComparisonAnalyst, nil
	default:
		return "", fmt.Errorf("%w: no prompt for role=%s", contractx.ErrUnknownRole, role)
	}
}
