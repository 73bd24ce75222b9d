package classifier

import (
	contractx "github.com/chayanin/docrouter/agent/contract"
)

// PipelineTable declares, per target role, the full ordered stage sequence
// that role requires. A missing or single-element entry means the role runs
// alone. New roles are added here, not in classifier code.
type PipelineTable map[contractx.AgentRole][]contractx.AgentRole

// DefaultPipelines mirrors the document workflows: anything that consumes
// structured document data runs the extractor first.
func DefaultPipelines() PipelineTable {
	return PipelineTable{
		contractx.RoleGeneralKnowledge: nil,
		contractx.RoleDocumentComparison: {
			contractx.RoleInformationExtractor,
			contractx.RoleDocumentComparison,
			contractx.RoleComparisonAnalyst,
		},
		contractx.RoleQuestionGenerator: {
			contractx.RoleInformationExtractor,
			contractx.RoleQuestionGenerator,
		},
		contractx.RoleComparisonAnalyst: {
			contractx.RoleInformationExtractor,
			contractx.RoleComparisonAnalyst,
		},
		contractx.RoleInformationExtractor: {
			contractx.RoleInformationExtractor,
		},
	}
}

// DefaultRoleCatalog is the role list (with one-line descriptions) handed to
// the semantic classifier and reported by listAgents.
func DefaultRoleCatalog() []contractx.RoleInfo {
	return []contractx.RoleInfo{
		{Role: contractx.RoleGeneralKnowledge, Description: "Mathematical problems, science, history, and general questions."},
		{Role: contractx.RoleDocumentComparison, Description: "Comparing documents and analyzing differences between files."},
		{Role: contractx.RoleQuestionGenerator, Description: "Creating targeted questions from document content."},
		{Role: contractx.RoleInformationExtractor, Description: "Extracting specific data and facts from documents."},
		{Role: contractx.RoleComparisonAnalyst, Description: "Structured analysis and comparison of extracted document data."},
	}
}
