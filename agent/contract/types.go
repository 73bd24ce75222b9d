package contract

import (
	"context"
	"fmt"
	"strings"
)

// AgentRole names a specialist processing capability. The set is open: new
// roles are added to the catalog and pipeline table, not to a switch.
type AgentRole string

const (
	RoleCoordinator          AgentRole = "coordinator"
	RoleGeneralKnowledge     AgentRole = "general_knowledge"
	RoleDocumentComparison   AgentRole = "document_comparison"
	RoleQuestionGenerator    AgentRole = "question_generator"
	RoleInformationExtractor AgentRole = "information_extractor"
	RoleComparisonAnalyst    AgentRole = "comparison_analyst"
)

// RoleInfo is one catalog entry handed to the semantic classifier.
type RoleInfo struct {
	Role        AgentRole `json:"role"`
	Description string    `json:"description"`
}

type Flags struct {
	EnableRetrievalAugmentation bool `json:"enable_retrieval_augmentation,omitempty"`
}

// Request is immutable once created.
type Request struct {
	Text         string   `json:"text"`
	SessionID    string   `json:"session_id"`
	DocumentRefs []string `json:"document_refs,omitempty"` // opaque handles, ordered
	Flags        Flags    `json:"flags,omitempty"`
}

func (r Request) HasDocuments() bool {
	return len(r.DocumentRefs) > 0
}

// Validate rejects request shapes the engine must not act on at all: a blank
// session id or a blank document ref. Empty text is valid. Callers check this
// before touching any session state.
func (r Request) Validate() error {
	if strings.TrimSpace(r.SessionID) == "" {
		return fmt.Errorf("%w: session id is empty", ErrInvalidRequest)
	}
	for _, ref := range r.DocumentRefs {
		if strings.TrimSpace(ref) == "" {
			return fmt.Errorf("%w: blank document ref", ErrInvalidRequest)
		}
	}
	return nil
}

type DecisionSource string

const (
	SourceQuickRoute         DecisionSource = "quick_route"
	SourceSemanticClassifier DecisionSource = "semantic_classifier"
)

// RoutingDecision is produced fresh per request and never mutated.
//
// Primary is the first stage executed and equals Pipeline[0] whenever Pipeline
// is non-empty. Target is the specialist the request was classified to; for a
// single-stage decision Target == Primary, for an expanded pipeline Target is
// the role whose declared predecessors were prepended.
type RoutingDecision struct {
	Primary    AgentRole      `json:"primary"`
	Target     AgentRole      `json:"target"`
	Pipeline   []AgentRole    `json:"pipeline,omitempty"` // empty => single stage
	Confidence float64        `json:"confidence"`
	Source     DecisionSource `json:"source"`
	Rationale  string         `json:"rationale"`
}

// Stages returns the roles to execute in order.
func (d RoutingDecision) Stages() []AgentRole {
	if len(d.Pipeline) > 0 {
		return d.Pipeline
	}
	return []AgentRole{d.Primary}
}

type StageStatus string

const (
	StageOk       StageStatus = "ok"
	StageDegraded StageStatus = "degraded"
	StageFailed   StageStatus = "failed"
)

// StageOutput is the structured payload a stage produces and the next stage
// consumes.
type StageOutput struct {
	Text       string            `json:"text"`
	Fields     map[string]string `json:"fields,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`
}

type PipelineStageResult struct {
	Role       AgentRole   `json:"role"`
	Output     StageOutput `json:"output"`
	Status     StageStatus `json:"status"`
	Cause      string      `json:"cause,omitempty"`
	DurationMs int64       `json:"duration_ms"`
}

type OverallStatus string

const (
	StatusOk        OverallStatus = "ok"
	StatusDegraded  OverallStatus = "degraded"
	StatusFailed    OverallStatus = "failed"
	StatusCancelled OverallStatus = "cancelled"
)

// OrchestrationResult is the single structured response shape: expected
// failure modes surface as Status+Message, never as a raw error.
type OrchestrationResult struct {
	Decision    RoutingDecision       `json:"decision"`
	Trace       []PipelineStageResult `json:"trace,omitempty"`
	FinalOutput StageOutput           `json:"final_output"`
	Status      OverallStatus         `json:"status"`
	Message     string                `json:"message,omitempty"`
}

// TurnSummary is the slice of history the classifier and stages may see.
type TurnSummary struct {
	Target AgentRole     `json:"target"`
	Query  string        `json:"query"`
	Status OverallStatus `json:"status"`
}

// SessionContext is a read-only view of the session; it never aliases store
// internals.
type SessionContext struct {
	SessionID    string        `json:"session_id"`
	DocumentRefs []string      `json:"document_refs,omitempty"`
	RecentTurns  []TurnSummary `json:"recent_turns,omitempty"`
}

func (c SessionContext) HasDocuments() bool {
	return len(c.DocumentRefs) > 0
}

// StageInput carries everything one pipeline stage may read: the original
// request, the session view, the previous stage's output (nil for the first
// stage), and the policy-filtered tool capabilities.
type StageInput struct {
	Request Request
	Context SessionContext
	Prev    *StageOutput
	Tools   []ToolBinding
}

// PermittedTool reports whether a tool name survived policy filtering.
func (in StageInput) PermittedTool(name string) (ToolBinding, bool) {
	for _, b := range in.Tools {
		if b.Name == name {
			return b, true
		}
	}
	return ToolBinding{}, false
}

// ToolBinding is a callable tool capability. Only bindings present in
// StageInput.Tools are callable by a stage; the policy intersection happens
// at the registry boundary before the invoker ever sees them.
type ToolBinding struct {
	Name        string
	Description string
	Execute     ToolFunc
}

type ToolFunc func(ctx context.Context, args map[string]any) (ToolResult, error)

type ToolResult struct {
	Tool   string `json:"tool"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

type Health string

const (
	HealthHealthy     Health = "healthy"
	HealthDegraded    Health = "degraded"
	HealthUnavailable Health = "unavailable"
)

// AgentInfo is the listAgents row.
type AgentInfo struct {
	Role         AgentRole `json:"role"`
	Description  string    `json:"description"`
	AllowedTools []string  `json:"allowed_tools"`
	Health       Health    `json:"health"`
}
