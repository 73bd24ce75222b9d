package contract

import "context"

// Invoker executes one pipeline stage for one role. Implementations are
// external collaborators (usually LLM-backed); the engine only needs their
// success/failure/timeout signal and structured output.
type Invoker interface {
	Invoke(ctx context.Context, in StageInput) (StageOutput, error)

	// RequestedTools names the tools the invoker would like to call. The
	// registry intersects this with the access policy; anything outside the
	// policy never becomes callable.
	RequestedTools() []string
}

// SemanticDecision is the semantic tier's raw verdict before expansion.
type SemanticDecision struct {
	Role       AgentRole   `json:"role"`
	Pipeline   []AgentRole `json:"pipeline,omitempty"`
	Confidence float64     `json:"confidence"`
	Rationale  string      `json:"rationale,omitempty"`
}

// SemanticClassifier is the fallback classification capability, consulted only
// when no quick-route rule matches.
type SemanticClassifier interface {
	Classify(ctx context.Context, text string, catalog []RoleInfo, sctx SessionContext) (SemanticDecision, error)
}

// DocumentExtractor supplies text for an opaque document handle. The engine
// never parses documents itself.
type DocumentExtractor interface {
	Extract(ctx context.Context, ref string) (string, error)
}
