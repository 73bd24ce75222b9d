package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"

	contractx "github.com/chayanin/docrouter/agent/contract"
)

// semanticClassifierImpl is the LLM-backed fallback classification tier.
type semanticClassifierImpl struct {
	runner compose.Runnable[map[string]any, semanticLLMOutput]
}

type semanticLLMOutput struct {
	Role       string   `json:"role"`
	Pipeline   []string `json:"pipeline,omitempty"`
	Confidence float64  `json:"confidence"`
	Rationale  string   `json:"rationale,omitempty"`
}

func newSemanticClassifier(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
) (*semanticClassifierImpl, error) {
	runner, err := compileSemanticGraph(ctx, chatModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	return &semanticClassifierImpl{runner: runner}, nil
}

func (s *semanticClassifierImpl) Classify(
	ctx context.Context,
	text string,
	catalog []contractx.RoleInfo,
	sctx contractx.SessionContext,
) (contractx.SemanticDecision, error) {
	payload := map[string]any{
		"text":  text,
		"roles": catalog,
		"session": map[string]any{
			"document_count": len(sctx.DocumentRefs),
			"recent_targets": recentTargets(sctx),
		},
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return contractx.SemanticDecision{}, fmt.Errorf("%w: marshal classification payload: %v", contractx.ErrSchemaViolation, err)
	}

	out, err := s.runner.Invoke(ctx, map[string]any{"input": string(input)})
	if err != nil {
		return contractx.SemanticDecision{}, fmt.Errorf("%w: semantic classify: %v", contractx.ErrModelInvoke, err)
	}

	role := strings.TrimSpace(out.Role)
	if role == "" {
		return contractx.SemanticDecision{}, fmt.Errorf("%w: classifier returned no role", contractx.ErrSchemaViolation)
	}

	decision := contractx.SemanticDecision{
		Role:       contractx.AgentRole(role),
		Confidence: clampConfidence(out.Confidence),
		Rationale:  strings.TrimSpace(out.Rationale),
	}
	for _, p := range out.Pipeline {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			decision.Pipeline = append(decision.Pipeline, contractx.AgentRole(trimmed))
		}
	}
	return decision, nil
}

func recentTargets(sctx contractx.SessionContext) []string {
	targets := make([]string, 0, len(sctx.RecentTurns))
	for _, t := range sctx.RecentTurns {
		targets = append(targets, string(t.Target))
	}
	return targets
}
