package nodes

import (
	"context"

	"github.com/rs/zerolog/log"

	contractx "github.com/chayanin/docrouter/agent/contract"
)

// RequestClassifier produces the routing decision for one request. Satisfied
// by classifier.Classifier.
type RequestClassifier interface {
	Classify(ctx context.Context, req contractx.Request, sctx contractx.SessionContext) (contractx.RoutingDecision, error)
}

// ClassifyRequest never fails the turn: when both classifier tiers are down
// the request is still answered, routed to the general-knowledge role with an
// explicit rationale.
func ClassifyRequest(ctx context.Context, in *GraphState, cls RequestClassifier) (*GraphState, error) {
	decision, err := cls.Classify(ctx, in.Request, in.Context)
	if err != nil {
		log.Warn().
			Err(err).
			Str("session_id", in.Request.SessionID).
			Msg("classification failed, routing to general knowledge")
		decision = contractx.RoutingDecision{
			Primary:    contractx.RoleGeneralKnowledge,
			Target:     contractx.RoleGeneralKnowledge,
			Confidence: 0,
			Source:     contractx.SourceSemanticClassifier,
			Rationale:  "classification unavailable, defaulting to general knowledge",
		}
	}

	in.Decision = decision
	return in, nil
}
