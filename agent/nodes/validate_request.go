package nodes

import (
	"strings"
	"time"

	contractx "github.com/chayanin/docrouter/agent/contract"
)

// GraphState is threaded through every node of the request graph.
type GraphState struct {
	Request contractx.Request
	Now     time.Time

	Context  contractx.SessionContext
	Decision contractx.RoutingDecision
	Result   contractx.OrchestrationResult
}

// ValidateRequest rejects requests the engine must not act on at all. A
// malformed request is the one condition that surfaces as an error instead of
// a structured result: nothing downstream has run yet, so there is nothing to
// report.
//
// Empty text is valid and handled by the classifier's synthetic default.
func ValidateRequest(in contractx.Request, nowFn func() time.Time) (*GraphState, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	in.SessionID = strings.TrimSpace(in.SessionID)
	return &GraphState{
		Request: in,
		Now:     nowFn().UTC(),
	}, nil
}
