package nodes

import (
	"context"

	contractx "github.com/chayanin/docrouter/agent/contract"
)

// PipelineRunner executes a routing decision end to end. Satisfied by
// pipeline.Executor.
type PipelineRunner interface {
	Run(ctx context.Context, req contractx.Request, decision contractx.RoutingDecision, sctx contractx.SessionContext) contractx.OrchestrationResult
}

// ExecutePipeline runs the decided stages. Stage failures, timeouts, and
// cancellation are all encoded in the result, so this node cannot fail.
func ExecutePipeline(ctx context.Context, in *GraphState, runner PipelineRunner) (*GraphState, error) {
	in.Result = runner.Run(ctx, in.Request, in.Decision, in.Context)
	return in, nil
}
