package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/chayanin/docrouter/agent/contract"
	nodex "github.com/chayanin/docrouter/agent/nodes"
)

func (o *Orchestrator) compileProcessGraph(
	ctx context.Context,
) (compose.Runnable[contractx.Request, contractx.OrchestrationResult], error) {
	graph := compose.NewGraph[contractx.Request, contractx.OrchestrationResult]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in contractx.Request) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("resolve_session",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ResolveSession(ctx, in, o.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node resolve_session: %w", err)
	}

	if err := graph.AddLambdaNode("classify_request",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ClassifyRequest(ctx, in, o.classifier)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node classify_request: %w", err)
	}

	if err := graph.AddLambdaNode("execute_pipeline",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ExecutePipeline(ctx, in, o.executor)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node execute_pipeline: %w", err)
	}

	if err := graph.AddLambdaNode("append_turn",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.AppendTurn(ctx, in, o.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node append_turn: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_result",
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (contractx.OrchestrationResult, error) {
			return nodex.FinalizeResult(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_result: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "resolve_session"},
		{"resolve_session", "classify_request"},
		{"classify_request", "execute_pipeline"},
		{"execute_pipeline", "append_turn"},
		{"append_turn", "finalize_result"},
		{"finalize_result", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("coordinator.process_request"))
	if err != nil {
		return nil, fmt.Errorf("compile coordinator graph: %w", err)
	}
	return runner, nil
}
