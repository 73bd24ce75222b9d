package specialist

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/chayanin/docrouter/agent/contract"
)

func compileSemanticGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
) (compose.Runnable[map[string]any, semanticLLMOutput], error) {
	runner, err := compileStructuredLLMGraph[semanticLLMOutput](ctx, chatModel, systemPrompt, "coordinator.semantic_graph")
	if err != nil {
		return nil, fmt.Errorf("compile semantic classifier graph: %w", err)
	}
	return runner, nil
}

func compileStageAnswerGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	role contractx.AgentRole,
) (compose.Runnable[map[string]any, stageLLMOutput], error) {
	runner, err := compileStructuredLLMGraph[stageLLMOutput](ctx, chatModel, systemPrompt, fmt.Sprintf("specialist.%s.answer_graph", role))
	if err != nil {
		return nil, fmt.Errorf("compile stage answer graph for %s: %w", role, err)
	}
	return runner, nil
}

func compileToolPlanningGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	role contractx.AgentRole,
) (compose.Runnable[map[string]any, *schema.Message], error) {
	template := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage("{input}"),
	)

	graph := compose.NewGraph[map[string]any, *schema.Message]()
	if err := graph.AddChatTemplateNode("prompt", template); err != nil {
		return nil, fmt.Errorf("add tool planning prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add tool planning model node: %w", err)
	}
	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add tool planning edge start->prompt: %w", err)
	}
	if err := graph.AddEdge("prompt", "model"); err != nil {
		return nil, fmt.Errorf("add tool planning edge prompt->model: %w", err)
	}
	if err := graph.AddEdge("model", compose.END); err != nil {
		return nil, fmt.Errorf("add tool planning edge model->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName(fmt.Sprintf("specialist.%s.tool_planning_graph", role)))
	if err != nil {
		return nil, fmt.Errorf("compile tool planning graph: %w", err)
	}
	return runner, nil
}

type stageGraphState struct {
	In          contractx.StageInput
	ToolResults []contractx.ToolResult
}

// compileStageRuntimeGraph wires the per-stage flow: evidence gathering via
// tools when the stage was granted any, then the structured answer.
func compileStageRuntimeGraph(
	ctx context.Context,
	role contractx.AgentRole,
	gatherFlow func(context.Context, *stageGraphState) (*stageGraphState, error),
	answerFlow func(context.Context, *stageGraphState) (contractx.StageOutput, error),
) (compose.Runnable[contractx.StageInput, contractx.StageOutput], error) {
	graph := compose.NewGraph[contractx.StageInput, contractx.StageOutput]()

	if err := graph.AddLambdaNode("prepare",
		compose.InvokableLambda(func(ctx context.Context, in contractx.StageInput) (*stageGraphState, error) {
			return &stageGraphState{In: in}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add stage prepare node: %w", err)
	}

	if err := graph.AddLambdaNode("gather_evidence",
		compose.InvokableLambda(func(ctx context.Context, in *stageGraphState) (*stageGraphState, error) {
			if in == nil {
				return nil, fmt.Errorf("%w: stage graph state is nil", contractx.ErrSchemaViolation)
			}
			return gatherFlow(ctx, in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add stage gather node: %w", err)
	}

	if err := graph.AddLambdaNode("compose_answer",
		compose.InvokableLambda(func(ctx context.Context, in *stageGraphState) (contractx.StageOutput, error) {
			if in == nil {
				return contractx.StageOutput{}, fmt.Errorf("%w: stage graph state is nil", contractx.ErrSchemaViolation)
			}
			return answerFlow(ctx, in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add stage answer node: %w", err)
	}

	branch := compose.NewGraphBranch(
		func(ctx context.Context, in *stageGraphState) (string, error) {
			if in == nil {
				return "", fmt.Errorf("%w: stage graph state is nil", contractx.ErrSchemaViolation)
			}
			if len(in.In.Tools) > 0 {
				return "gather_evidence", nil
			}
			return "compose_answer", nil
		},
		map[string]bool{
			"gather_evidence": true,
			"compose_answer":  true,
		},
	)

	if err := graph.AddBranch("prepare", branch); err != nil {
		return nil, fmt.Errorf("add stage branch: %w", err)
	}
	if err := graph.AddEdge(compose.START, "prepare"); err != nil {
		return nil, fmt.Errorf("add stage edge start->prepare: %w", err)
	}
	if err := graph.AddEdge("gather_evidence", "compose_answer"); err != nil {
		return nil, fmt.Errorf("add stage edge gather->answer: %w", err)
	}
	if err := graph.AddEdge("compose_answer", compose.END); err != nil {
		return nil, fmt.Errorf("add stage edge answer->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName(fmt.Sprintf("specialist.%s.runtime_graph", role)))
	if err != nil {
		return nil, fmt.Errorf("compile stage runtime graph: %w", err)
	}
	return runner, nil
}

func compileStructuredLLMGraph[T any](
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	graphName string,
) (compose.Runnable[map[string]any, T], error) {
	template := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage("{input}"),
	)

	parser := schema.NewMessageJSONParser[T](&schema.MessageJSONParseConfig{
		ParseFrom: schema.MessageParseFromContent,
	})

	graph := compose.NewGraph[map[string]any, T]()
	if err := graph.AddChatTemplateNode("prompt", template); err != nil {
		return nil, fmt.Errorf("add structured prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add structured model node: %w", err)
	}
	if err := graph.AddLambdaNode("parse_json", compose.MessageParser(parser)); err != nil {
		return nil, fmt.Errorf("add structured parser node: %w", err)
	}

	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add structured edge start->prompt: %w", err)
	}
	if err := graph.AddEdge("prompt", "model"); err != nil {
		return nil, fmt.Errorf("add structured edge prompt->model: %w", err)
	}
	if err := graph.AddEdge("model", "parse_json"); err != nil {
		return nil, fmt.Errorf("add structured edge model->parse: %w", err)
	}
	if err := graph.AddEdge("parse_json", compose.END); err != nil {
		return nil, fmt.Errorf("add structured edge parse->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName(graphName))
	if err != nil {
		return nil, fmt.Errorf("compile structured graph: %w", err)
	}
	return runner, nil
}
