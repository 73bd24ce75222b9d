package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/chayanin/docrouter/agent/contract"
	"github.com/chayanin/docrouter/agent/tool"
)

// stageInvoker is the LLM-backed implementation of one specialist role. It
// runs an optional tool round (only over the bindings the registry granted)
// and then produces the structured stage output.
type stageInvoker struct {
	role           contractx.AgentRole
	requestedTools []string
	answerRunner   compose.Runnable[map[string]any, stageLLMOutput]
	toolRunner     compose.Runnable[map[string]any, *schema.Message]
	runtimeRunner  compose.Runnable[contractx.StageInput, contractx.StageOutput]
}

type stageLLMOutput struct {
	Text       string            `json:"text"`
	Fields     map[string]string `json:"fields,omitempty"`
	Confidence float64           `json:"confidence"`
}

func newStageInvoker(
	ctx context.Context,
	role contractx.AgentRole,
	chatModel einomodel.ToolCallingChatModel,
	systemPrompt string,
) (*stageInvoker, error) {
	answerRunner, err := compileStageAnswerGraph(ctx, chatModel, systemPrompt, role)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}

	s := &stageInvoker{
		role:         role,
		answerRunner: answerRunner,
	}

	tools := stageTools(role)
	if len(tools) > 0 {
		toolModel, err := chatModel.WithTools(tools)
		if err != nil {
			return nil, fmt.Errorf("%w: bind tools for role=%s: %v", contractx.ErrModelInvoke, role, err)
		}
		toolRunner, err := compileToolPlanningGraph(ctx, toolModel, systemPrompt, role)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
		}
		s.toolRunner = toolRunner
		for _, t := range tools {
			if t != nil && strings.TrimSpace(t.Name) != "" {
				s.requestedTools = append(s.requestedTools, t.Name)
			}
		}
	}

	runtimeRunner, err := compileStageRuntimeGraph(ctx, role, s.gatherEvidence, s.composeAnswer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	s.runtimeRunner = runtimeRunner

	return s, nil
}

func (s *stageInvoker) Invoke(ctx context.Context, in contractx.StageInput) (contractx.StageOutput, error) {
	return s.runtimeRunner.Invoke(ctx, in)
}

func (s *stageInvoker) RequestedTools() []string {
	return append([]string(nil), s.requestedTools...)
}

// gatherEvidence asks the model which of the granted tools to call and
// executes the calls. A call naming a tool that was not granted is answered
// with an error result instead of executing; the stage itself keeps going.
func (s *stageInvoker) gatherEvidence(ctx context.Context, st *stageGraphState) (*stageGraphState, error) {
	if s.toolRunner == nil || len(st.In.Tools) == 0 {
		return st, nil
	}

	payload := map[string]any{
		"mode":  "gather",
		"text":  st.In.Request.Text,
		"tools": grantedToolNames(st.In.Tools),
	}
	addSessionPayload(payload, st.In)
	input, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal gather payload: %v", contractx.ErrSchemaViolation, err)
	}

	msg, err := s.toolRunner.Invoke(ctx, map[string]any{"input": string(input)})
	if err != nil {
		return nil, fmt.Errorf("%w: tool planning invoke: %v", contractx.ErrModelInvoke, err)
	}
	if msg == nil || len(msg.ToolCalls) == 0 {
		return st, nil
	}

	for _, call := range msg.ToolCalls {
		name := strings.TrimSpace(call.Function.Name)
		if name == "" {
			continue
		}

		binding, ok := st.In.PermittedTool(name)
		if !ok {
			log.Warn().
				Str("role", string(s.role)).
				Str("tool", name).
				Msg("model requested a tool outside its grant")
			st.ToolResults = append(st.ToolResults, contractx.ToolResult{
				Tool:  name,
				Error: "tool not permitted for this role",
			})
			continue
		}

		args := map[string]any{}
		if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				st.ToolResults = append(st.ToolResults, contractx.ToolResult{
					Tool:  name,
					Error: fmt.Sprintf("invalid tool arguments: %v", err),
				})
				continue
			}
		}

		res, err := binding.Execute(ctx, args)
		if err != nil {
			st.ToolResults = append(st.ToolResults, contractx.ToolResult{
				Tool:  name,
				Error: err.Error(),
			})
			continue
		}
		res.Tool = name
		st.ToolResults = append(st.ToolResults, res)
	}
	return st, nil
}

func (s *stageInvoker) composeAnswer(ctx context.Context, st *stageGraphState) (contractx.StageOutput, error) {
	payload := map[string]any{
		"mode": "answer",
		"text": st.In.Request.Text,
	}
	addSessionPayload(payload, st.In)
	if st.In.Prev != nil {
		payload["previous_stage"] = map[string]any{
			"text":   st.In.Prev.Text,
			"fields": st.In.Prev.Fields,
		}
	}
	if len(st.ToolResults) > 0 {
		payload["tool_results"] = st.ToolResults
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return contractx.StageOutput{}, fmt.Errorf("%w: marshal answer payload: %v", contractx.ErrSchemaViolation, err)
	}

	out, err := s.answerRunner.Invoke(ctx, map[string]any{"input": string(input)})
	if err != nil {
		return contractx.StageOutput{}, fmt.Errorf("%w: stage invoke for role=%s: %v", contractx.ErrModelInvoke, s.role, err)
	}

	text := strings.TrimSpace(out.Text)
	if text == "" {
		return contractx.StageOutput{}, fmt.Errorf("%w: role=%s returned empty text", contractx.ErrSchemaViolation, s.role)
	}
	return contractx.StageOutput{
		Text:       text,
		Fields:     out.Fields,
		Confidence: clampConfidence(out.Confidence),
	}, nil
}

func addSessionPayload(payload map[string]any, in contractx.StageInput) {
	payload["session"] = map[string]any{
		"document_refs": in.Context.DocumentRefs,
		"recent_turns":  in.Context.RecentTurns,
	}
	if len(in.Request.DocumentRefs) > 0 {
		payload["document_refs"] = in.Request.DocumentRefs
	}
}

func grantedToolNames(bindings []contractx.ToolBinding) []string {
	names := make([]string, 0, len(bindings))
	for _, b := range bindings {
		names = append(names, b.Name)
	}
	return names
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

// stageTools declares, per role, the tool surface the model is bound with.
// The actual grant at runtime is the policy intersection; binding a tool here
// only lets the model ask for it.
func stageTools(role contractx.AgentRole) []*schema.ToolInfo {
	switch role {
	case contractx.RoleGeneralKnowledge:
		return []*schema.ToolInfo{
			{
				Name: tool.ToolMathEvaluate,
				Desc: "Evaluate a mathematical expression.",
				ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
					"expression": {Type: schema.String, Desc: "Expression to evaluate", Required: true},
				}),
			},
			{
				Name: tool.ToolGeneralSearch,
				Desc: "Search general knowledge sources.",
				ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
					"query": {Type: schema.String, Desc: "Search query", Required: true},
				}),
			},
		}
	case contractx.RoleInformationExtractor:
		return []*schema.ToolInfo{
			{
				Name: tool.ToolDocumentSearch,
				Desc: "Search registered documents for relevant passages.",
				ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
					"query": {Type: schema.String, Desc: "Search query", Required: true},
				}),
			},
			{
				Name: tool.ToolDocumentRead,
				Desc: "Read the full text of a registered document.",
				ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
					"ref": {Type: schema.String, Desc: "Document reference", Required: true},
				}),
			},
		}
	case contractx.RoleDocumentComparison, contractx.RoleQuestionGenerator:
		return []*schema.ToolInfo{
			{
				Name: tool.ToolDocumentSearch,
				Desc: "Search registered documents for relevant passages.",
				ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
					"query": {Type: schema.String, Desc: "Search query", Required: true},
				}),
			},
		}
	default:
		return nil
	}
}
