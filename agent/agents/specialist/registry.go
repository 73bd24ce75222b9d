package specialist

import (
	"context"
	"fmt"

	"github.com/chayanin/docrouter/agent/classifier"
	contractx "github.com/chayanin/docrouter/agent/contract"
	llmx "github.com/chayanin/docrouter/agent/llm"
	promptx "github.com/chayanin/docrouter/agent/prompt"
	registryx "github.com/chayanin/docrouter/agent/registry"
)

// AgentSet bundles the LLM-backed collaborators: the semantic classification
// tier and one stage invoker per specialist role.
type AgentSet struct {
	semantic contractx.SemanticClassifier
	invokers map[contractx.AgentRole]contractx.Invoker
	catalog  []contractx.RoleInfo
}

// NewAgentSet builds every model-backed agent from the LLM config. Each role
// gets its own chat model so model and temperature can differ per role.
func NewAgentSet(ctx context.Context, cfg llmx.Config) (*AgentSet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	prompts := promptx.LoadPromptSet()

	coordinatorCfg := cfg.OpenRouterFor(contractx.RoleCoordinator)
	coordinatorModel, err := coordinatorCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create coordinator model: %v", contractx.ErrModelInvoke, err)
	}
	semantic, err := newSemanticClassifier(ctx, coordinatorModel, prompts.Coordinator)
	if err != nil {
		return nil, err
	}

	set := &AgentSet{
		semantic: semantic,
		invokers: make(map[contractx.AgentRole]contractx.Invoker),
		catalog:  classifier.DefaultRoleCatalog(),
	}

	for _, info := range set.catalog {
		modelCfg := cfg.OpenRouterFor(info.Role)
		chatModel, err := modelCfg.New(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: create model for role=%s: %v", contractx.ErrModelInvoke, info.Role, err)
		}
		prompt, err := prompts.For(info.Role)
		if err != nil {
			return nil, err
		}
		inv, err := newStageInvoker(ctx, info.Role, chatModel, prompt)
		if err != nil {
			return nil, err
		}
		set.invokers[info.Role] = inv
	}

	return set, nil
}

// Semantic returns the classification tier.
func (s *AgentSet) Semantic() contractx.SemanticClassifier {
	return s.semantic
}

// Register binds every invoker into the agent registry.
func (s *AgentSet) Register(reg *registryx.Registry) error {
	for _, info := range s.catalog {
		inv, ok := s.invokers[info.Role]
		if !ok {
			return fmt.Errorf("%w: no invoker built for role=%s", contractx.ErrUnknownRole, info.Role)
		}
		if err := reg.Register(info.Role, info.Description, inv); err != nil {
			return err
		}
	}
	return nil
}
