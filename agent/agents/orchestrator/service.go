package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/chayanin/docrouter/agent/contract"
	nodex "github.com/chayanin/docrouter/agent/nodes"
	"github.com/chayanin/docrouter/agent/registry"
	statex "github.com/chayanin/docrouter/agent/state"
	"github.com/chayanin/docrouter/agent/tool"
)

// SystemHealth is the aggregate health report.
type SystemHealth struct {
	Overall contractx.Health      `json:"overall"`
	Agents  []contractx.AgentInfo `json:"agents"`
}

// Orchestrator is the coordinator facade: it owns the request graph and the
// supporting admin operations. Same-session requests are serialized here;
// requests for different sessions run concurrently.
type Orchestrator struct {
	store      *statex.Store
	classifier nodex.RequestClassifier
	registry   *registry.Registry
	executor   nodex.PipelineRunner
	policy     *tool.Policy

	graphRunner compose.Runnable[contractx.Request, contractx.OrchestrationResult]

	now func() time.Time
}

func New(
	store *statex.Store,
	cls nodex.RequestClassifier,
	reg *registry.Registry,
	exec nodex.PipelineRunner,
	policy *tool.Policy,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if cls == nil {
		return nil, errors.New("classifier is required")
	}
	if reg == nil {
		return nil, errors.New("agent registry is required")
	}
	if exec == nil {
		return nil, errors.New("pipeline executor is required")
	}
	if policy == nil {
		return nil, errors.New("tool policy is required")
	}

	o := &Orchestrator{
		store:      store,
		classifier: cls,
		registry:   reg,
		executor:   exec,
		policy:     policy,
		now:        time.Now,
	}

	graphRunner, err := o.compileProcessGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.graphRunner = graphRunner

	return o, nil
}

// Process runs one request end to end. A malformed request returns an error
// and leaves no trace in any session; every other outcome, including stage
// failures and cancellation, is reported in the OrchestrationResult.
func (o *Orchestrator) Process(ctx context.Context, req contractx.Request) (contractx.OrchestrationResult, error) {
	// Shape validation happens before the session is touched: a rejected
	// request must not create a session entry.
	if err := req.Validate(); err != nil {
		return contractx.OrchestrationResult{}, err
	}

	// One turn at a time per session; other sessions proceed unimpeded.
	release, err := o.store.Acquire(req.SessionID)
	if err != nil {
		return contractx.OrchestrationResult{}, fmt.Errorf("%w: %v", contractx.ErrInvalidRequest, err)
	}
	defer release()

	return o.graphRunner.Invoke(ctx, req)
}

// ListAgents describes every registered role with its policy-allowed tools
// and current health.
func (o *Orchestrator) ListAgents() []contractx.AgentInfo {
	return o.registry.List()
}

// UpdateToolPolicy atomically replaces the role/tool access table. Stages
// already in flight keep the capabilities they were granted; the next stage
// invocation sees the new table.
func (o *Orchestrator) UpdateToolPolicy(table tool.Table) {
	o.policy.Swap(table)
}

// HealthCheck aggregates per-role health: healthy only when every role is
// healthy, unavailable only when every role is, degraded otherwise.
func (o *Orchestrator) HealthCheck() SystemHealth {
	agents := o.registry.List()
	report := SystemHealth{Overall: contractx.HealthHealthy, Agents: agents}
	if len(agents) == 0 {
		report.Overall = contractx.HealthUnavailable
		return report
	}

	unavailable := 0
	for _, a := range agents {
		if a.Health != contractx.HealthHealthy {
			report.Overall = contractx.HealthDegraded
		}
		if a.Health == contractx.HealthUnavailable {
			unavailable++
		}
	}
	if unavailable == len(agents) {
		report.Overall = contractx.HealthUnavailable
	}
	return report
}

// RegisterDocuments merges refs into the session's document set outside a
// turn. Returns the number of refs that were new.
func (o *Orchestrator) RegisterDocuments(ctx context.Context, sessionID string, refs []string) (int, error) {
	added, err := o.store.MergeDocuments(ctx, sessionID, refs)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", contractx.ErrInvalidRequest, err)
	}
	return added, nil
}

// DeleteSession drops a session and its history.
func (o *Orchestrator) DeleteSession(ctx context.Context, sessionID string) bool {
	return o.store.Delete(ctx, sessionID)
}

// SessionCount reports the number of live sessions.
func (o *Orchestrator) SessionCount() int {
	return o.store.Len()
}
