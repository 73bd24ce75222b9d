package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/chayanin/docrouter/agent/contract"
	"github.com/chayanin/docrouter/agent/tool"
)

// degraded below this confidence even when the invoker reported success.
const degradedConfidence = 0.3

// Registry maps roles to their invokers and is the single place tool access is
// decided: every invocation passes through Invoke, which intersects the
// invoker's requested tools with the live policy before the invoker runs.
type Registry struct {
	mu     sync.RWMutex
	agents map[contractx.AgentRole]*agentEntry

	policy  *tool.Policy
	catalog *tool.Catalog
	now     func() time.Time
}

type agentEntry struct {
	role        contractx.AgentRole
	description string
	invoker     contractx.Invoker
	health      *healthTracker
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

func New(policy *tool.Policy, catalog *tool.Catalog, opts ...RegistryOption) *Registry {
	r := &Registry{
		agents:  make(map[contractx.AgentRole]*agentEntry),
		policy:  policy,
		catalog: catalog,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Register binds an invoker to a role, replacing any previous binding.
func (r *Registry) Register(role contractx.AgentRole, description string, inv contractx.Invoker) error {
	if strings.TrimSpace(string(role)) == "" {
		return fmt.Errorf("%w: empty role", contractx.ErrUnknownRole)
	}
	if inv == nil {
		return fmt.Errorf("nil invoker for role %q", role)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[role] = &agentEntry{
		role:        role,
		description: description,
		invoker:     inv,
		health:      &healthTracker{},
	}
	return nil
}

// Invoke runs one pipeline stage for role. Tool access is granted here and
// only here: the invoker sees exactly the intersection of what it requested
// and what the policy allows the role, resolved to live bindings.
//
// The returned PipelineStageResult is always populated, including on error, so
// callers can record it in the trace.
func (r *Registry) Invoke(ctx context.Context, role contractx.AgentRole, in contractx.StageInput) (contractx.PipelineStageResult, error) {
	e := r.lookup(role)
	if e == nil {
		res := contractx.PipelineStageResult{
			Role:   role,
			Status: contractx.StageFailed,
			Cause:  "unknown role",
		}
		return res, fmt.Errorf("%w: %s", contractx.ErrUnknownRole, role)
	}

	now := r.now()
	if !e.health.admit(now) {
		res := contractx.PipelineStageResult{
			Role:   role,
			Status: contractx.StageFailed,
			Cause:  "role unavailable",
		}
		return res, fmt.Errorf("%w: %s", contractx.ErrRoleUnavailable, role)
	}

	granted := r.policy.Intersect(role, e.invoker.RequestedTools())
	in.Tools = r.catalog.Bindings(granted)

	start := now
	out, err := e.invoker.Invoke(ctx, in)
	elapsed := r.now().Sub(start)

	res := contractx.PipelineStageResult{
		Role:       role,
		Output:     out,
		DurationMs: elapsed.Milliseconds(),
	}

	if err != nil {
		// Caller cancellation is not a fault of the role and must not push it
		// toward Unavailable.
		if !errors.Is(err, context.Canceled) {
			e.health.recordFailure(r.now())
		}
		res.Status = contractx.StageFailed
		res.Output = contractx.StageOutput{}

		cause := err
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			res.Cause = "stage timeout"
			cause = fmt.Errorf("%w: %v", contractx.ErrStageTimeout, err)
		case errors.Is(err, context.Canceled):
			res.Cause = "cancelled"
		default:
			res.Cause = err.Error()
		}

		log.Warn().
			Err(err).
			Str("role", string(role)).
			Dur("elapsed", elapsed).
			Msg("stage invocation failed")
		return res, &contractx.StageFailure{Role: role, Cause: cause}
	}

	e.health.recordSuccess()
	res.Status = contractx.StageOk
	if out.Confidence > 0 && out.Confidence < degradedConfidence {
		res.Status = contractx.StageDegraded
		res.Cause = fmt.Sprintf("low stage confidence %.2f", out.Confidence)
	}
	return res, nil
}

// HealthOf reports the current health of one role.
func (r *Registry) HealthOf(role contractx.AgentRole) (contractx.Health, error) {
	e := r.lookup(role)
	if e == nil {
		return contractx.HealthUnavailable, fmt.Errorf("%w: %s", contractx.ErrUnknownRole, role)
	}
	return e.health.state(), nil
}

// Has reports whether an invoker is registered for role.
func (r *Registry) Has(role contractx.AgentRole) bool {
	return r.lookup(role) != nil
}

// List describes every registered role, sorted by role name, with the tools
// the live policy allows it.
func (r *Registry) List() []contractx.AgentInfo {
	r.mu.RLock()
	entries := make([]*agentEntry, 0, len(r.agents))
	for _, e := range r.agents {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].role < entries[j].role })

	infos := make([]contractx.AgentInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, contractx.AgentInfo{
			Role:         e.role,
			Description:  e.description,
			AllowedTools: r.policy.Names(e.role),
			Health:       e.health.state(),
		})
	}
	return infos
}

func (r *Registry) lookup(role contractx.AgentRole) *agentEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.agents[role]
}
