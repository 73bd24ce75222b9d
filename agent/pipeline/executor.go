package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/chayanin/docrouter/agent/contract"
	"github.com/chayanin/docrouter/agent/state"
)

// Config holds the executor tunables.
type Config struct {
	StageTimeout time.Duration `envconfig:"STAGE_TIMEOUT" split_words:"true" default:"60s"`
}

// StageRunner invokes one stage for one role. Satisfied by registry.Registry.
type StageRunner interface {
	Invoke(ctx context.Context, role contractx.AgentRole, in contractx.StageInput) (contractx.PipelineStageResult, error)
}

// CursorStore records the in-flight pipeline position so an observer can tell
// where a long pipeline currently is. Satisfied by state.Store.
type CursorStore interface {
	SetCursor(sessionID string, cur state.StageCursor) error
	ClearCursor(sessionID string)
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

func WithCursorStore(cs CursorStore) ExecutorOption {
	return func(e *Executor) { e.cursors = cs }
}

func WithFallbackRole(role contractx.AgentRole) ExecutorOption {
	return func(e *Executor) { e.fallback = role }
}

func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// Executor runs the stages of a RoutingDecision strictly in order. Stage i+1
// starts only after stage i finished, and receives stage i's output. A failed
// stage aborts the remainder; the only retry in the engine is a single
// fallback attempt when the very first stage fails.
type Executor struct {
	runner       StageRunner
	cursors      CursorStore
	stageTimeout time.Duration
	fallback     contractx.AgentRole
	now          func() time.Time
}

func NewExecutor(cfg Config, runner StageRunner, opts ...ExecutorOption) *Executor {
	e := &Executor{
		runner:       runner,
		stageTimeout: cfg.StageTimeout,
		fallback:     contractx.RoleGeneralKnowledge,
		now:          time.Now,
	}
	if e.stageTimeout <= 0 {
		e.stageTimeout = 60 * time.Second
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Run executes the decision's stages and always returns a populated
// OrchestrationResult; execution failures are encoded in Status and the trace,
// never returned as errors.
func (e *Executor) Run(
	ctx context.Context,
	req contractx.Request,
	decision contractx.RoutingDecision,
	sctx contractx.SessionContext,
) contractx.OrchestrationResult {
	stages := decision.Stages()
	result := contractx.OrchestrationResult{
		Decision: decision,
		Trace:    make([]contractx.PipelineStageResult, 0, len(stages)),
	}
	defer e.clearCursor(req.SessionID)

	var prev *contractx.StageOutput
	degraded := false

	for i, role := range stages {
		if err := ctx.Err(); err != nil {
			result.Status = contractx.StatusCancelled
			result.Message = fmt.Sprintf("cancelled before stage %d (%s)", i+1, role)
			return result
		}
		e.setCursor(req.SessionID, decision, i)

		res, err := e.invokeStage(ctx, role, contractx.StageInput{
			Request: req,
			Context: sctx,
			Prev:    prev,
		})
		result.Trace = append(result.Trace, res)

		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				result.Status = contractx.StatusCancelled
				result.Message = fmt.Sprintf("cancelled during stage %d (%s)", i+1, role)
				return result
			}
			if i == 0 && role != e.fallback {
				return e.runFallback(ctx, req, sctx, result)
			}
			// A failed response still carries what the succeeded stages
			// produced.
			result.FinalOutput = synthesize(result.Trace[:i])
			result.Status = contractx.StatusFailed
			result.Message = fmt.Sprintf("stage %d (%s) failed: %s", i+1, role, res.Cause)
			return result
		}

		if res.Status == contractx.StageDegraded {
			degraded = true
		}
		out := res.Output
		prev = &out
	}

	result.FinalOutput = synthesize(result.Trace)
	result.Status = contractx.StatusOk
	if degraded {
		result.Status = contractx.StatusDegraded
		result.Message = "one or more stages completed with degraded output"
	}
	return result
}

// runFallback makes the single retry the engine allows: the failed first
// stage is replaced by one general-knowledge attempt.
func (e *Executor) runFallback(
	ctx context.Context,
	req contractx.Request,
	sctx contractx.SessionContext,
	result contractx.OrchestrationResult,
) contractx.OrchestrationResult {
	failed := result.Trace[len(result.Trace)-1]
	log.Info().
		Str("failed_role", string(failed.Role)).
		Str("fallback_role", string(e.fallback)).
		Str("session_id", req.SessionID).
		Msg("first stage failed, retrying with fallback role")

	res, err := e.invokeStage(ctx, e.fallback, contractx.StageInput{
		Request: req,
		Context: sctx,
	})
	result.Trace = append(result.Trace, res)

	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			result.Status = contractx.StatusCancelled
			result.Message = "cancelled during fallback stage"
			return result
		}
		result.Status = contractx.StatusFailed
		result.Message = fmt.Sprintf("stage 1 (%s) failed and fallback (%s) failed: %s", failed.Role, e.fallback, res.Cause)
		return result
	}

	result.FinalOutput = res.Output
	result.Status = contractx.StatusDegraded
	result.Message = fmt.Sprintf("answered by fallback role after %s failed", failed.Role)
	return result
}

func (e *Executor) invokeStage(ctx context.Context, role contractx.AgentRole, in contractx.StageInput) (contractx.PipelineStageResult, error) {
	sctx, cancel := context.WithTimeout(ctx, e.stageTimeout)
	defer cancel()
	return e.runner.Invoke(sctx, role, in)
}

func (e *Executor) setCursor(sessionID string, decision contractx.RoutingDecision, index int) {
	if e.cursors == nil {
		return
	}
	_ = e.cursors.SetCursor(sessionID, state.StageCursor{
		Decision:  decision,
		Index:     index,
		StartedAt: e.now().UTC(),
	})
}

func (e *Executor) clearCursor(sessionID string) {
	if e.cursors != nil {
		e.cursors.ClearCursor(sessionID)
	}
}

// synthesize builds the final output from a fully executed trace: the last
// stage's text, the merged field set of every stage (later stages win), and
// the weakest stage confidence.
func synthesize(trace []contractx.PipelineStageResult) contractx.StageOutput {
	if len(trace) == 0 {
		return contractx.StageOutput{}
	}

	out := contractx.StageOutput{
		Text:       trace[len(trace)-1].Output.Text,
		Confidence: trace[len(trace)-1].Output.Confidence,
	}
	for _, res := range trace {
		if len(res.Output.Fields) > 0 && out.Fields == nil {
			out.Fields = make(map[string]string)
		}
		for k, v := range res.Output.Fields {
			out.Fields[k] = v
		}
		if c := res.Output.Confidence; c > 0 && (out.Confidence == 0 || c < out.Confidence) {
			out.Confidence = c
		}
	}
	return out
}
