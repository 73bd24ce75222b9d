package state

import (
	"time"

	contractx "github.com/chayanin/docrouter/agent/contract"
)

// Turn is one completed (or failed) request/response exchange.
type Turn struct {
	ID       string                       `json:"id"`
	Request  contractx.Request            `json:"request"`
	Decision contractx.RoutingDecision    `json:"decision"`
	Result   contractx.OrchestrationResult `json:"result"`
	At       time.Time                    `json:"at"`
}

// StageCursor marks the in-flight pipeline position for observability while a
// turn is executing.
type StageCursor struct {
	Decision  contractx.RoutingDecision `json:"decision"`
	Index     int                       `json:"index"`
	StartedAt time.Time                 `json:"started_at"`
}

// Session is owned exclusively by the Store. External callers only ever see
// value copies produced by snapshot(); no component holds a live reference to
// another session's internals.
type Session struct {
	ID           string       `json:"id"`
	CreatedAt    time.Time    `json:"created_at"`
	LastActiveAt time.Time    `json:"last_active_at"`
	DocumentRefs []string     `json:"document_refs,omitempty"`
	Turns        []Turn       `json:"turns,omitempty"`
	Cursor       *StageCursor `json:"cursor,omitempty"`
}

func newSession(id string, now time.Time) *Session {
	return &Session{
		ID:           id,
		CreatedAt:    now.UTC(),
		LastActiveAt: now.UTC(),
	}
}

func (s *Session) touch(now time.Time) {
	s.LastActiveAt = now.UTC()
}

// mergeDocuments unions refs into the session's document set, preserving first
// insertion order. Calling it twice with the same refs is a no-op the second
// time; the returned count is the number of refs actually added.
func (s *Session) mergeDocuments(refs []string) int {
	if len(refs) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(s.DocumentRefs))
	for _, ref := range s.DocumentRefs {
		seen[ref] = struct{}{}
	}
	added := 0
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		s.DocumentRefs = append(s.DocumentRefs, ref)
		added++
	}
	return added
}

func (s *Session) appendTurn(t Turn, now time.Time) {
	s.Turns = append(s.Turns, t)
	s.Cursor = nil
	s.touch(now)
}

// context builds the read-only view handed to the classifier and stages.
func (s *Session) context(maxTurns int) contractx.SessionContext {
	sctx := contractx.SessionContext{
		SessionID:    s.ID,
		DocumentRefs: append([]string(nil), s.DocumentRefs...),
	}
	start := 0
	if maxTurns > 0 && len(s.Turns) > maxTurns {
		start = len(s.Turns) - maxTurns
	}
	for _, t := range s.Turns[start:] {
		sctx.RecentTurns = append(sctx.RecentTurns, contractx.TurnSummary{
			Target: t.Decision.Target,
			Query:  t.Request.Text,
			Status: t.Result.Status,
		})
	}
	return sctx
}

// snapshot deep-copies the session so callers cannot alias store-owned state.
func (s *Session) snapshot() Session {
	out := Session{
		ID:           s.ID,
		CreatedAt:    s.CreatedAt,
		LastActiveAt: s.LastActiveAt,
		DocumentRefs: append([]string(nil), s.DocumentRefs...),
	}
	if len(s.Turns) > 0 {
		out.Turns = make([]Turn, len(s.Turns))
		for i, t := range s.Turns {
			out.Turns[i] = cloneTurn(t)
		}
	}
	if s.Cursor != nil {
		cur := *s.Cursor
		cur.Decision.Pipeline = append([]contractx.AgentRole(nil), s.Cursor.Decision.Pipeline...)
		out.Cursor = &cur
	}
	return out
}

func cloneTurn(t Turn) Turn {
	t.Request.DocumentRefs = append([]string(nil), t.Request.DocumentRefs...)
	t.Decision.Pipeline = append([]contractx.AgentRole(nil), t.Decision.Pipeline...)
	t.Result.Decision.Pipeline = append([]contractx.AgentRole(nil), t.Result.Decision.Pipeline...)
	if len(t.Result.Trace) > 0 {
		trace := make([]contractx.PipelineStageResult, len(t.Result.Trace))
		for i, sr := range t.Result.Trace {
			sr.Output.Fields = cloneFields(sr.Output.Fields)
			trace[i] = sr
		}
		t.Result.Trace = trace
	}
	t.Result.FinalOutput.Fields = cloneFields(t.Result.FinalOutput.Fields)
	return t
}

func cloneFields(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
