package tool

import (
	"sort"
	"sync/atomic"

	contractx "github.com/chayanin/docrouter/agent/contract"
)

// Table maps an agent role to the tool names it may call. A role absent from
// the table is allowed nothing.
type Table map[contractx.AgentRole][]string

// Policy is the process-wide tool access policy. Reads capture an immutable
// snapshot; Swap replaces the whole table atomically so in-flight requests
// keep the view they started with.
type Policy struct {
	snap atomic.Pointer[policySnapshot]
}

type policySnapshot struct {
	allowed map[contractx.AgentRole]map[string]struct{}
}

func NewPolicy(table Table) *Policy {
	p := &Policy{}
	p.Swap(table)
	return p
}

// Swap installs table as the new policy. The previous snapshot stays valid for
// callers that already captured it.
func (p *Policy) Swap(table Table) {
	snap := &policySnapshot{
		allowed: make(map[contractx.AgentRole]map[string]struct{}, len(table)),
	}
	for role, names := range table {
		set := make(map[string]struct{}, len(names))
		for _, name := range names {
			if name == "" {
				continue
			}
			set[name] = struct{}{}
		}
		snap.allowed[role] = set
	}
	p.snap.Store(snap)
}

// AllowedFor returns the allowed-tool set for role as of now. The returned set
// is immutable; callers must not modify it.
func (p *Policy) AllowedFor(role contractx.AgentRole) map[string]struct{} {
	snap := p.snap.Load()
	if snap == nil {
		return nil
	}
	return snap.allowed[role]
}

// Names returns the allowed tool names for role, sorted, as a fresh slice.
func (p *Policy) Names(role contractx.AgentRole) []string {
	set := p.AllowedFor(role)
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Intersect filters requested down to the names role may call, preserving the
// requested order. This is the single enforcement chokepoint's core operation.
func (p *Policy) Intersect(role contractx.AgentRole, requested []string) []string {
	set := p.AllowedFor(role)
	if len(set) == 0 {
		return nil
	}
	permitted := make([]string, 0, len(requested))
	for _, name := range requested {
		if _, ok := set[name]; ok {
			permitted = append(permitted, name)
		}
	}
	return permitted
}

// DefaultTable is the shipped role→tool mapping.
func DefaultTable() Table {
	return Table{
		contractx.RoleCoordinator:          {ToolGeneralSearch},
		contractx.RoleGeneralKnowledge:     {ToolMathEvaluate, ToolGeneralSearch},
		contractx.RoleInformationExtractor: {ToolDocumentSearch, ToolDocumentRead},
		contractx.RoleDocumentComparison:   {ToolDocumentSearch},
		contractx.RoleQuestionGenerator:    {ToolDocumentSearch},
		contractx.RoleComparisonAnalyst:    {},
	}
}
