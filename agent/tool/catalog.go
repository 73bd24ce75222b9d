package tool

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/chayanin/docrouter/agent/contract"
)

const (
	ToolMathEvaluate   = "math.evaluate"
	ToolGeneralSearch  = "general.search"
	ToolDocumentSearch = "document.search"
	ToolDocumentRead   = "document.read"
)

// Catalog builds callable tool bindings by name. Tools backed by external
// capabilities (document extraction, search) degrade to an unavailable result
// when the capability was not wired; they never fail the stage.
type Catalog struct {
	extractor contractx.DocumentExtractor
}

func NewCatalog(extractor contractx.DocumentExtractor) *Catalog {
	return &Catalog{extractor: extractor}
}

// Binding resolves a single tool name.
func (c *Catalog) Binding(name string) (contractx.ToolBinding, bool) {
	switch name {
	case ToolMathEvaluate:
		return contractx.ToolBinding{
			Name:        ToolMathEvaluate,
			Description: "Evaluate a mathematical expression.",
			Execute: func(ctx context.Context, args map[string]any) (contractx.ToolResult, error) {
				return evaluateTool(ToolMathEvaluate, args)
			},
		}, true
	case ToolDocumentRead:
		return contractx.ToolBinding{
			Name:        ToolDocumentRead,
			Description: "Read the extracted text of an attached document by its ref.",
			Execute:     c.documentRead,
		}, true
	case ToolDocumentSearch:
		return contractx.ToolBinding{
			Name:        ToolDocumentSearch,
			Description: "Semantic search over attached document content.",
			Execute:     unavailableExec(ToolDocumentSearch),
		}, true
	case ToolGeneralSearch:
		return contractx.ToolBinding{
			Name:        ToolGeneralSearch,
			Description: "General web/knowledge search.",
			Execute:     unavailableExec(ToolGeneralSearch),
		}, true
	default:
		return contractx.ToolBinding{}, false
	}
}

// Bindings resolves a permitted name list in order, skipping unknown names.
func (c *Catalog) Bindings(names []string) []contractx.ToolBinding {
	out := make([]contractx.ToolBinding, 0, len(names))
	for _, name := range names {
		if b, ok := c.Binding(name); ok {
			out = append(out, b)
		}
	}
	return out
}

func (c *Catalog) documentRead(ctx context.Context, args map[string]any) (contractx.ToolResult, error) {
	ref, _ := args["ref"].(string)
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return contractx.ToolResult{Tool: ToolDocumentRead, Error: "ref is required"}, nil
	}
	if c.extractor == nil {
		return contractx.ToolResult{Tool: ToolDocumentRead, Error: "document extraction capability is not configured"}, nil
	}

	text, err := c.extractor.Extract(ctx, ref)
	if err != nil {
		return contractx.ToolResult{Tool: ToolDocumentRead, Error: err.Error()}, nil
	}
	return contractx.ToolResult{Tool: ToolDocumentRead, Result: text}, nil
}

func unavailableExec(tool string) contractx.ToolFunc {
	return func(ctx context.Context, _ map[string]any) (contractx.ToolResult, error) {
		return contractx.ToolResult{
			Tool:  tool,
			Error: fmt.Sprintf("tool=%s has no backing capability in this deployment", tool),
		}, nil
	}
}
