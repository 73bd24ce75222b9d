package nodes

import (
	contractx "github.com/chayanin/docrouter/agent/contract"
)

// FinalizeResult hands back the structured result as the graph output.
func FinalizeResult(in *GraphState) (contractx.OrchestrationResult, error) {
	return in.Result, nil
}
