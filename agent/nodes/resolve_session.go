package nodes

import (
	"context"
	"fmt"

	statex "github.com/chayanin/docrouter/agent/state"
)

// ResolveSession binds the request to its session: the session is created on
// first use, request documents are merged into the session set, and the
// read-only context handed to later nodes is built from the merged state.
func ResolveSession(ctx context.Context, in *GraphState, store *statex.Store) (*GraphState, error) {
	if _, err := store.GetOrCreate(in.Request.SessionID); err != nil {
		return nil, fmt.Errorf("resolve session: %w", err)
	}
	if len(in.Request.DocumentRefs) > 0 {
		if _, err := store.MergeDocuments(ctx, in.Request.SessionID, in.Request.DocumentRefs); err != nil {
			return nil, fmt.Errorf("merge documents: %w", err)
		}
	}

	sctx, err := store.Context(in.Request.SessionID)
	if err != nil {
		return nil, fmt.Errorf("session context: %w", err)
	}
	in.Context = sctx
	return in, nil
}
