package nodes

import (
	"context"

	"github.com/rs/zerolog/log"

	statex "github.com/chayanin/docrouter/agent/state"
)

// AppendTurn records the finished turn in the session history. Every executed
// turn is recorded, including cancelled and failed ones; history write
// problems are logged and never change the caller-visible result.
func AppendTurn(ctx context.Context, in *GraphState, store *statex.Store) (*GraphState, error) {
	// The request context may already be cancelled; history still has to be
	// written.
	if _, err := store.AppendTurn(context.WithoutCancel(ctx), in.Request.SessionID, in.Request, in.Decision, in.Result); err != nil {
		log.Error().
			Err(err).
			Str("session_id", in.Request.SessionID).
			Msg("failed to append turn to session history")
	}
	return in, nil
}
