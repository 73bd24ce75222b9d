package state

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	contractx "github.com/chayanin/docrouter/agent/contract"
)

type recordingMirror struct {
	mu      sync.Mutex
	saves   []Session
	deletes []string
	err     error
}

func (m *recordingMirror) Save(ctx context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saves = append(m.saves, s)
	return nil
}

func (m *recordingMirror) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, sessionID)
	return nil
}

func okResult(text string) contractx.OrchestrationResult {
	return contractx.OrchestrationResult{
		Status:      contractx.StatusOk,
		FinalOutput: contractx.StageOutput{Text: text},
	}
}

func TestGetOrCreateIsIdempotentPerID(t *testing.T) {
	t.Parallel()

	st := NewStore()
	a, err := st.GetOrCreate("s1")
	require.NoError(t, err)
	b, err := st.GetOrCreate("s1")
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, a.CreatedAt, b.CreatedAt)
	assert.Equal(t, 1, st.Len())

	_, err = st.GetOrCreate("   ")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestMergeDocumentsIdempotent(t *testing.T) {
	t.Parallel()

	st := NewStore()
	ctx := context.Background()

	added, err := st.MergeDocuments(ctx, "s1", []string{"doc-a", "doc-b"})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = st.MergeDocuments(ctx, "s1", []string{"doc-a", "doc-b"})
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	added, err = st.MergeDocuments(ctx, "s1", []string{"doc-b", "doc-c", ""})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	snap, err := st.GetOrCreate("s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-a", "doc-b", "doc-c"}, snap.DocumentRefs)
}

func TestAppendTurnOrderAndHistoryLength(t *testing.T) {
	t.Parallel()

	st := NewStore()
	ctx := context.Background()

	const n = 25
	for i := 0; i < n; i++ {
		req := contractx.Request{SessionID: "s1", Text: fmt.Sprintf("q%d", i)}
		_, err := st.AppendTurn(ctx, "s1", req, contractx.RoutingDecision{}, okResult("a"))
		require.NoError(t, err)
	}

	snap, err := st.GetOrCreate("s1")
	require.NoError(t, err)
	require.Len(t, snap.Turns, n)
	for i, turn := range snap.Turns {
		assert.Equal(t, fmt.Sprintf("q%d", i), turn.Request.Text)
		assert.NotEmpty(t, turn.ID)
	}
}

func TestConcurrentTurnsWithAcquireAreSerialized(t *testing.T) {
	t.Parallel()

	st := NewStore()
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			release, err := st.Acquire("shared")
			if !assert.NoError(t, err) {
				return
			}
			defer release()
			// Whole turn under the session lock, as a front end serializing
			// same-session requests would.
			_, err = st.AppendTurn(ctx, "shared", contractx.Request{SessionID: "shared", Text: fmt.Sprintf("q%d", i)}, contractx.RoutingDecision{}, okResult("a"))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	snap, err := st.GetOrCreate("shared")
	require.NoError(t, err)
	assert.Len(t, snap.Turns, workers)
	seen := map[string]bool{}
	for _, turn := range snap.Turns {
		assert.False(t, seen[turn.Request.Text], "duplicate or corrupted turn %q", turn.Request.Text)
		seen[turn.Request.Text] = true
	}
}

func TestDifferentSessionsDoNotBlock(t *testing.T) {
	t.Parallel()

	st := NewStore()
	release, err := st.Acquire("a")
	require.NoError(t, err)
	defer release()

	done := make(chan struct{})
	go func() {
		_, err := st.AppendTurn(context.Background(), "b", contractx.Request{SessionID: "b", Text: "q"}, contractx.RoutingDecision{}, okResult("a"))
		assert.NoError(t, err)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("turn on a different session blocked behind held lock")
	}
}

func TestEvictIdle(t *testing.T) {
	t.Parallel()

	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	now := clock
	st := NewStore(WithClock(func() time.Time { return now }), WithIdleTTL(time.Hour))

	_, err := st.GetOrCreate("old")
	require.NoError(t, err)

	now = clock.Add(2 * time.Hour)
	_, err = st.GetOrCreate("fresh")
	require.NoError(t, err)

	evicted := st.EvictIdle(now, 0)
	assert.Equal(t, 1, evicted)
	assert.Equal(t, 1, st.Len())

	// The fresh session survives.
	_, err = st.GetOrCreate("fresh")
	require.NoError(t, err)
	assert.Equal(t, 1, st.Len())
}

func TestSnapshotDoesNotAliasStoreState(t *testing.T) {
	t.Parallel()

	st := NewStore()
	ctx := context.Background()
	_, err := st.MergeDocuments(ctx, "s1", []string{"doc-a"})
	require.NoError(t, err)

	snap, err := st.GetOrCreate("s1")
	require.NoError(t, err)
	snap.DocumentRefs[0] = "mutated"

	again, err := st.GetOrCreate("s1")
	require.NoError(t, err)
	assert.Equal(t, "doc-a", again.DocumentRefs[0])
}

func TestMirrorWriteThrough(t *testing.T) {
	t.Parallel()

	mirror := &recordingMirror{}
	st := NewStore(WithMirror(mirror))
	ctx := context.Background()

	_, err := st.AppendTurn(ctx, "s1", contractx.Request{SessionID: "s1", Text: "q"}, contractx.RoutingDecision{}, okResult("a"))
	require.NoError(t, err)
	_, err = st.MergeDocuments(ctx, "s1", []string{"doc-a"})
	require.NoError(t, err)

	mirror.mu.Lock()
	saves := len(mirror.saves)
	mirror.mu.Unlock()
	assert.Equal(t, 2, saves)

	st.Delete(ctx, "s1")
	mirror.mu.Lock()
	assert.Equal(t, []string{"s1"}, mirror.deletes)
	mirror.mu.Unlock()
}

func TestMirrorFailureDoesNotFailTurn(t *testing.T) {
	t.Parallel()

	mirror := &recordingMirror{err: fmt.Errorf("mirror down")}
	st := NewStore(WithMirror(mirror))

	_, err := st.AppendTurn(context.Background(), "s1", contractx.Request{SessionID: "s1", Text: "q"}, contractx.RoutingDecision{}, okResult("a"))
	require.NoError(t, err)

	snap, err := st.GetOrCreate("s1")
	require.NoError(t, err)
	assert.Len(t, snap.Turns, 1)
}

func TestSessionContextRecentTurns(t *testing.T) {
	t.Parallel()

	st := NewStore()
	ctx := context.Background()
	_, err := st.MergeDocuments(ctx, "s1", []string{"doc-a"})
	require.NoError(t, err)

	for i := 0; i < defaultRecentTurns+5; i++ {
		decision := contractx.RoutingDecision{Target: contractx.RoleGeneralKnowledge}
		_, err := st.AppendTurn(ctx, "s1", contractx.Request{SessionID: "s1", Text: fmt.Sprintf("q%d", i)}, decision, okResult("a"))
		require.NoError(t, err)
	}

	sctx, err := st.Context("s1")
	require.NoError(t, err)
	assert.True(t, sctx.HasDocuments())
	require.Len(t, sctx.RecentTurns, defaultRecentTurns)
	// The window keeps the most recent turns.
	assert.Equal(t, fmt.Sprintf("q%d", defaultRecentTurns+4), sctx.RecentTurns[len(sctx.RecentTurns)-1].Query)
	assert.Equal(t, contractx.RoleGeneralKnowledge, sctx.RecentTurns[0].Target)
}
