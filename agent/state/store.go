package state

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/chayanin/docrouter/agent/contract"
)

var (
	ErrInvalidSession = errors.New("session id is empty")
)

const (
	defaultIdleTTL     = 24 * time.Hour
	defaultRecentTurns = 10
)

// Mirror is an optional external storage collaborator the store writes
// through to. Mirror failures are logged and never fail a turn.
type Mirror interface {
	Save(ctx context.Context, s Session) error
	Delete(ctx context.Context, sessionID string) error
}

// StoreOption customizes Store.
type StoreOption func(*Store)

func WithIdleTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithMirror(m Mirror) StoreOption {
	return func(s *Store) {
		s.mirror = m
	}
}

func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store holds every live session. All mutations of one session are linearized
// through its entry mutex; operations on different sessions never block one
// another beyond the brief map lookup.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry

	ttl    time.Duration
	mirror Mirror
	now    func() time.Time
}

type sessionEntry struct {
	// mu linearizes individual store operations on this session.
	mu sync.Mutex
	// turnMu is the caller-facing serialization primitive: it spans a whole
	// turn, which may perform several store operations.
	turnMu sync.Mutex
	s      *Session
}

func NewStore(opts ...StoreOption) *Store {
	st := &Store{
		sessions: make(map[string]*sessionEntry),
		ttl:      defaultIdleTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(st)
		}
	}
	return st
}

// GetOrCreate returns a snapshot of the session, creating it with empty
// history on first use of the id.
func (st *Store) GetOrCreate(sessionID string) (Session, error) {
	e, err := st.entry(sessionID, true)
	if err != nil {
		return Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.snapshot(), nil
}

// Context builds the read-only session view, creating the session if needed.
func (st *Store) Context(sessionID string) (contractx.SessionContext, error) {
	e, err := st.entry(sessionID, true)
	if err != nil {
		return contractx.SessionContext{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.s.context(defaultRecentTurns), nil
}

// AppendTurn records one completed or failed turn atomically: a concurrent
// reader sees either the session before the turn or after it, never a partial
// update.
func (st *Store) AppendTurn(
	ctx context.Context,
	sessionID string,
	req contractx.Request,
	decision contractx.RoutingDecision,
	result contractx.OrchestrationResult,
) (Turn, error) {
	e, err := st.entry(sessionID, true)
	if err != nil {
		return Turn{}, err
	}

	turn := Turn{
		ID:       uuid.NewString(),
		Request:  req,
		Decision: decision,
		Result:   result,
		At:       st.now().UTC(),
	}

	e.mu.Lock()
	e.s.appendTurn(turn, st.now())
	snap := e.s.snapshot()
	e.mu.Unlock()

	st.writeThrough(ctx, snap)
	return turn, nil
}

// MergeDocuments unions refs into the session's document set. Idempotent.
func (st *Store) MergeDocuments(ctx context.Context, sessionID string, refs []string) (int, error) {
	e, err := st.entry(sessionID, true)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	added := e.s.mergeDocuments(refs)
	if added > 0 {
		e.s.touch(st.now())
	}
	snap := e.s.snapshot()
	e.mu.Unlock()

	if added > 0 {
		st.writeThrough(ctx, snap)
	}
	return added, nil
}

// SetCursor records the in-flight pipeline position.
func (st *Store) SetCursor(sessionID string, cur StageCursor) error {
	e, err := st.entry(sessionID, true)
	if err != nil {
		return err
	}
	e.mu.Lock()
	c := cur
	e.s.Cursor = &c
	e.mu.Unlock()
	return nil
}

func (st *Store) ClearCursor(sessionID string) {
	e, err := st.entry(sessionID, false)
	if err != nil || e == nil {
		return
	}
	e.mu.Lock()
	e.s.Cursor = nil
	e.mu.Unlock()
}

// Acquire returns the per-session serialization primitive: it blocks until
// the session's turn lock is held and returns the release func. Callers that
// may issue concurrent requests for one session wrap each whole turn in
// Acquire/release; the lock is independent of the store's internal operation
// linearization, so store calls inside the critical section do not deadlock.
func (st *Store) Acquire(sessionID string) (func(), error) {
	e, err := st.entry(sessionID, true)
	if err != nil {
		return nil, err
	}
	e.turnMu.Lock()
	var once sync.Once
	return func() { once.Do(e.turnMu.Unlock) }, nil
}

// EvictIdle removes sessions whose last activity is older than ttl and
// returns the count evicted. A non-positive ttl uses the store default.
func (st *Store) EvictIdle(now time.Time, ttl time.Duration) int {
	if ttl <= 0 {
		ttl = st.ttl
	}
	cutoff := now.Add(-ttl)

	st.mu.Lock()
	defer st.mu.Unlock()

	evicted := 0
	for id, e := range st.sessions {
		e.mu.Lock()
		idle := e.s.LastActiveAt.Before(cutoff)
		e.mu.Unlock()
		if idle {
			delete(st.sessions, id)
			evicted++
		}
	}
	return evicted
}

// Delete removes a session outright.
func (st *Store) Delete(ctx context.Context, sessionID string) bool {
	st.mu.Lock()
	_, ok := st.sessions[sessionID]
	delete(st.sessions, sessionID)
	st.mu.Unlock()

	if ok && st.mirror != nil {
		if err := st.mirror.Delete(ctx, sessionID); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("session mirror delete failed")
		}
	}
	return ok
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

func (st *Store) entry(sessionID string, create bool) (*sessionEntry, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, ErrInvalidSession
	}

	st.mu.RLock()
	e := st.sessions[sessionID]
	st.mu.RUnlock()
	if e != nil || !create {
		return e, nil
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if e = st.sessions[sessionID]; e == nil {
		e = &sessionEntry{s: newSession(sessionID, st.now())}
		st.sessions[sessionID] = e
	}
	return e, nil
}

func (st *Store) writeThrough(ctx context.Context, snap Session) {
	if st.mirror == nil {
		return
	}
	if err := st.mirror.Save(ctx, snap); err != nil {
		log.Warn().Err(err).Str("session_id", snap.ID).Msg("session mirror save failed")
	}
}
