package pool

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"propcheck/internal/domain"
)

// DefaultCapacity matches the number of terminal sessions most bridge
// deployments can serve. The real ceiling is whatever the terminal vendor
// supports concurrently; size capacity from that, not from this default.
const DefaultCapacity = 3

// ErrExhausted is returned by callers that need an error value for an empty
// pool; Acquire itself reports exhaustion by returning nil.
var ErrExhausted = errors.New("no terminal session available")

// Session is one exclusive slot against the terminal provider. A worker that
// acquired it owns it until release.
type Session struct {
	id        int
	busy      bool
	connected bool
	provider  domain.SessionProvider
}

// ID identifies the slot, for logging.
func (s *Session) ID() int { return s.id }

// Provider exposes the underlying terminal connection.
func (s *Session) Provider() domain.SessionProvider { return s.provider }

// Factory builds the provider backing one pool slot.
type Factory func(id int) domain.SessionProvider

// Pool bounds concurrent terminal access to a fixed number of sessions.
// The lock covers only slot bookkeeping; logins and teardowns happen outside
// it so one slow terminal never blocks acquire/release for everyone else.
type Pool struct {
	mu       sync.Mutex
	sessions []*Session
	log      zerolog.Logger
}

func New(capacity int, factory Factory, log zerolog.Logger) *Pool {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	p := &Pool{log: log}
	for i := 0; i < capacity; i++ {
		p.sessions = append(p.sessions, &Session{id: i, provider: factory(i)})
	}
	return p
}

// Capacity returns the fixed slot count.
func (p *Pool) Capacity() int { return len(p.sessions) }

// Acquire returns a free session or nil immediately when all slots are busy.
// There is no queueing: callers must treat nil as resource exhaustion.
func (p *Pool) Acquire() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.sessions {
		if !s.busy {
			s.busy = true
			return s
		}
	}
	return nil
}

// Connect authenticates the session against the terminal. The login runs
// outside the pool lock.
func (p *Pool) Connect(ctx context.Context, s *Session, login, password, server string) error {
	if err := s.provider.Login(ctx, login, password, server); err != nil {
		p.log.Error().Err(err).Int("session", s.id).Msg("terminal login failed")
		return err
	}
	p.mu.Lock()
	s.connected = true
	p.mu.Unlock()
	return nil
}

// Release frees the slot unconditionally and tears down the terminal
// connection if one was established. The slot becomes acquirable only after
// the teardown finishes.
func (p *Pool) Release(ctx context.Context, s *Session) {
	if s == nil {
		return
	}
	p.mu.Lock()
	wasConnected := s.connected
	s.connected = false
	p.mu.Unlock()

	if wasConnected {
		if err := s.provider.Close(ctx); err != nil {
			p.log.Warn().Err(err).Int("session", s.id).Msg("terminal teardown failed")
		}
	}

	p.mu.Lock()
	s.busy = false
	p.mu.Unlock()
}
