package transport

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/target"
)

// Kind identifies which concern a pooled Session serves a page (spec §4.1:
// "a session pool indexed by purpose, not by frame"). Kinds need not map to
// distinct sessions: one Session may be registered under several kinds.
type Kind string

const (
	// KindDOM issues DOM/Accessibility domain traffic for capture and resolver.
	KindDOM Kind = "dom"
	// KindScreenshot issues Page.captureScreenshot traffic for layout's overlay.
	KindScreenshot Kind = "screenshot"
	// KindLifecycle issues Page/Target domain traffic for framegraph's
	// frame and execution-context event subscriptions.
	KindLifecycle Kind = "lifecycle"
)

// PoolOption configures a Pool at construction time.
type PoolOption func(*Pool)

// WithPoolLogf installs the pool's informational logger.
func WithPoolLogf(f func(string, ...interface{})) PoolOption {
	return func(p *Pool) { p.logf = f }
}

// WithPoolErrf installs the pool's error logger.
func WithPoolErrf(f func(string, ...interface{})) PoolOption {
	return func(p *Pool) { p.errf = f }
}

// Pool owns one Conn per page and a Kind-indexed set of Sessions over it,
// mirroring the teacher's port-indexed Pool/Res pattern but indexing by
// session purpose rather than by allocated Chrome process.
type Pool struct {
	conn *Conn

	mu       sync.RWMutex
	sessions map[Kind]*Session
	children map[target.SessionID]*Session

	logf, errf func(string, ...interface{})
}

// NewPool wraps conn and prepares an empty Kind-indexed session table.
func NewPool(conn *Conn, opts ...PoolOption) *Pool {
	p := &Pool{
		conn:     conn,
		sessions: make(map[Kind]*Session),
		children: make(map[target.SessionID]*Session),
		logf:     log.Printf,
		errf:     func(s string, v ...interface{}) { log.Printf("ERROR: "+s, v...) },
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Put registers a Session under the given Kind, replacing any prior holder.
func (p *Pool) Put(kind Kind, s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[kind] = s
}

// Get returns the Session registered for kind, or false if none has been
// attached yet (the caller should attach one via target.AttachToTarget
// first).
func (p *Pool) Get(kind Kind) (*Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.sessions[kind]
	return s, ok
}

// PutChild registers a child session, created by NewChildSession for an
// OOPIF, so Dispatch can route wire messages to it.
func (p *Pool) PutChild(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.children[s.SessionID] = s
}

// RemoveChild discards a previously registered child session, used when an
// attached OOPIF candidate target turns out not to correlate to any frame
// the page actually uses.
func (p *Pool) RemoveChild(id target.SessionID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.children, id)
}

// Children returns every registered OOPIF child session, used on page close
// to detach them in parallel.
func (p *Pool) Children() []*Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Session, 0, len(p.children))
	for _, s := range p.children {
		out = append(out, s)
	}
	return out
}

// ChildByID looks up a previously registered OOPIF child session.
func (p *Pool) ChildByID(id target.SessionID) (*Session, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.children[id]
	return s, ok
}

// Dispatch is the Pool's single read loop: it reads every wire message for
// the page's Conn and routes each to the Session whose SessionID matches,
// falling back to the empty-SessionID main session. It must run in its own
// goroutine for the lifetime of the page.
func (p *Pool) Dispatch(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var msg cdproto.Message
		if err := p.conn.Read(&msg); err != nil {
			p.closeAll()
			return err
		}
		p.route(&msg)
	}
}

func (p *Pool) route(msg *cdproto.Message) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if msg.SessionID != "" {
		if s, ok := p.children[msg.SessionID]; ok {
			s.Feed(msg)
			return
		}
	}
	// One Session may sit under several kinds; feed it once.
	fed := make(map[*Session]bool, len(p.sessions))
	for _, s := range p.sessions {
		if (msg.SessionID == s.SessionID || msg.SessionID == "") && !fed[s] {
			fed[s] = true
			s.Feed(msg)
		}
	}
}

func (p *Pool) closeAll() {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range p.sessions {
		s.closeAll()
	}
	for _, s := range p.children {
		s.closeAll()
	}
}

// Shutdown closes the underlying connection and unblocks every pending
// Execute call across every Session the Pool owns.
func (p *Pool) Shutdown() error {
	p.closeAll()
	return p.conn.Close()
}

func (p *Pool) String() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return fmt.Sprintf("transport.Pool{sessions:%d children:%d}", len(p.sessions), len(p.children))
}
