package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/mailru/easyjson"
)

// ErrSessionClosed is returned by Execute once a Session has been
// torn down, either explicitly or because its owning Conn closed.
var ErrSessionClosed = errors.New("transport: session closed")

// EventHandler receives every decoded event delivered to a Session, in the
// order the underlying connection produced them. ev is the concrete type
// cdproto.UnmarshalMessage produces for the event's method (e.g.
// *page.EventFrameAttached); handlers type-switch on it the way the
// teacher's Target.pageEvent/domEvent/runtimeEvent do.
type EventHandler func(ev interface{})

type cancelableListener struct {
	ctx context.Context
	fn  func(*cdproto.Message)
}

// wireConn is the slice of *Conn that Session depends on. Tests substitute a
// fake to exercise Execute's id-correlation and Feed's fan-out without a real
// websocket.
type wireConn interface {
	Write(msg *cdproto.Message) error
}

// Session wraps a single CDP session (the main frame tree's session, or a
// child session for an out-of-process frame) and gives it
// sequentially-consistent command dispatch (spec §4.1): one goroutine reads
// off the wire, command results are matched back to their caller by message
// id, and events fan out to registered handlers before the next message is
// processed.
type Session struct {
	conn      wireConn
	SessionID target.SessionID
	TargetID  target.ID

	nextID int64

	mu        sync.Mutex
	listeners []cancelableListener
	handlers  []EventHandler
	closed    bool

	logf, errf func(string, ...interface{})
}

// NewSession wraps conn for the given CDP session/target pair. It starts no
// goroutine: the caller is responsible for routing wire messages addressed to
// this SessionID into Feed; a Pool does this for every Session it owns.
func NewSession(conn wireConn, sessionID target.SessionID, targetID target.ID, logf, errf func(string, ...interface{})) *Session {
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	if errf == nil {
		errf = func(string, ...interface{}) {}
	}
	s := &Session{
		conn:      conn,
		SessionID: sessionID,
		TargetID:  targetID,
		logf:      logf,
		errf:      errf,
	}
	return s
}

// OnEvent registers a handler invoked for every event this session receives.
func (s *Session) OnEvent(h EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

// Feed delivers a wire message addressed to this session. It is called from
// the owning Pool's single read loop, never concurrently.
func (s *Session) Feed(msg *cdproto.Message) {
	if msg.ID != 0 {
		s.mu.Lock()
		listeners := s.listeners
		s.mu.Unlock()
		for _, l := range listeners {
			if l.ctx.Err() == nil {
				l.fn(msg)
			}
		}
		return
	}
	ev, err := cdproto.UnmarshalMessage(msg)
	if err != nil {
		if _, ok := err.(cdp.ErrUnknownCommandOrEvent); ok {
			// Older/newer Chrome sending an event this cdproto build
			// doesn't know; the teacher's Target.run ignores these too.
			return
		}
		s.errf("transport: could not unmarshal event %s: %v", msg.Method, err)
		return
	}

	s.mu.Lock()
	handlers := s.handlers
	s.mu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

// closeAll unblocks every pending Execute call; used when the session or its
// underlying connection goes away.
func (s *Session) closeAll() {
	s.mu.Lock()
	s.closed = true
	listeners := s.listeners
	s.listeners = nil
	s.mu.Unlock()
	s.logf("transport: session %s closed, unblocking %d pending call(s)", s.SessionID, len(listeners))
	for _, l := range listeners {
		l.fn(nil)
	}
}

// Execute sends a CDP command on this session and blocks for its response,
// following the id-correlated listener pattern of the teacher's Target.Execute.
// Its signature matches cdp.Executor exactly, so a *Session can be passed
// directly to cdp.WithExecutor and every generated command's Do(ctx,
// executor) method works against it unchanged.
func (s *Session) Execute(ctx context.Context, method string, params easyjson.Marshaler, res easyjson.Unmarshaler) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.mu.Unlock()

	id := atomic.AddInt64(&s.nextID, 1)
	lctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch := make(chan *cdproto.Message, 1)
	fn := func(msg *cdproto.Message) {
		if msg != nil && msg.ID != id {
			return
		}
		select {
		case ch <- msg:
		default:
		}
		cancel()
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, cancelableListener{lctx, fn})
	s.mu.Unlock()

	var buf []byte
	if params != nil {
		var err error
		buf, err = easyjson.Marshal(params)
		if err != nil {
			return err
		}
	}
	cmd := &cdproto.Message{
		ID:        id,
		SessionID: s.SessionID,
		Method:    cdproto.MethodType(method),
		Params:    buf,
	}
	if err := s.conn.Write(cmd); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case msg := <-ch:
		switch {
		case msg == nil:
			return ErrSessionClosed
		case msg.Error != nil:
			return msg.Error
		case res != nil:
			return easyjson.Unmarshal(msg.Result, res)
		}
		return nil
	}
}
