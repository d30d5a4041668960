package transport

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/mailru/easyjson"
)

// NewChildSession attaches a dedicated CDP session to targetID, flat-enables
// the domains capture and resolver need on it, and registers the resulting
// Session with the Pool as an OOPIF child (spec §4.2: "each OOPIF gets its
// own CDP session, discovered via Target.attachToTarget"), grounded on the
// teacher's Context.newSession attach-then-enable sequence.
func NewChildSession(ctx context.Context, mainSession *Session, pool *Pool, targetID target.ID, logf, errf func(string, ...interface{})) (*Session, error) {
	var attachResult target.AttachToTargetReturns
	if err := mainSession.Execute(ctx, target.CommandAttachToTarget,
		&target.AttachToTargetParams{TargetID: targetID, Flatten: true},
		&attachResult); err != nil {
		return nil, fmt.Errorf("transport: attach to OOPIF target %s: %w", targetID, err)
	}

	child := NewSession(mainSession.conn, attachResult.SessionID, targetID, logf, errf)

	// Register with the pool before the first command on the child session:
	// its replies carry the new SessionID and the pool's read loop can only
	// route them once the child is in its table.
	pool.PutChild(child)

	if err := enableDomains(ctx, child); err != nil {
		pool.RemoveChild(child.SessionID)
		return nil, err
	}

	return child, nil
}

func enableDomains(ctx context.Context, s *Session) error {
	type cmd struct {
		method string
		params easyjson.Marshaler
	}
	cmds := []cmd{
		{dom.CommandEnable, dom.Enable()},
		{page.CommandEnable, page.Enable()},
		{runtime.CommandEnable, runtime.Enable()},
	}
	for _, c := range cmds {
		if err := s.Execute(ctx, c.method, c.params, nil); err != nil {
			return fmt.Errorf("transport: enable %s on child session: %w", c.method, err)
		}
	}
	return nil
}
