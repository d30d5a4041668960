package framegraph

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
)

// WaitForExecutionContext blocks until frame id has a non-zero
// ExecutionContextID, or ctx is done. If the frame detaches while waiting,
// the wait ends with an error. It is grounded on the teacher's
// handler.go WaitFrame/WaitNode channel-wait idiom, translated from a
// polling loop into a condition registered once and signalled from
// executionContextCreated (spec §9's "coroutine/async control flow" guidance
// prefers a wake-on-event wait over a poll loop).
func (g *Graph) WaitForExecutionContext(ctx context.Context, id cdp.FrameID) error {
	g.mu.Lock()
	fr, ok := g.byFrameID[id]
	if ok && fr.ExecutionContextID != 0 {
		g.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	g.ctxWaiters[id] = append(g.ctxWaiters[id], ch)
	g.mu.Unlock()

	select {
	case <-ch:
		if fr, ok := g.Lookup(id); ok && fr.ExecutionContextID != 0 {
			return nil
		}
		return fmt.Errorf("framegraph: frame %s detached before its execution context was created", id)
	case <-ctx.Done():
		g.forgetWaiter(id, ch)
		return fmt.Errorf("framegraph: waiting for execution context of frame %s: %w", id, ctx.Err())
	}
}

func (g *Graph) forgetWaiter(id cdp.FrameID, ch chan struct{}) {
	g.mu.Lock()
	defer g.mu.Unlock()
	waiters := g.ctxWaiters[id]
	for i, w := range waiters {
		if w == ch {
			g.ctxWaiters[id] = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
}
