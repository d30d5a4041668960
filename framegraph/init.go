package framegraph

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
)

// EnsureInitialized runs spec §4.2's idempotent first-call sequence: it
// enumerates Page.getFrameTree, registers every frame in breadth-first
// order as its preliminary frameIndex, resolves each non-root frame's
// owning backendNodeId via DOM.getFrameOwner, attaches the five event
// subscriptions (handled by the caller wiring HandlePageEvent/
// HandleRuntimeEvent onto the session), and enables Page/Runtime on the
// root session. Safe to call more than once; subsequent calls are no-ops.
func (g *Graph) EnsureInitialized(ctx context.Context, s cdp.Executor) error {
	g.mu.Lock()
	if g.initialized {
		g.mu.Unlock()
		return nil
	}
	g.initialized = true
	g.mu.Unlock()

	ectx := cdp.WithExecutor(ctx, s)
	if err := page.Enable().Do(ectx); err != nil {
		return err
	}
	if err := runtime.Enable().Do(ectx); err != nil {
		return err
	}

	tree, err := page.GetFrameTree().Do(ectx)
	if err != nil {
		return err
	}

	var frames []*cdp.Frame
	flattenBreadthFirst(tree, &frames)

	for _, f := range frames {
		g.mu.Lock()
		fr := g.ensureInitialized(f.ID)
		fr.ParentFrameID = f.ParentID
		g.mu.Unlock()
	}

	// DOM.getFrameOwner fails for the main frame and for frames that
	// detached mid-enumeration; both are swallowed per spec §4.2's
	// failure model.
	var wg sync.WaitGroup
	for _, f := range frames {
		if f.ParentID == "" {
			continue
		}
		f := f
		wg.Add(1)
		go func() {
			defer wg.Done()
			backendNodeID, _, err := dom.GetFrameOwner(f.ID).Do(ectx)
			if err != nil {
				return
			}
			_ = g.SetOwner(f.ID, backendNodeID)
		}()
	}
	wg.Wait()

	return nil
}

func flattenBreadthFirst(root *page.FrameTree, out *[]*cdp.Frame) {
	if root == nil {
		return
	}
	queue := []*page.FrameTree{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.Frame != nil {
			*out = append(*out, cur.Frame)
		}
		queue = append(queue, cur.ChildFrames...)
	}
}
