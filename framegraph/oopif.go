package framegraph

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/hashicorp/go-multierror"

	"github.com/frameagent/frameagent/transport"
)

// OOPIFCandidate is one cross-process iframe discovered during capture's
// Pass 1 DOM walk, waiting to be turned into a dedicated CDP session.
type OOPIFCandidate struct {
	FrameID       cdp.FrameID
	BackendNodeID cdp.BackendNodeID
	URL           string
}

// DiscoverOOPIFs is capture's Pass 2. It takes the cross-origin <iframe>
// candidates from Pass 1 and skips those whose URL is denylisted. It then
// lists "iframe"-type targets with Target.getTargets, attaches a child
// session to each, and keeps it only when that session's Page.getFrameTree
// root frame id matches a candidate. Matched sessions are registered with
// pool and the graph, given frameIndex values from startIndex up in
// candidate order, and start forwarding their lifecycle/runtime events into
// the graph. The browser driver's frame list is not consulted.
func (g *Graph) DiscoverOOPIFs(ctx context.Context, mainSession *transport.Session, pool *transport.Pool, candidates []OOPIFCandidate, startIndex int, logf, errf func(string, ...interface{})) ([]*transport.Session, error) {
	wanted := make(map[cdp.FrameID]OOPIFCandidate, len(candidates))
	for _, c := range candidates {
		if g.ShouldSkip(c.URL) {
			if logf != nil {
				logf("framegraph: skipping denylisted OOPIF %s (%s)", c.FrameID, c.URL)
			}
			continue
		}
		wanted[c.FrameID] = c
	}
	if len(wanted) == 0 {
		return nil, nil
	}

	matched, result := attachAndCorrelate(ctx, mainSession, pool, wanted, logf, errf)

	// Assign indices in the caller's candidate order (Pass 1's DFS order),
	// not map iteration order, so repeated captures of the same page agree.
	var sessions []*transport.Session
	nextIndex := startIndex
	for _, c := range candidates {
		child, ok := matched[c.FrameID]
		if !ok {
			continue
		}
		frameID := c.FrameID

		child.OnEvent(g.HandlePageEvent)
		child.OnEvent(func(ev interface{}) { g.HandleRuntimeEvent(child.SessionID, ev) })

		g.MarkOOPIF(frameID, child.SessionID)
		if err := g.SetOwner(frameID, c.BackendNodeID); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if err := g.AssignFrameIndex(frameID, nextIndex); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		nextIndex++
		sessions = append(sessions, child)
	}

	for frameID := range wanted {
		if _, ok := matched[frameID]; !ok {
			result = multierror.Append(result, fmt.Errorf("framegraph: no CDP target correlates to frame %s", frameID))
		}
	}

	return sessions, result.ErrorOrNil()
}

// attachAndCorrelate attaches a child session to every "iframe"-type CDP
// target and reads its own root frame id via Page.getFrameTree, the
// reliable way to learn which target backs which frame (TargetInfo itself
// carries no frame id, spec §9: "not attempt to correlate by URL"). Targets
// that don't correlate to any wanted frame are detached again.
func attachAndCorrelate(ctx context.Context, mainSession *transport.Session, pool *transport.Pool, wanted map[cdp.FrameID]OOPIFCandidate, logf, errf func(string, ...interface{})) (map[cdp.FrameID]*transport.Session, *multierror.Error) {
	var result *multierror.Error

	var targets target.GetTargetsReturns
	if err := mainSession.Execute(ctx, target.CommandGetTargets, &target.GetTargetsParams{}, &targets); err != nil {
		return nil, multierror.Append(result, fmt.Errorf("framegraph: target.getTargets: %w", err))
	}

	// Session creation is the costly step, so candidates attach in
	// parallel (spec §5 "Parallelism").
	matched := make(map[cdp.FrameID]*transport.Session, len(wanted))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, info := range targets.TargetInfos {
		if info.Type != "iframe" {
			continue
		}
		info := info
		wg.Add(1)
		go func() {
			defer wg.Done()

			child, err := transport.NewChildSession(ctx, mainSession, pool, info.TargetID, logf, errf)
			if err != nil {
				mu.Lock()
				result = multierror.Append(result, fmt.Errorf("framegraph: attach target %s: %w", info.TargetID, err))
				mu.Unlock()
				return
			}

			tree, err := page.GetFrameTree().Do(cdp.WithExecutor(ctx, child))
			if err != nil || tree == nil || tree.Frame == nil {
				mu.Lock()
				result = multierror.Append(result, fmt.Errorf("framegraph: get frame tree for target %s: %w", info.TargetID, err))
				mu.Unlock()
				pool.RemoveChild(child.SessionID)
				return
			}

			mu.Lock()
			_, isWanted := wanted[tree.Frame.ID]
			_, taken := matched[tree.Frame.ID]
			if isWanted && !taken {
				matched[tree.Frame.ID] = child
				mu.Unlock()
				return
			}
			mu.Unlock()

			pool.RemoveChild(child.SessionID)
			_ = mainSession.Execute(ctx, target.CommandDetachFromTarget,
				&target.DetachFromTargetParams{SessionID: child.SessionID}, nil)
		}()
	}
	wg.Wait()

	return matched, result
}
