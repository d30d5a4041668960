package capture

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/accessibility"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/frameagent/frameagent/framegraph"
	"github.com/frameagent/frameagent/snapshot"
	"github.com/frameagent/frameagent/transport"
)

// maxCaptureAttempts bounds Run's whole-pipeline retry, grounded on
// poll.go's context-deadline retry idiom translated from a single poll loop
// to a whole-pipeline retry.
const maxCaptureAttempts = 3

// Run executes all seven passes against the page described by h and
// returns a fully populated, validated Snapshot. It retries the entire
// pipeline, up to maxCaptureAttempts times in all, after any error from a
// pass or from Validate(); errors are not classified, and attempts follow
// one another without a settle wait. maxElements, if positive,
// bounds the elements Pass 7 emits (SPEC_FULL.md supplemented feature); 0
// means no cap.
func Run(ctx context.Context, h *Handles, log *logrus.Entry, maxElements int) (*snapshot.Snapshot, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	var lastErr error
	for attempt := 1; attempt <= maxCaptureAttempts; attempt++ {
		snap, err := runOnce(ctx, h, log.WithField("attempt", attempt), maxElements)
		if err == nil {
			return snap, nil
		}
		lastErr = err
		log.WithError(err).Warnf("capture: pass failed, attempt %d/%d", attempt, maxCaptureAttempts)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("capture: all %d attempts failed: %w", maxCaptureAttempts, lastErr)
}

func runOnce(ctx context.Context, h *Handles, log *logrus.Entry, maxElements int) (*snapshot.Snapshot, error) {
	dom, ok := h.domSession()
	if !ok {
		return nil, fmt.Errorf("capture: no dom session attached")
	}

	snap := snapshot.New()

	// Pass 1: one DOM.getDocument(pierce=true) on the root session, walked
	// and partitioned into one domWalkResult per same-origin frame, in
	// DFS order (spec §4.3 Pass 1, §3 EncodedId).
	frames, err := walkFrameTree(ctx, dom)
	if err != nil {
		return nil, err
	}
	byIndex := make(map[int]*frameWalkResult, len(frames))
	for _, f := range frames {
		byIndex[f.frameIndex] = f
		mergeIntoSnapshot(snap, f.frameIndex, f.walk)
	}
	nextFrameIndex := len(frames)

	// Pass 2: OOPIF discovery for every cross-origin <iframe> Pass 1 found,
	// across every same-origin frame, not just the main one.
	var candidates []framegraph.OOPIFCandidate
	for _, f := range frames {
		for _, ifr := range f.walk.iframes {
			if ifr.frameID == "" {
				continue
			}
			candidates = append(candidates, framegraph.OOPIFCandidate{
				FrameID:       ifr.frameID,
				BackendNodeID: ifr.backendNodeID,
				URL:           ifr.src,
			})
		}
	}
	if len(candidates) > 0 {
		if lifecycle, ok := h.lifecycleSession(); ok {
			if _, err := h.Graph.DiscoverOOPIFs(ctx, lifecycle, h.Pool, candidates, nextFrameIndex, h.Logf, h.Errf); err != nil {
				log.WithError(err).Warn("capture: some OOPIFs could not be attached")
				snap.AddWarning(fmt.Sprintf("oopif discovery incomplete: %v", err))
			}
		}
	}

	// Pass 3: reconcile Pass 1's same-origin frames against the frame
	// graph (by owner backendNodeId, the only reliable bridge per spec
	// §9), imposing DFS order onto the graph via AssignFrameIndex, then
	// layer in every OOPIF the graph knows about.
	syncFrameGraph(snap, h.Graph, byIndex, log)

	// Passes 4-6 run per frame, in parallel across frames (spec §5
	// "Parallelism"): same-origin frames share the root session (CDP
	// permits concurrent requests on it), OOPIFs use their own. Each
	// job stages its results; snap stays single-writer.
	type frameJob struct {
		frameIndex int
		session    *transport.Session
		walk       *domWalkResult // nil for OOPIFs, walked inside the job
		partial    cdp.BackendNodeID
		execCtx    runtime.ExecutionContextID
		oopif      bool
	}
	type frameDone struct {
		frameIndex int
		walk       *domWalkResult
		capture    *frameCapture
		err        error
	}

	var jobs []frameJob
	for frameIndex := range byIndex {
		info := snap.FrameMap[frameIndex]
		if info == nil {
			continue // dropped in Pass 3: no matching frame graph record
		}
		f := byIndex[frameIndex]
		job := frameJob{frameIndex: frameIndex, session: dom, walk: f.walk, execCtx: info.ExecutionContextID}
		if frameIndex != 0 {
			job.partial = f.walk.rootBackendID
		}
		jobs = append(jobs, job)
	}
	for frameIndex, info := range snap.FrameMap {
		if !info.IsOOPIF {
			continue
		}
		child, ok := h.Pool.ChildByID(info.CDPSessionID)
		if !ok {
			snap.AddWarning(fmt.Sprintf("capture: no child session for OOPIF frame %d", frameIndex))
			continue
		}
		jobs = append(jobs, frameJob{frameIndex: frameIndex, session: child, oopif: true})
	}

	done := make([]frameDone, len(jobs))
	var wg sync.WaitGroup
	for i, job := range jobs {
		i, job := i, job
		wg.Add(1)
		go func() {
			defer wg.Done()
			walk := job.walk
			if job.oopif {
				var err error
				walk, err = walkOOPIFFrame(ctx, job.session)
				if err != nil {
					done[i] = frameDone{frameIndex: job.frameIndex, err: err}
					return
				}
				// Any iframe found inside an OOPIF's own document
				// (walk.iframes) is a nested-OOPIF candidate this pass does
				// not discover; a known limitation, see DESIGN.md.
			}
			fc, err := captureFrame(ctx, job.session, job.frameIndex, walk, job.partial, job.execCtx)
			done[i] = frameDone{frameIndex: job.frameIndex, walk: walk, capture: fc, err: err}
		}()
	}
	wg.Wait()

	roots := make(map[int]snapshot.EncodedId)
	var multiErr *multierror.Error
	for _, d := range done {
		if d.err != nil {
			multiErr = multierror.Append(multiErr, fmt.Errorf("capture: frame %d: %w", d.frameIndex, d.err))
			continue
		}
		if _, merged := byIndex[d.frameIndex]; !merged {
			mergeIntoSnapshot(snap, d.frameIndex, d.walk)
		}
		for id, el := range d.capture.elements {
			snap.Elements[id] = el
		}
		roots[d.frameIndex] = d.capture.rootID
	}

	// Pass 7: relevance-capped trim, then merge and format.
	applyElementCap(snap, roots, maxElements, log)
	formatSnapshot(snap, roots)

	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("capture: validation failed: %w", err)
	}

	if multiErr.ErrorOrNil() != nil {
		for _, e := range multiErr.Errors {
			snap.AddWarning(e.Error())
		}
	}

	return snap, nil
}

// frameCapture is one frame's staged Pass 4-6 output, merged into the
// Snapshot by runOnce's single writer once every frame job has finished.
type frameCapture struct {
	rootID   snapshot.EncodedId
	elements map[snapshot.EncodedId]snapshot.AccessibilityNode
}

// captureFrame runs Passes 4-6 for a single frame. partialRootBackendID is
// non-zero only for a same-origin child frame, routing Pass 4 to
// Accessibility.getPartialAXTree rather than a full-tree fetch (spec §4.3
// Pass 4); execCtxID routes the Pass 5 scrollable probe to the frame's own
// world, and a same-origin child frame whose context isn't known yet skips
// the probe rather than probing the parent document by mistake.
func captureFrame(ctx context.Context, s cdp.Executor, frameIndex int, dw *domWalkResult, partialRootBackendID cdp.BackendNodeID, execCtxID runtime.ExecutionContextID) (*frameCapture, error) {
	ax, err := fetchAXTree(ctx, s, dw, partialRootBackendID)
	if err != nil {
		return nil, err
	}

	var scroll map[cdp.BackendNodeID]string
	if partialRootBackendID == 0 || execCtxID != 0 {
		scroll, err = collectScrollables(ctx, s, execCtxID, dw)
		if err != nil {
			scroll = nil // degrade: roles simply lose their scrollable prefix
		}
	}

	fc := &frameCapture{elements: make(map[snapshot.EncodedId]snapshot.AccessibilityNode, len(ax.byBackendID))}
	for backendID, axNode := range ax.byBackendID {
		if axNode.Ignored {
			continue
		}
		n := dw.backendNodeByID[backendID]
		if n == nil {
			// A partial fetch with fetchRelatives=true includes ancestors
			// from the parent document; only this frame's own nodes are
			// addressable under its frameIndex.
			continue
		}
		id := snapshot.Encode(frameIndex, backendID)
		role, name := roleAndName(axNode)
		scrollInfo := scroll[backendID]
		children := ax.childrenOf(backendID, dw, frameIndex)

		cleanedRole, cleanedName, keep := cleanNode(role, name, scrollInfo, len(children) > 0)
		if !keep {
			if backendID != dw.rootBackendID {
				continue
			}
			// The frame root survives unconditionally: every kept node must
			// stay reachable from it.
			cleanedRole, cleanedName = "generic", ""
		}

		var tag string
		if n.NodeType == cdp.NodeTypeElement {
			tag = strings.ToLower(n.NodeName)
		}
		// A combobox backed by a native <select> element is displayed by
		// its tag rather than its ARIA role: the select's own popup
		// semantics make the generic combobox role redundant.
		if cleanedRole == "combobox" && tag == "select" {
			cleanedRole = "select"
		}

		el := snapshot.AccessibilityNode{
			Role:             cleanedRole,
			Name:             cleanedName,
			Tag:              tag,
			ScrollInfo:       scrollInfo,
			BackendDOMNodeID: backendID,
			Children:         children,
		}
		if axNode.Description != nil {
			el.Description = axValueString(axNode.Description)
		}
		if axNode.Value != nil {
			el.Value = axValueString(axNode.Value)
		}
		fc.elements[id] = el

		if backendID == dw.rootBackendID {
			fc.rootID = id
		}
	}

	if fc.rootID == "" {
		return nil, fmt.Errorf("capture: frame %d has no root element after cleaning", frameIndex)
	}
	return fc, nil
}

// childrenOf resolves an AX node's children to EncodedIds: fetched trees
// follow ChildIds through the AX-id index; synthesized trees fall back to
// the DOM walk's element children.
func (ax *axResult) childrenOf(backendID cdp.BackendNodeID, dw *domWalkResult, frameIndex int) []snapshot.EncodedId {
	if ax.synthesized {
		n := dw.backendNodeByID[backendID]
		if n == nil {
			return nil
		}
		var out []snapshot.EncodedId
		for _, c := range n.Children {
			if _, ok := ax.byBackendID[c.BackendNodeID]; ok {
				out = append(out, snapshot.Encode(frameIndex, c.BackendNodeID))
			}
		}
		return out
	}

	node := ax.byBackendID[backendID]
	if node == nil {
		return nil
	}
	var out []snapshot.EncodedId
	var visit func(ids []accessibility.NodeID)
	visit = func(ids []accessibility.NodeID) {
		for _, cid := range ids {
			child := ax.byAXID[cid]
			if child == nil {
				continue
			}
			// Ignored and DOM-less AX nodes are tunneled through so their
			// subtrees stay reachable from the kept parent; nodes outside
			// this frame's own document are dropped outright.
			if child.Ignored || child.BackendDOMNodeID == 0 {
				visit(child.ChildIDs)
				continue
			}
			if _, inFrame := dw.backendNodeByID[child.BackendDOMNodeID]; !inFrame {
				continue
			}
			out = append(out, snapshot.Encode(frameIndex, child.BackendDOMNodeID))
		}
	}
	visit(node.ChildIDs)
	return out
}

// syncFrameGraph reconciles Pass 1's same-origin frameWalkResults against
// the live frame graph and fills snap.FrameMap (spec §4.3 Pass 3). For each
// same-origin frame, it looks up the frame graph record owned by that
// frame's <iframe> element (framegraph.FindByOwner, spec §9's "only
// reliable bridge") and overwrites that record's frameIndex with Pass 1's
// DFS-assigned one via AssignFrameIndex, so DFS order is authoritative over
// the graph's own event-driven preliminary index (spec §3). A same-origin
// frame the graph has not yet observed (its frameAttached event hasn't
// arrived) is dropped with a warning rather than guessed at. Every OOPIF
// record the graph holds — already DFS-assigned an index by DiscoverOOPIFs
// — is copied in as-is.
func syncFrameGraph(snap *snapshot.Snapshot, g *framegraph.Graph, byIndex map[int]*frameWalkResult, log *logrus.Entry) {
	for frameIndex, f := range byIndex {
		if frameIndex == 0 {
			snap.FrameMap[0] = &snapshot.IframeInfo{FrameIndex: 0}
			if fr, ok := g.ByIndex(0); ok {
				snap.FrameMap[0].FrameID = fr.FrameID
				snap.FrameMap[0].ExecutionContextID = fr.ExecutionContextID
				snap.FrameMap[0].CDPSessionID = fr.SessionID
			}
			continue
		}

		info := f.info
		fr, ok := g.FindByOwner(info.IframeBackendNodeID)
		if !ok {
			log.Warnf("capture: unmatched-frame: no frame graph record owned by backend node %d (frame %d); dropping", info.IframeBackendNodeID, frameIndex)
			dropFrame(snap, frameIndex)
			delete(byIndex, frameIndex)
			continue
		}
		if err := g.AssignFrameIndex(fr.FrameID, frameIndex); err != nil {
			log.WithError(err).Warnf("capture: could not impose DFS index %d on frame %s", frameIndex, fr.FrameID)
			dropFrame(snap, frameIndex)
			delete(byIndex, frameIndex)
			continue
		}

		snap.FrameMap[frameIndex] = &snapshot.IframeInfo{
			FrameIndex:               frameIndex,
			ParentFrameIndex:         info.ParentFrameIndex,
			IframeBackendNodeID:      info.IframeBackendNodeID,
			ContentDocumentBackendID: info.ContentDocumentBackendID,
			HasContentDocument:       info.HasContentDocument,
			XPath:                    info.XPath,
			Src:                      info.Src,
			Name:                     info.Name,
			SiblingPosition:          info.SiblingPosition,
			FrameID:                  fr.FrameID,
			ExecutionContextID:       fr.ExecutionContextID,
			CDPSessionID:             fr.SessionID,
			IsOOPIF:                  false,
		}
	}

	for _, fr := range g.Snapshot() {
		if !fr.IsOOPIF {
			continue
		}
		var parentIdx *int
		if parent, ok := g.Lookup(fr.ParentFrameID); ok && fr.ParentFrameID != "" {
			p := parent.FrameIndex
			parentIdx = &p
		}
		snap.FrameMap[fr.FrameIndex] = &snapshot.IframeInfo{
			FrameIndex:          fr.FrameIndex,
			ParentFrameIndex:    parentIdx,
			IframeBackendNodeID: fr.OwnerBackendNodeID,
			FrameID:             fr.FrameID,
			ExecutionContextID:  fr.ExecutionContextID,
			CDPSessionID:        fr.SessionID,
			IsOOPIF:             true,
		}
	}
}

// dropFrame removes a same-origin frame's elements from the snapshot when
// Pass 3 cannot reconcile it against the frame graph. EncodedIds are
// "<frameIndex>-<backendNodeId>", so a "<frameIndex>-" prefix match is safe:
// no other frameIndex's ids share it.
func dropFrame(snap *snapshot.Snapshot, frameIndex int) {
	prefix := fmt.Sprintf("%d-", frameIndex)
	for id := range snap.BackendNodeMap {
		if strings.HasPrefix(string(id), prefix) {
			delete(snap.BackendNodeMap, id)
			delete(snap.XPathMap, id)
		}
	}
}
