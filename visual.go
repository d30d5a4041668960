package frameagent

import (
	"context"
	"fmt"
	"image"
	"sort"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"

	"github.com/frameagent/frameagent/layout"
	"github.com/frameagent/frameagent/snapshot"
	"github.com/frameagent/frameagent/transport"
)

// collectVisuals runs spec §4.4 for every frame snap knows about: batch
// bounding-box collection, viewport translation, a viewport screenshot, and
// overlay composition, populating snap.BoundingBoxMap and snap.VisualOverlay.
// Frames are processed parents-first so each child frame's viewport-absolute
// origin can be derived from the already-translated box of its owning
// <iframe> element.
func (e *Engine) collectVisuals(ctx context.Context, ps *pageState, snap *snapshot.Snapshot) error {
	byFrame := make(map[int]map[string]cdp.BackendNodeID)
	for id, xpath := range snap.XPathMap {
		frameIndex, backendID, err := snapshot.Parse(id)
		if err != nil || xpath == "" {
			continue
		}
		if _, ok := snap.Elements[id]; !ok {
			continue // dropped by Pass 6/7; no point collecting its box
		}
		if byFrame[frameIndex] == nil {
			byFrame[frameIndex] = make(map[string]cdp.BackendNodeID)
		}
		byFrame[frameIndex][xpath] = backendID
	}

	snap.BoundingBoxMap = make(map[snapshot.EncodedId]snapshot.Rect, len(snap.Elements))

	for _, frameIndex := range framesByDepth(snap.FrameMap) {
		xpathToBackend := byFrame[frameIndex]
		if len(xpathToBackend) == 0 {
			continue
		}
		info := snap.FrameMap[frameIndex]

		s, err := e.sessionForFrame(ps, frameIndex, snap)
		if err != nil {
			snap.AddWarning(fmt.Sprintf("layout: frame %d: %v", frameIndex, err))
			continue
		}
		// A same-origin child frame is addressed through the shared root
		// session, so its boxes must be evaluated in its own world; if the
		// context never surfaced, skip the frame with a warning (decided
		// Open Question, see DESIGN.md).
		execCtx := info.ExecutionContextID
		if frameIndex != 0 && !info.IsOOPIF && execCtx == 0 {
			snap.AddWarning(fmt.Sprintf("layout: frame %d has no execution context; boxes skipped", frameIndex))
			continue
		}
		if info.IsOOPIF {
			execCtx = 0 // the OOPIF session's default world is the frame itself
		}

		boxes, warnings, err := layout.CollectBoxes(ctx, s, frameIndex, execCtx, xpathToBackend)
		if err != nil {
			snap.AddWarning(fmt.Sprintf("layout: collect boxes for frame %d: %v", frameIndex, err))
			continue
		}
		for _, w := range warnings {
			snap.AddWarning(fmt.Sprintf("layout: frame %d backend node %d: %s", w.FrameIndex, w.BackendNodeID, w.Reason))
		}

		for backendID, rect := range boxes {
			id := snapshot.Encode(frameIndex, backendID)
			snap.BoundingBoxMap[id] = layout.TranslateToViewport(snap.FrameMap, frameIndex, rect)
		}

		// Seed every child frame's viewport-absolute origin from the
		// now-translated box of its owning <iframe> element.
		for _, child := range snap.FrameMap {
			if child.ParentFrameIndex == nil || *child.ParentFrameIndex != frameIndex {
				continue
			}
			owner := snapshot.Encode(frameIndex, child.IframeBackendNodeID)
			if r, ok := snap.BoundingBoxMap[owner]; ok {
				abs := image.Rect(int(r.Left), int(r.Top), int(r.Right), int(r.Bottom))
				child.AbsoluteBoundingBox = &abs
			}
		}
	}

	shot, err := e.screenshot(ctx, ps)
	if err != nil {
		return fmt.Errorf("capture screenshot: %w", err)
	}

	overlay, err := layout.BuildOverlay(shot, snap.BoundingBoxMap)
	if err != nil {
		return fmt.Errorf("build overlay: %w", err)
	}
	snap.VisualOverlay = overlay
	return nil
}

// framesByDepth orders frame indices so every parent precedes its children,
// breaking ties by index for determinism.
func framesByDepth(frameMap map[int]*snapshot.IframeInfo) []int {
	depth := func(i int) int {
		d := 0
		for cur := frameMap[i]; cur != nil && cur.ParentFrameIndex != nil && d < len(frameMap); {
			d++
			cur = frameMap[*cur.ParentFrameIndex]
		}
		return d
	}
	indices := make([]int, 0, len(frameMap))
	for i := range frameMap {
		indices = append(indices, i)
	}
	sort.Slice(indices, func(a, b int) bool {
		da, db := depth(indices[a]), depth(indices[b])
		if da != db {
			return da < db
		}
		return indices[a] < indices[b]
	})
	return indices
}

func (e *Engine) sessionForFrame(ps *pageState, frameIndex int, snap *snapshot.Snapshot) (*transport.Session, error) {
	if frameIndex == 0 {
		s, ok := ps.pool.Get(transport.KindDOM)
		if !ok {
			return nil, fmt.Errorf("no dom session attached")
		}
		return s, nil
	}
	info, ok := snap.FrameMap[frameIndex]
	if !ok {
		return nil, fmt.Errorf("frame %d not in frame map", frameIndex)
	}
	if info.IsOOPIF {
		s, ok := ps.pool.ChildByID(info.CDPSessionID)
		if !ok {
			return nil, fmt.Errorf("no child session for OOPIF frame %d", frameIndex)
		}
		return s, nil
	}
	s, ok := ps.pool.Get(transport.KindDOM)
	if !ok {
		return nil, fmt.Errorf("no dom session attached")
	}
	return s, nil
}

func (e *Engine) screenshot(ctx context.Context, ps *pageState) ([]byte, error) {
	s, ok := ps.pool.Get(transport.KindScreenshot)
	if !ok {
		return nil, fmt.Errorf("no screenshot session attached")
	}
	return page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng).Do(cdp.WithExecutor(ctx, s))
}
