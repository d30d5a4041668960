// Package layout implements the Bounding-Box & Overlay component (spec
// §4.4, visual mode only): per-frame batch collection of element rectangles
// via an injected script, iframe-to-viewport coordinate translation, and a
// composite overlay image. Grounded on the teacher's query.go Screenshot
// action (box-model/scroll-offset JS evaluation, imaging.Crop) and
// input.go's dom.GetBoxModel usage.
package layout

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"

	"github.com/frameagent/frameagent/snapshot"
)

// collectBoxesJS is injected once per (session, execution-context) pair
// and takes a {xpath: backendNodeId} map, returning each resolvable
// element's getBoundingClientRect() keyed by backendNodeId (spec §4.4 step 1).
const collectBoxesJS = `(function(map) {
  var out = {};
  for (var xpath in map) {
    var el;
    try {
      el = document.evaluate(xpath, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
    } catch (e) { continue; }
    if (!el) continue;
    var r = el.getBoundingClientRect();
    if (r.width === 0 && r.height === 0) continue;
    out[map[xpath]] = {x: r.x, y: r.y, width: r.width, height: r.height, top: r.top, left: r.left, right: r.right, bottom: r.bottom};
  }
  return out;
})(%s)`

// Warning records an element layout could not produce a rectangle for
// (decided Open Question, see DESIGN.md: surfaced rather than silently
// dropped).
type Warning struct {
	FrameIndex    int
	BackendNodeID cdp.BackendNodeID
	Reason        string
}

type rawRect struct {
	X, Y, Width, Height, Top, Left, Right, Bottom float64
}

// CollectBoxes runs spec §4.4 step 1-2 for one frame: batch every kept
// element's XPath into a single Runtime.evaluate call against the frame's
// execution context (executionContextID zero evaluates in the session's
// default world) and return frame-relative rectangles keyed by
// backendNodeId, plus a Warning for every element layout could not resolve.
func CollectBoxes(ctx context.Context, s cdp.Executor, frameIndex int, executionContextID runtime.ExecutionContextID, xpathToBackend map[string]cdp.BackendNodeID) (map[cdp.BackendNodeID]snapshot.Rect, []Warning, error) {
	if len(xpathToBackend) == 0 {
		return map[cdp.BackendNodeID]snapshot.Rect{}, nil, nil
	}

	argMap := make(map[string]string, len(xpathToBackend))
	for xpath, backendID := range xpathToBackend {
		argMap[xpath] = strconv.FormatInt(int64(backendID), 10)
	}
	argJSON, err := json.Marshal(argMap)
	if err != nil {
		return nil, nil, fmt.Errorf("layout: marshal xpath map: %w", err)
	}

	script := fmt.Sprintf(collectBoxesJS, string(argJSON))
	params := runtime.Evaluate(script).WithReturnByValue(true)
	if executionContextID != 0 {
		params = params.WithContextID(executionContextID)
	}
	res, exc, err := params.Do(cdp.WithExecutor(ctx, s))
	if err != nil {
		return nil, nil, fmt.Errorf("layout: collectBoxes eval: %w", err)
	}
	if exc != nil {
		return nil, nil, fmt.Errorf("layout: collectBoxes eval exception: %s", exc.Text)
	}

	var raw map[string]rawRect
	if res != nil && len(res.Value) > 0 {
		if err := json.Unmarshal(res.Value, &raw); err != nil {
			return nil, nil, fmt.Errorf("layout: unmarshal collectBoxes result: %w", err)
		}
	}

	out := make(map[cdp.BackendNodeID]snapshot.Rect, len(raw))
	var warnings []Warning
	for _, backendID := range xpathToBackend {
		key := strconv.FormatInt(int64(backendID), 10)
		r, ok := raw[key]
		if !ok {
			warnings = append(warnings, Warning{FrameIndex: frameIndex, BackendNodeID: backendID, Reason: "no layout (display:none, detached, or zero-size)"})
			continue
		}
		out[backendID] = snapshot.Rect{
			X: r.X, Y: r.Y, Width: r.Width, Height: r.Height,
			Top: r.Top, Left: r.Left, Right: r.Right, Bottom: r.Bottom,
		}
	}
	return out, warnings, nil
}

// TranslateToViewport converts a frame-relative rectangle into main-viewport
// coordinates by adding the frame's own AbsoluteBoundingBox origin, which is
// itself already viewport-absolute: each frame's origin is computed from its
// parent's in depth order, so a single offset covers the whole ancestor
// chain (spec §4.4 step 3).
func TranslateToViewport(frameMap map[int]*snapshot.IframeInfo, frameIndex int, r snapshot.Rect) snapshot.Rect {
	info, ok := frameMap[frameIndex]
	if !ok || info.AbsoluteBoundingBox == nil {
		return r
	}
	ox, oy := float64(info.AbsoluteBoundingBox.Min.X), float64(info.AbsoluteBoundingBox.Min.Y)
	r.X += ox
	r.Y += oy
	r.Left += ox
	r.Right += ox
	r.Top += oy
	r.Bottom += oy
	return r
}
