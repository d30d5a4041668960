package capture

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"
)

// collectScrollablesJS is Pass 5's one-shot probe, evaluated once per frame:
// it walks every element, writes scrollTop by one pixel and reads it back
// (the only reliable way to tell "scrollable but at rest" apart from "not
// scrollable" for overflow:auto containers — decided Open Question, see
// DESIGN.md), restores it, and returns the scrollable elements ordered by
// scrollHeight descending, each with its document-relative XPath in the
// same id-shortcut/sibling-index scheme the DOM walk records, so the result
// can be mapped back to backend node ids without further round-trips.
const collectScrollablesJS = `(function() {
  function xpathFor(el) {
    var parts = [];
    for (var n = el; n && n.nodeType === 1; n = n.parentNode) {
      var tag = n.tagName.toLowerCase();
      if (n.id) {
        parts.unshift(tag + '[@id="' + n.id + '"]');
        return '//' + parts.join('/');
      }
      var idx = 1;
      for (var sib = n.previousElementSibling; sib; sib = sib.previousElementSibling) {
        if (sib.tagName === n.tagName) idx++;
      }
      parts.unshift(tag + '[' + idx + ']');
    }
    return '/' + parts.join('/');
  }
  var out = [];
  var all = document.querySelectorAll('*');
  for (var i = 0; i < all.length; i++) {
    var el = all[i];
    var max = el.scrollHeight - el.clientHeight;
    if (max <= 0) continue;
    var before = el.scrollTop;
    el.scrollTop = before + 1;
    var moved = el.scrollTop !== before;
    el.scrollTop = before;
    if (!moved && before === 0) continue;
    var pct = max > 0 ? Math.round((before / max) * 100) : 0;
    out.push({xpath: xpathFor(el), scrollHeight: el.scrollHeight, up: before > 0 ? 1 : 0, down: (max - before) > 0 ? 1 : 0, pct: pct});
  }
  out.sort(function(a, b) { return b.scrollHeight - a.scrollHeight; });
  return out;
})()`

type scrollableEntry struct {
	XPath        string `json:"xpath"`
	ScrollHeight int    `json:"scrollHeight"`
	Up           int    `json:"up"`
	Down         int    `json:"down"`
	Pct          int    `json:"pct"`
}

// collectScrollables runs Pass 5 for one frame and returns the scrollable
// set keyed by backend node id, each value a human-readable scroll summary
// used both for role decoration and the node's ScrollInfo field. XPaths the
// DOM walk never recorded (elements created since Pass 1) are skipped.
// executionContextID, when non-zero, routes the evaluation to a same-origin
// child frame's own world; zero evaluates in the session's default context.
func collectScrollables(ctx context.Context, s cdp.Executor, executionContextID runtime.ExecutionContextID, dw *domWalkResult) (map[cdp.BackendNodeID]string, error) {
	params := runtime.Evaluate(collectScrollablesJS).WithReturnByValue(true)
	if executionContextID != 0 {
		params = params.WithContextID(executionContextID)
	}
	res, exc, err := params.Do(cdp.WithExecutor(ctx, s))
	if err != nil {
		return nil, fmt.Errorf("capture: scrollable probe eval: %w", err)
	}
	if exc != nil {
		return nil, fmt.Errorf("capture: scrollable probe exception: %s", exc.Text)
	}
	if res == nil || len(res.Value) == 0 {
		return nil, nil
	}

	var entries []scrollableEntry
	if err := json.Unmarshal(res.Value, &entries); err != nil {
		return nil, fmt.Errorf("capture: scrollable probe result: %w", err)
	}

	out := make(map[cdp.BackendNodeID]string, len(entries))
	for _, e := range entries {
		backendID, ok := dw.backendByXPath[e.XPath]
		if !ok {
			continue
		}
		out[backendID] = fmt.Sprintf("%d↑ %d↓ %d%%", e.Up, e.Down, e.Pct)
	}
	return out, nil
}
