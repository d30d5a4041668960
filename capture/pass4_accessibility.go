package capture

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/cdproto/accessibility"
	"github.com/chromedp/cdproto/cdp"
)

// axResult is Pass 4's output for one frame: the accessibility nodes keyed
// by the BackendNodeID CDP attaches to each, plus a flag marking whether the
// tree had to be synthesized from the DOM walk instead (spec §4.3 Pass 4's
// "fall back to DOM-derived role/name when the AX tree is unavailable").
type axResult struct {
	byBackendID map[cdp.BackendNodeID]*accessibility.Node
	byAXID      map[accessibility.NodeID]*accessibility.Node
	synthesized bool
}

// interactiveRoles is the role set whose absence from a fetched AX tree
// triggers the DOM fallback (spec §4.3 Pass 4: "if a frame's returned AX
// nodes contain no interactive roles... a DOM fallback is synthesized").
var interactiveRoles = map[string]bool{
	"button": true, "link": true, "textbox": true, "searchbox": true,
	"combobox": true, "checkbox": true, "radio": true,
}

// fetchAXTree runs Pass 4 for one frame. partialRootBackendID is zero for the
// main frame and for OOPIFs, which each get their own full-tree fetch; for a
// same-origin child frame it is the frame's contentDocument backend node id,
// and Pass 4 instead calls Accessibility.getPartialAXTree(backendNodeId,
// fetchRelatives=true) rooted there, per spec §4.3 Pass 4. A frame whose AX
// tree is unreachable or carries no interactive role at all falls back to a
// DOM-only synthesis, so capture keeps going rather than drop the frame.
func fetchAXTree(ctx context.Context, s cdp.Executor, dw *domWalkResult, partialRootBackendID cdp.BackendNodeID) (*axResult, error) {
	ectx := cdp.WithExecutor(ctx, s)
	var nodes []*accessibility.Node
	var err error
	if partialRootBackendID != 0 {
		nodes, err = accessibility.GetPartialAXTree().
			WithBackendNodeID(partialRootBackendID).
			WithFetchRelatives(true).
			Do(ectx)
	} else {
		nodes, err = accessibility.GetFullAXTree().Do(ectx)
	}
	if err != nil {
		return synthesizeFromDOM(dw), nil
	}

	res := &axResult{
		byBackendID: make(map[cdp.BackendNodeID]*accessibility.Node),
		byAXID:      make(map[accessibility.NodeID]*accessibility.Node, len(nodes)),
	}
	hasInteractive := false
	for _, n := range nodes {
		res.byAXID[n.NodeID] = n
		if n.BackendDOMNodeID == 0 {
			continue
		}
		res.byBackendID[n.BackendDOMNodeID] = n
		if !n.Ignored && n.Role != nil && interactiveRoles[axValueString(n.Role)] {
			hasInteractive = true
		}
	}
	if len(res.byBackendID) == 0 || !hasInteractive {
		return synthesizeFromDOM(dw), nil
	}
	return res, nil
}

// synthesizeFromDOM builds a minimal, degraded accessibility tree directly
// from Pass 1's DOM nodes when the fetched AX tree is unusable, mapping
// input/textarea to textbox, button to button, a to link, and select to
// combobox (spec §4.3 Pass 4's fallback table).
func synthesizeFromDOM(dw *domWalkResult) *axResult {
	res := &axResult{byBackendID: make(map[cdp.BackendNodeID]*accessibility.Node), synthesized: true}
	for backendID, n := range dw.backendNodeByID {
		role := "generic"
		switch n.NodeName {
		case "BUTTON":
			role = "button"
		case "A":
			role = "link"
		case "INPUT", "TEXTAREA":
			role = "textbox"
		case "SELECT":
			role = "combobox"
		}
		res.byBackendID[backendID] = &accessibility.Node{
			NodeID:           accessibility.NodeID(fmt.Sprintf("synth-%d", backendID)),
			BackendDOMNodeID: backendID,
			Role:             axStringValue(role),
			Name:             axStringValue(accessibleName(n)),
		}
	}
	return res
}

// accessibleName approximates an element's accessible name from its
// attributes: aria-label, then title, then placeholder.
func accessibleName(n *cdp.Node) string {
	for _, attr := range []string{"aria-label", "title", "placeholder"} {
		if v := attrValue(n, attr); v != "" {
			return v
		}
	}
	return ""
}

// roleAndName extracts the human-readable role and name from an AX node the
// way the CDP wire format actually encodes them: both are AXValue objects
// whose Value field — not Type — carries the JSON-encoded string (a detail
// the corpus learned the hard way; see the snapshot collectors this pass is
// grounded on).
func roleAndName(n *accessibility.Node) (role, name string) {
	if n.Role != nil {
		role = axValueString(n.Role)
	}
	if n.Name != nil {
		name = axValueString(n.Name)
	}
	return role, name
}

func axValueString(v *accessibility.Value) string {
	var s string
	_ = json.Unmarshal(v.Value, &s)
	return s
}

func axStringValue(s string) *accessibility.Value {
	b, _ := json.Marshal(s)
	return &accessibility.Value{Value: b}
}
