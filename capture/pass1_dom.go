package capture

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"

	"github.com/frameagent/frameagent/snapshot"
)

// domWalkResult is one frame's Pass 1 output: its BackendNodeID-indexed
// node maps, plus the cross-origin <iframe> elements found directly inside
// its own document. Same-origin iframes are never merged into a parent's
// domWalkResult — each gets its own, via the recursion in walkFrameTree —
// so a frame's map only ever holds nodes from that frame's document.
type domWalkResult struct {
	backendNodeByID map[cdp.BackendNodeID]*cdp.Node
	xpathByBackend  map[cdp.BackendNodeID]string
	backendByXPath  map[string]cdp.BackendNodeID
	iframes         []iframeCandidate
	rootBackendID   cdp.BackendNodeID
}

func newDomWalkResult() *domWalkResult {
	return &domWalkResult{
		backendNodeByID: make(map[cdp.BackendNodeID]*cdp.Node),
		xpathByBackend:  make(map[cdp.BackendNodeID]string),
		backendByXPath:  make(map[string]cdp.BackendNodeID),
	}
}

func (r *domWalkResult) record(n *cdp.Node, xpath string) {
	r.backendNodeByID[n.BackendNodeID] = n
	r.xpathByBackend[n.BackendNodeID] = xpath
	r.backendByXPath[xpath] = n.BackendNodeID
}

// iframeCandidate is an <iframe> element whose ContentDocument was absent
// from a pierced DOM.getDocument response — i.e. cross-origin — and so is
// a candidate for Pass 2's OOPIF session discovery.
type iframeCandidate struct {
	backendNodeID cdp.BackendNodeID
	frameID       cdp.FrameID
	src           string
}

// frameWalkResult is one frame's Pass 1 output paired with the IframeInfo
// describing the <iframe> element that owns it in its parent document (spec
// §3's IframeInfo). info is nil for the root frame, which has no owner.
type frameWalkResult struct {
	frameIndex       int
	parentFrameIndex *int
	walk             *domWalkResult
	info             *snapshot.IframeInfo
}

// xpathSegment builds one document-relative XPath step for n: an id
// attribute shortcuts the whole ancestry as //tag[@id="..."], otherwise the
// parent's path is extended with the tag and its position among like-named
// element siblings.
func xpathSegment(n *cdp.Node, parentPath string, siblingIndex int) string {
	tag := strings.ToLower(n.NodeName)
	if id := attrValue(n, "id"); id != "" {
		return fmt.Sprintf("//%s[@id=%q]", tag, id)
	}
	return fmt.Sprintf("%s/%s[%d]", parentPath, tag, siblingIndex)
}

// walkFrameTree runs Pass 1 across the whole same-origin frame subtree
// reachable from a single DOM.getDocument(pierce=true) call on the root
// session. Same-origin iframes already arrive as ContentDocument nodes in
// that one pierced tree, so partitioning it into per-frame domWalkResults,
// in depth-first order, needs no further CDP round-trips; only cross-origin
// iframes (no ContentDocument) are left as Pass 2 candidates. frameIndex is
// allocated to each same-origin frame as it is discovered, main frame = 0,
// per spec §3's EncodedId invariant and §4.3 Pass 1's "allocate
// nextFrameIndex++... and if a contentDocument is present, recurse into it."
func walkFrameTree(ctx context.Context, s cdp.Executor) ([]*frameWalkResult, error) {
	doc, err := dom.GetDocument().WithDepth(-1).WithPierce(true).Do(cdp.WithExecutor(ctx, s))
	if err != nil {
		return nil, fmt.Errorf("capture: dom.getDocument: %w", err)
	}
	return partitionFrameTree(doc), nil
}

// partitionFrameTree is walkFrameTree's pure DFS partitioning step, split
// out so it can be exercised directly against a hand-built pierced tree
// without a live CDP session.
func partitionFrameTree(doc *cdp.Node) []*frameWalkResult {
	var frames []*frameWalkResult
	nextIndex := 0

	var walkFrame func(doc *cdp.Node, frameIndex int, parentIndex *int, info *snapshot.IframeInfo)
	walkFrame = func(doc *cdp.Node, frameIndex int, parentIndex *int, info *snapshot.IframeInfo) {
		res := newDomWalkResult()
		res.rootBackendID = doc.BackendNodeID
		frames = append(frames, &frameWalkResult{frameIndex: frameIndex, parentFrameIndex: parentIndex, walk: res, info: info})

		iframesByName := make(map[string]int)

		var walkNode func(n *cdp.Node, parentPath string, siblingIndex int)
		walkNode = func(n *cdp.Node, parentPath string, siblingIndex int) {
			if n == nil {
				return
			}
			path := parentPath
			switch n.NodeType {
			case cdp.NodeTypeElement:
				path = xpathSegment(n, parentPath, siblingIndex)
				res.record(n, path)
			case cdp.NodeTypeDocument:
				// The document node anchors the frame's RootWebArea AX node;
				// it has no element path of its own.
				res.record(n, "")
			}

			if n.NodeName == "IFRAME" {
				name := attrValue(n, "name")
				src := attrValue(n, "src")
				iframesByName[name]++

				if n.ContentDocument != nil {
					nextIndex++
					childIndex := nextIndex
					parent := frameIndex
					childInfo := &snapshot.IframeInfo{
						FrameIndex:               childIndex,
						ParentFrameIndex:         &parent,
						IframeBackendNodeID:      n.BackendNodeID,
						ContentDocumentBackendID: n.ContentDocument.BackendNodeID,
						HasContentDocument:       true,
						XPath:                    path,
						Src:                      src,
						Name:                     name,
						SiblingPosition:          iframesByName[name],
					}
					walkFrame(n.ContentDocument, childIndex, &parent, childInfo)
				} else {
					res.iframes = append(res.iframes, iframeCandidate{
						backendNodeID: n.BackendNodeID,
						frameID:       n.FrameID,
						src:           src,
					})
				}
			}

			walkChildren(n, path, walkNode)
		}
		walkNode(doc, "", 1)
	}

	walkFrame(doc, 0, nil, nil)
	return frames
}

// walkChildren visits n's element children (and shadow roots) in document
// order, handing each its 1-based position among same-tag siblings so
// xpathSegment can index it.
func walkChildren(n *cdp.Node, path string, visit func(*cdp.Node, string, int)) {
	tagCount := make(map[string]int)
	for _, c := range n.Children {
		tagCount[c.NodeName]++
		visit(c, path, tagCount[c.NodeName])
	}
	for _, sr := range n.ShadowRoots {
		tagCount[sr.NodeName]++
		visit(sr, path, tagCount[sr.NodeName])
	}
}

// walkOOPIFFrame runs Pass 1 for a single OOPIF's own document on its own
// dedicated session, with pierce=false (spec §4.3 Pass 1: "an OOPIF's own
// session for cross-origin frames, with pierce=false to avoid capturing
// transient child frames"). Any further iframe found inside it — same- or
// cross-origin relative to the OOPIF itself — is left as another Pass 2
// candidate rather than recursed into here.
func walkOOPIFFrame(ctx context.Context, s cdp.Executor) (*domWalkResult, error) {
	doc, err := dom.GetDocument().WithDepth(-1).WithPierce(false).Do(cdp.WithExecutor(ctx, s))
	if err != nil {
		return nil, fmt.Errorf("capture: dom.getDocument (oopif): %w", err)
	}

	res := newDomWalkResult()
	res.rootBackendID = doc.BackendNodeID

	var walkNode func(n *cdp.Node, parentPath string, siblingIndex int)
	walkNode = func(n *cdp.Node, parentPath string, siblingIndex int) {
		if n == nil {
			return
		}
		path := parentPath
		switch n.NodeType {
		case cdp.NodeTypeElement:
			path = xpathSegment(n, parentPath, siblingIndex)
			res.record(n, path)
		case cdp.NodeTypeDocument:
			// The document node anchors the frame's RootWebArea AX node; it
			// has no element path of its own.
			res.record(n, "")
		}

		if n.NodeName == "IFRAME" {
			res.iframes = append(res.iframes, iframeCandidate{
				backendNodeID: n.BackendNodeID,
				frameID:       n.FrameID,
				src:           attrValue(n, "src"),
			})
		}

		walkChildren(n, path, walkNode)
	}
	walkNode(doc, "", 1)
	return res, nil
}

func attrValue(n *cdp.Node, name string) string {
	for i := 0; i+1 < len(n.Attributes); i += 2 {
		if n.Attributes[i] == name {
			return n.Attributes[i+1]
		}
	}
	return ""
}

// mergeIntoSnapshot copies a frame's Pass 1 result into the shared
// snapshot's BackendNodeMap/XPathMap, scoped to frameIndex via EncodedId.
func mergeIntoSnapshot(snap *snapshot.Snapshot, frameIndex int, res *domWalkResult) {
	for backendID := range res.backendNodeByID {
		id := snapshot.Encode(frameIndex, backendID)
		snap.BackendNodeMap[id] = backendID
		snap.XPathMap[id] = res.xpathByBackend[backendID]
	}
}
