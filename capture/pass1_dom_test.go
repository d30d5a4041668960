package capture

import (
	"testing"

	"github.com/chromedp/cdproto/cdp"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func iframeNode(backendID cdp.BackendNodeID, name string, contentDoc *cdp.Node) *cdp.Node {
	return &cdp.Node{
		NodeType:        cdp.NodeTypeElement,
		NodeName:        "IFRAME",
		BackendNodeID:   backendID,
		Attributes:      []string{"name", name},
		ContentDocument: contentDoc,
	}
}

func elemNode(tag string, backendID cdp.BackendNodeID, attrs ...string) *cdp.Node {
	return &cdp.Node{NodeType: cdp.NodeTypeElement, NodeName: tag, BackendNodeID: backendID, Attributes: attrs}
}

func docNode(backendID cdp.BackendNodeID, children ...*cdp.Node) *cdp.Node {
	return &cdp.Node{NodeType: cdp.NodeTypeDocument, NodeName: "#document", BackendNodeID: backendID, Children: children}
}

// TestPartitionFrameTreeAssignsSameOriginIframeItsOwnFrameIndex exercises
// the boundary scenario a same-origin iframe's content must land in its
// own frame, not the parent document's (spec §8 S2): an <input> inside a
// same-origin iframe's contentDocument must end up addressable as "1-<id>",
// never folded into frame 0's map.
func TestPartitionFrameTreeAssignsSameOriginIframeItsOwnFrameIndex(t *testing.T) {
	input := elemNode("INPUT", 301, "name", "q")
	childDoc := docNode(300, input)
	iframe := iframeNode(200, "search-frame", childDoc)
	root := docNode(100, iframe)

	frames := partitionFrameTree(root)
	require.Len(t, frames, 2)

	main := frames[0]
	require.Equal(t, 0, main.frameIndex)
	require.Nil(t, main.parentFrameIndex)
	_, inMain := main.walk.backendNodeByID[301]
	require.False(t, inMain, "same-origin iframe's input must not be merged into the parent frame's walk")

	child := frames[1]
	require.Equal(t, 1, child.frameIndex)
	require.NotNil(t, child.parentFrameIndex)
	require.Equal(t, 0, *child.parentFrameIndex)
	_, inChild := child.walk.backendNodeByID[301]
	require.True(t, inChild, "same-origin iframe's input must be walked as part of its own frame")

	require.NotNil(t, child.info)
	require.Equal(t, cdp.BackendNodeID(200), child.info.IframeBackendNodeID)
	require.True(t, child.info.HasContentDocument)
	require.Equal(t, cdp.BackendNodeID(300), child.info.ContentDocumentBackendID)
}

// TestPartitionFrameTreeAssignsNestedSameOriginFramesDFSOrder verifies
// frameIndex is allocated in depth-first order across nested same-origin
// iframes, not breadth-first or in document order of sibling iframes at
// the same level as a nested one.
func TestPartitionFrameTreeAssignsNestedSameOriginFramesDFSOrder(t *testing.T) {
	grandchildDoc := docNode(500)
	grandchildIframe := iframeNode(410, "inner", grandchildDoc)
	childDoc := docNode(400, grandchildIframe)
	childIframe := iframeNode(200, "outer", childDoc)
	siblingIframe := iframeNode(210, "sibling", docNode(600))
	root := docNode(100, childIframe, siblingIframe)

	frames := partitionFrameTree(root)
	require.Len(t, frames, 4)

	byBackend := make(map[cdp.BackendNodeID]int)
	for _, f := range frames {
		byBackend[f.walk.rootBackendID] = f.frameIndex
	}
	require.Equal(t, 0, byBackend[100])
	require.Equal(t, 1, byBackend[400], "outer frame discovered before its sibling, per DFS")
	require.Equal(t, 2, byBackend[500], "grandchild frame indexed before the outer frame's sibling")
	require.Equal(t, 3, byBackend[600])
}

// TestPartitionFrameTreeLeavesCrossOriginIframeAsCandidate verifies a
// cross-origin iframe (no ContentDocument) is recorded as an
// iframeCandidate for Pass 2, not recursed into or assigned a frameIndex.
func TestPartitionFrameTreeLeavesCrossOriginIframeAsCandidate(t *testing.T) {
	iframe := elemNode("IFRAME", 200, "src", "https://cross-origin.example.com")
	iframe.FrameID = cdp.FrameID("oopif-1")
	root := docNode(100, iframe)

	frames := partitionFrameTree(root)
	require.Len(t, frames, 1, "no new frame is allocated for a cross-origin iframe during Pass 1")

	main := frames[0]
	require.Len(t, main.walk.iframes, 1)
	require.Equal(t, cdp.FrameID("oopif-1"), main.walk.iframes[0].frameID)
	require.Equal(t, cdp.BackendNodeID(200), main.walk.iframes[0].backendNodeID)
}

// TestPartitionFrameTreeXPathsUseIDShortcutAndSiblingIndices pins the two
// xpath construction rules: an id attribute shortcuts the whole ancestry,
// and same-tag siblings are disambiguated by 1-based position.
func TestPartitionFrameTreeXPathsUseIDShortcutAndSiblingIndices(t *testing.T) {
	button := elemNode("BUTTON", 301, "id", "submit")
	div1 := elemNode("DIV", 302)
	div2 := elemNode("DIV", 303)
	body := elemNode("BODY", 202)
	body.Children = []*cdp.Node{button, div1, div2}
	html := elemNode("HTML", 201)
	html.Children = []*cdp.Node{body}
	root := docNode(100, html)

	frames := partitionFrameTree(root)
	require.Len(t, frames, 1)
	walk := frames[0].walk

	want := map[cdp.BackendNodeID]string{
		100: "",
		201: "/html[1]",
		202: "/html[1]/body[1]",
		301: `//button[@id="submit"]`,
		302: "/html[1]/body[1]/div[1]",
		303: "/html[1]/body[1]/div[2]",
	}
	if diff := cmp.Diff(want, walk.xpathByBackend); diff != "" {
		t.Errorf("xpath map mismatch (-want +got):\n%s", diff)
	}

	require.Equal(t, cdp.BackendNodeID(302), walk.backendByXPath["/html[1]/body[1]/div[1]"])
}
