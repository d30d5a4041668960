package capture

import (
	"encoding/json"
	"testing"

	"github.com/chromedp/cdproto/accessibility"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/frameagent/frameagent/framegraph"
	"github.com/frameagent/frameagent/snapshot"
)

// TestSyncFrameGraphDropsUnmatchedFrame covers the boundary scenario of an
// iframe detaching mid-capture: with no frame graph record owned by the
// iframe's backend node, the frame's elements are removed from the shared
// maps and the frame never reaches FrameMap.
func TestSyncFrameGraphDropsUnmatchedFrame(t *testing.T) {
	input := elemNode("INPUT", 301)
	childDoc := docNode(300, input)
	iframe := iframeNode(200, "q", childDoc)
	frames := partitionFrameTree(docNode(100, iframe))
	require.Len(t, frames, 2)

	snap := snapshot.New()
	byIndex := make(map[int]*frameWalkResult)
	for _, f := range frames {
		byIndex[f.frameIndex] = f
		mergeIntoSnapshot(snap, f.frameIndex, f.walk)
	}

	g := framegraph.New(nil) // the graph never saw a frameAttached for the iframe
	syncFrameGraph(snap, g, byIndex, logrus.NewEntry(logrus.New()))

	require.NotContains(t, snap.FrameMap, 1)
	require.NotContains(t, byIndex, 1)
	_, ok := snap.BackendNodeMap[snapshot.EncodedId("1-301")]
	require.False(t, ok, "a dropped frame's elements must not linger in BackendNodeMap")
	_, ok = snap.BackendNodeMap[snapshot.EncodedId("0-200")]
	require.True(t, ok, "the main frame's own elements are unaffected")
}

// TestSyncFrameGraphImposesDFSIndexOnMatchedFrame covers the authoritative
// overwrite: the graph's event-driven preliminary index yields to Pass 1's
// DFS-assigned one once the owner backend node matches.
func TestSyncFrameGraphImposesDFSIndexOnMatchedFrame(t *testing.T) {
	input := elemNode("INPUT", 301)
	childDoc := docNode(300, input)
	iframe := iframeNode(200, "q", childDoc)
	frames := partitionFrameTree(docNode(100, iframe))

	snap := snapshot.New()
	byIndex := make(map[int]*frameWalkResult)
	for _, f := range frames {
		byIndex[f.frameIndex] = f
		mergeIntoSnapshot(snap, f.frameIndex, f.walk)
	}

	g := framegraph.New(nil)
	g.HandlePageEvent(&page.EventFrameNavigated{Frame: &cdp.Frame{ID: cdp.FrameID("root")}})
	// A sibling attached first takes preliminary index 1, so "child" starts at 2.
	g.HandlePageEvent(&page.EventFrameAttached{FrameID: cdp.FrameID("other"), ParentFrameID: cdp.FrameID("root")})
	g.HandlePageEvent(&page.EventFrameAttached{FrameID: cdp.FrameID("child"), ParentFrameID: cdp.FrameID("root")})
	require.NoError(t, g.SetOwner(cdp.FrameID("child"), cdp.BackendNodeID(200)))

	syncFrameGraph(snap, g, byIndex, logrus.NewEntry(logrus.New()))

	require.Contains(t, snap.FrameMap, 1)
	require.Equal(t, cdp.FrameID("child"), snap.FrameMap[1].FrameID)

	fr, ok := g.ByIndex(1)
	require.True(t, ok)
	require.Equal(t, cdp.FrameID("child"), fr.FrameID)
}

func axValue(s string) *accessibility.Value {
	b, _ := json.Marshal(s)
	return &accessibility.Value{Value: b}
}

// TestChildrenOfTunnelsThroughIgnoredAXNodes verifies the AX hierarchy
// wiring skips over ignored wrappers without losing their subtrees.
func TestChildrenOfTunnelsThroughIgnoredAXNodes(t *testing.T) {
	dw := newDomWalkResult()
	for _, id := range []cdp.BackendNodeID{10, 11, 12} {
		dw.record(&cdp.Node{NodeType: cdp.NodeTypeElement, NodeName: "DIV", BackendNodeID: id}, "")
	}

	parent := &accessibility.Node{NodeID: "1", BackendDOMNodeID: 10, Role: axValue("generic"), ChildIDs: []accessibility.NodeID{"2"}}
	ignored := &accessibility.Node{NodeID: "2", BackendDOMNodeID: 11, Ignored: true, ChildIDs: []accessibility.NodeID{"3"}}
	leaf := &accessibility.Node{NodeID: "3", BackendDOMNodeID: 12, Role: axValue("button"), Name: axValue("Go")}

	ax := &axResult{
		byBackendID: map[cdp.BackendNodeID]*accessibility.Node{10: parent, 11: ignored, 12: leaf},
		byAXID:      map[accessibility.NodeID]*accessibility.Node{"1": parent, "2": ignored, "3": leaf},
	}

	children := ax.childrenOf(10, dw, 0)
	require.Equal(t, []snapshot.EncodedId{"0-12"}, children)
}
