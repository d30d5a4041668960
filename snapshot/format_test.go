package snapshot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatTreeSingleMainFrameButton(t *testing.T) {
	root := &FrameNode{ID: "0-7", Role: "button", Name: "Submit"}
	out := FormatTree(map[int]*IframeInfo{}, map[int]*FrameNode{0: root})
	require.Contains(t, out, "=== Frame 0 (Main) ===")
	require.Contains(t, out, "[0-7] button: Submit")
}

func TestFormatTreeMultiFramePath(t *testing.T) {
	frameMap := map[int]*IframeInfo{
		1: {FrameIndex: 1, ParentFrameIndex: intPtr(0)},
		2: {FrameIndex: 2, ParentFrameIndex: intPtr(1)},
	}
	roots := map[int]*FrameNode{
		0: {ID: "0-1", Role: "RootWebArea"},
		1: {ID: "1-1", Role: "RootWebArea"},
		2: {ID: "2-1", Role: "RootWebArea"},
	}
	out := FormatTree(frameMap, roots)
	require.Contains(t, out, "=== Frame 0 (Main) ===")
	require.Contains(t, out, "=== Frame 1 (Main → Frame 1) ===")
	require.Contains(t, out, "=== Frame 2 (Main → Frame 1 → Frame 2) ===")
}

func TestParsedIdsRoundTripsFormattedTree(t *testing.T) {
	root := &FrameNode{
		ID:   "0-1",
		Role: "generic",
		Children: []*FrameNode{
			{ID: "0-2", Role: "button", Name: "Go"},
			{ID: "0-3", Role: "link", Name: "Home"},
		},
	}
	out := FormatTree(nil, map[int]*FrameNode{0: root})
	ids := ParsedIds(out)
	require.Len(t, ids, 3)
	for _, id := range []EncodedId{"0-1", "0-2", "0-3"} {
		_, ok := ids[id]
		require.True(t, ok, "expected %s in parsed set", id)
	}
}

func intPtr(i int) *int { return &i }
