package capture

import (
	"github.com/frameagent/frameagent/snapshot"
)

// collapsible reports whether role is a bare structural wrapper Pass 6 may
// splice out of the tree once its children are known: a scrollable
// container ("scrollable" or "scrollable, ...") is never collapsed, since
// it must stay addressable per property 7.
func collapsible(role string) bool {
	return role == "generic" || role == "none"
}

// buildFrameNodes walks a frame's cleaned AccessibilityNode set (already
// written into snap.Elements) into the snapshot.FrameNode tree FormatTree
// expects, starting from the frame's root element, applying Pass 6's
// structural-wrapper rules: a childless generic/none node is pruned, one
// with exactly one surviving child is spliced out in favor of that child,
// and one with several children is displayed by its HTML tag name instead.
// A sole StaticText child repeating its parent's name is dropped.
func buildFrameNodes(snap *snapshot.Snapshot, rootID snapshot.EncodedId) *snapshot.FrameNode {
	return buildFrameNode(snap, rootID, make(map[snapshot.EncodedId]bool))
}

func buildFrameNode(snap *snapshot.Snapshot, id snapshot.EncodedId, visited map[snapshot.EncodedId]bool) *snapshot.FrameNode {
	if visited[id] {
		return nil
	}
	visited[id] = true

	el, ok := snap.Elements[id]
	if !ok {
		return nil
	}

	var children []*snapshot.FrameNode
	for _, childID := range el.Children {
		if c := buildFrameNode(snap, childID, visited); c != nil {
			children = append(children, c)
		}
	}

	if len(children) == 1 && children[0].Role == "statictext" && children[0].Name == el.Name {
		children = nil
	}

	role := el.Role
	if collapsible(role) {
		switch len(children) {
		case 0:
			if el.Name == "" {
				return nil
			}
		case 1:
			return children[0]
		default:
			if el.Tag != "" {
				role = el.Tag
			}
		}
	}

	return &snapshot.FrameNode{ID: id, Role: role, Name: el.Name, Children: children}
}

// formatSnapshot runs Pass 7: build every frame's FrameNode tree, record
// each frame's human-readable ancestry, and hand the trees to
// snapshot.FormatTree, storing the result in snap.DOMState.
func formatSnapshot(snap *snapshot.Snapshot, roots map[int]snapshot.EncodedId) {
	nodes := make(map[int]*snapshot.FrameNode, len(roots))
	for frameIndex, rootID := range roots {
		nodes[frameIndex] = buildFrameNodes(snap, rootID)
	}
	for frameIndex, info := range snap.FrameMap {
		info.FramePath = snapshot.FramePath(snap.FrameMap, frameIndex)
	}
	snap.DOMState = snapshot.FormatTree(snap.FrameMap, nodes)
}
