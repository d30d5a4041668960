package snapshot

import (
	"fmt"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// FrameNode is the minimal shape FormatTree needs per kept element; capture
// builds these during Pass 6 and hands them to FormatTree for Pass 7.
type FrameNode struct {
	ID       EncodedId
	Role     string
	Name     string
	Children []*FrameNode
}

// FormatTree renders Pass 7's formatted text tree: one line per node,
// indented by depth, "[<encodedId>] <role>[: <name>]", frames separated by
// blank lines and headed by "=== Frame i (path) ===".
func FormatTree(frameMap map[int]*IframeInfo, roots map[int]*FrameNode) string {
	indices := maps.Keys(roots)
	slices.Sort(indices)

	var b strings.Builder
	for n, i := range indices {
		if n > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(framePathHeader(i, frameMap))
		b.WriteString("\n")
		writeNode(&b, roots[i], 0)
	}
	return b.String()
}

func framePathHeader(frameIndex int, frameMap map[int]*IframeInfo) string {
	return fmt.Sprintf("=== Frame %d (%s) ===", frameIndex, FramePath(frameMap, frameIndex))
}

// FramePath reconstructs a frame's human-readable ancestry ("Main",
// "Main → Frame 1 → Frame 2") by walking ParentFrameIndex toward the root
// (spec §4.3 Pass 7).
func FramePath(frameMap map[int]*IframeInfo, frameIndex int) string {
	if frameIndex == 0 {
		return "Main"
	}
	path := []string{"Main"}
	chain := []int{frameIndex}
	cur := frameIndex
	for {
		info, ok := frameMap[cur]
		if !ok || info.ParentFrameIndex == nil {
			break
		}
		cur = *info.ParentFrameIndex
		chain = append(chain, cur)
		if cur == 0 {
			break
		}
	}
	// chain is leaf-to-root, e.g. [2,1,0]; drop the trailing root and reverse
	// it to get root-to-leaf order, e.g. [1,2], appended after "Main".
	intermediate := chain
	if len(intermediate) > 0 && intermediate[len(intermediate)-1] == 0 {
		intermediate = intermediate[:len(intermediate)-1]
	}
	for i := len(intermediate) - 1; i >= 0; i-- {
		path = append(path, fmt.Sprintf("Frame %d", intermediate[i]))
	}
	return strings.Join(path, " → ")
}

func writeNode(b *strings.Builder, n *FrameNode, depth int) {
	if n == nil {
		return
	}
	indent := strings.Repeat("  ", depth)
	if n.Name != "" {
		fmt.Fprintf(b, "%s[%s] %s: %s\n", indent, n.ID, n.Role, n.Name)
	} else {
		fmt.Fprintf(b, "%s[%s] %s\n", indent, n.ID, n.Role)
	}
	for _, c := range n.Children {
		writeNode(b, c, depth+1)
	}
}

// ParsedIds extracts the set of EncodedIds embedded in a formatted tree
// (used by property test 6: the formatted tree round-trips its id set).
func ParsedIds(formatted string) map[EncodedId]struct{} {
	ids := make(map[EncodedId]struct{})
	for _, line := range strings.Split(formatted, "\n") {
		start := strings.IndexByte(line, '[')
		end := strings.IndexByte(line, ']')
		if start == -1 || end == -1 || end <= start+1 {
			continue
		}
		candidate := EncodedId(line[start+1 : end])
		if Valid(candidate) {
			ids[candidate] = struct{}{}
		}
	}
	return ids
}
