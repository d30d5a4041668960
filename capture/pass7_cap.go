package capture

import (
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"

	"github.com/frameagent/frameagent/snapshot"
)

// relevanceScore ranks a node the way the corpus's size-bounded collectors
// do (SPEC_FULL.md supplemented feature): a named, richly-described,
// addressable role scores higher than a bare structural one.
func relevanceScore(n snapshot.AccessibilityNode) int {
	score := 0
	if n.Role != "" && n.Role != "generic" && n.Role != "none" {
		score++
	}
	if n.Name != "" {
		score += 2 + len(n.Name)/8
	}
	if n.Description != "" {
		score++
	}
	if n.ScrollInfo != "" {
		score++
	}
	return score
}

// applyElementCap enforces ObserveOption's MaxElements bound by repeatedly
// dropping the lowest-relevance leaf element until the snapshot fits, never
// removing a frame root or a node that still has children (dropping an
// internal node would orphan its subtree). Every drop is logged, per the
// "no silent caps" requirement (spec §7's propagation rule extended by
// SPEC_FULL.md).
func applyElementCap(snap *snapshot.Snapshot, roots map[int]snapshot.EncodedId, max int, log *logrus.Entry) {
	if max <= 0 || len(snap.Elements) <= max {
		return
	}

	isRoot := make(map[snapshot.EncodedId]bool, len(roots))
	for _, r := range roots {
		isRoot[r] = true
	}

	parentOf := make(map[snapshot.EncodedId]snapshot.EncodedId)
	for id, n := range snap.Elements {
		for _, c := range n.Children {
			parentOf[c] = id
		}
	}

	dropped := 0
	for len(snap.Elements) > max {
		var candidates []snapshot.EncodedId
		for id, n := range snap.Elements {
			if isRoot[id] || len(n.Children) > 0 {
				continue
			}
			candidates = append(candidates, id)
		}
		if len(candidates) == 0 {
			break // nothing left to drop without orphaning a subtree
		}
		slices.SortFunc(candidates, func(a, b snapshot.EncodedId) bool {
			sa, sb := relevanceScore(snap.Elements[a]), relevanceScore(snap.Elements[b])
			if sa != sb {
				return sa < sb
			}
			return a < b
		})

		victim := candidates[0]
		delete(snap.Elements, victim)
		dropped++
		if p, ok := parentOf[victim]; ok {
			if parent, ok := snap.Elements[p]; ok {
				parent.Children = removeID(parent.Children, victim)
				snap.Elements[p] = parent
			}
		}
	}

	if dropped > 0 && log != nil {
		log.Infof("capture: max-elements cap dropped %d low-relevance element(s)", dropped)
	}
}

func removeID(ids []snapshot.EncodedId, target snapshot.EncodedId) []snapshot.EncodedId {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
