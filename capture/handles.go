// Package capture implements the DOM & Accessibility Capture pipeline (spec
// §4.3): seven passes that walk the DOM, discover and sync frames, fetch
// each frame's accessibility tree, probe for scrollability, clean and
// decorate the merged tree, and format it into a snapshot.Snapshot.
package capture

import (
	"github.com/frameagent/frameagent/framegraph"
	"github.com/frameagent/frameagent/transport"
)

// Handles bundles the live transport/frame-graph state a page's capture
// run needs. The root engine owns one Handles per page and passes it to
// Run on every call.
type Handles struct {
	Pool  *transport.Pool
	Graph *framegraph.Graph

	Logf, Errf func(string, ...interface{})
}

func (h *Handles) domSession() (*transport.Session, bool) {
	return h.Pool.Get(transport.KindDOM)
}

func (h *Handles) lifecycleSession() (*transport.Session, bool) {
	return h.Pool.Get(transport.KindLifecycle)
}
