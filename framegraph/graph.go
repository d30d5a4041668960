// Package framegraph implements the Frame Graph & Context Manager (spec
// §4.2): a single-writer, many-reader registry of frames, the CDP sessions
// and execution contexts that back them, and the backendNodeId of the
// iframe element that owns each child frame, kept in sync from async CDP
// page/runtime events the way the teacher's Target keeps its own frame
// table in sync.
package framegraph

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
)

// FrameRecord is one node of the frame graph (spec §3's FrameRecord
// invariants: a unique FrameIndex, a ParentFrameID resolvable back into the
// graph unless it is the root, and no cycles).
type FrameRecord struct {
	FrameID            cdp.FrameID
	ParentFrameID      cdp.FrameID
	FrameIndex         int
	URL                string
	Name               string
	LoaderID           cdp.LoaderID
	OwnerBackendNodeID cdp.BackendNodeID
	ExecutionContextID runtime.ExecutionContextID
	SessionID          target.SessionID
	IsOOPIF            bool
	lastUpdated        time.Time
}

// Graph is the live, mutable frame table for one page. A single Graph
// instance is shared by capture, resolver, and dispatch for the lifetime of
// a page; its Handle* handlers are registered against the page's lifecycle
// Session and are invoked from that session's single Feed goroutine, never
// concurrently with each other, mirroring the single-writer discipline of
// the teacher's Target.frameMu-guarded frame table.
type Graph struct {
	mu sync.RWMutex

	byFrameID map[cdp.FrameID]*FrameRecord
	byIndex   map[int]*FrameRecord
	nextIndex int
	rootID    cdp.FrameID

	ctxWaiters map[cdp.FrameID][]chan struct{}

	denylist func(url string) bool

	initialized bool
}

// New creates an empty Graph. denylist, if non-nil, reports whether a
// candidate OOPIF's URL should be skipped during discovery (spec §4.2's
// ad/tracking frame skip); a nil denylist captures every OOPIF.
func New(denylist func(url string) bool) *Graph {
	if denylist == nil {
		denylist = func(string) bool { return false }
	}
	return &Graph{
		byFrameID:  make(map[cdp.FrameID]*FrameRecord),
		byIndex:    make(map[int]*FrameRecord),
		ctxWaiters: make(map[cdp.FrameID][]chan struct{}),
		denylist:   denylist,
	}
}

// ensureInitialized assigns frame index 0 to the root frame the first time
// it is observed, mirroring the teacher's lazy "t.cur" assignment on the
// first unparented EventFrameNavigated. Callers must hold g.mu.
func (g *Graph) ensureInitialized(id cdp.FrameID) *FrameRecord {
	if fr, ok := g.byFrameID[id]; ok {
		return fr
	}
	fr := &FrameRecord{FrameID: id, lastUpdated: time.Now()}
	if g.rootID == "" {
		g.rootID = id
		fr.FrameIndex = 0
	} else {
		g.nextIndex++
		fr.FrameIndex = g.nextIndex
	}
	g.byFrameID[id] = fr
	g.byIndex[fr.FrameIndex] = fr
	return fr
}

// HandlePageEvent is registered via Session.OnEvent on the page's lifecycle
// session. It type-switches on the decoded event the way the teacher's
// Target.pageEvent does, updating the frame table for frameAttached,
// frameNavigated, and frameDetached.
func (g *Graph) HandlePageEvent(ev interface{}) {
	switch e := ev.(type) {
	case *page.EventFrameAttached:
		g.frameAttached(e.FrameID, e.ParentFrameID)
	case *page.EventFrameNavigated:
		if e.Frame != nil {
			g.frameNavigated(e.Frame)
		}
	case *page.EventFrameDetached:
		g.frameDetached(e.FrameID)
	}
}

func (g *Graph) frameAttached(id, parentID cdp.FrameID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fr := g.ensureInitialized(id)
	fr.ParentFrameID = parentID
	fr.lastUpdated = time.Now()
}

func (g *Graph) frameNavigated(f *cdp.Frame) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fr := g.ensureInitialized(f.ID)
	if f.ParentID != "" {
		fr.ParentFrameID = f.ParentID
	}
	fr.URL = f.URL
	fr.Name = f.Name
	fr.LoaderID = f.LoaderID
	fr.lastUpdated = time.Now()
}

// frameDetached removes the record and every descendant, and releases any
// execution-context waiters parked on them (spec §4.2: "remove record and
// all descendants; release associated execution contexts").
func (g *Graph) frameDetached(id cdp.FrameID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeSubtree(id)
}

func (g *Graph) removeSubtree(id cdp.FrameID) {
	fr, ok := g.byFrameID[id]
	if !ok {
		return
	}
	for _, child := range g.byFrameID {
		if child.ParentFrameID == id {
			g.removeSubtree(child.FrameID)
		}
	}
	delete(g.byFrameID, id)
	if cur, ok := g.byIndex[fr.FrameIndex]; ok && cur == fr {
		delete(g.byIndex, fr.FrameIndex)
	}
	for _, ch := range g.ctxWaiters[id] {
		close(ch)
	}
	delete(g.ctxWaiters, id)
}

// HandleRuntimeEvent is registered via Session.OnEvent on every Session the
// graph tracks execution contexts for (lifecycle session for the main
// frame, each OOPIF's own child session). It mirrors the teacher's
// Target.runtimeEvent AuxData-based frame association.
func (g *Graph) HandleRuntimeEvent(sessionID target.SessionID, ev interface{}) {
	switch e := ev.(type) {
	case *runtime.EventExecutionContextCreated:
		g.executionContextCreated(sessionID, e.Context)
	case *runtime.EventExecutionContextDestroyed:
		g.executionContextDestroyed(e.ExecutionContextID)
	case *runtime.EventExecutionContextsCleared:
		g.executionContextsCleared(sessionID)
	}
}

func (g *Graph) executionContextCreated(sessionID target.SessionID, ctx *runtime.ExecutionContextDescription) {
	if ctx == nil || len(ctx.AuxData) == 0 {
		return
	}
	var aux struct {
		FrameID cdp.FrameID `json:"frameId"`
	}
	if err := json.Unmarshal(ctx.AuxData, &aux); err != nil || aux.FrameID == "" {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	fr := g.ensureInitialized(aux.FrameID)
	fr.ExecutionContextID = ctx.ID
	fr.SessionID = sessionID

	for _, ch := range g.ctxWaiters[aux.FrameID] {
		close(ch)
	}
	delete(g.ctxWaiters, aux.FrameID)
}

func (g *Graph) executionContextDestroyed(id runtime.ExecutionContextID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, fr := range g.byFrameID {
		if fr.ExecutionContextID == id {
			fr.ExecutionContextID = 0
		}
	}
}

func (g *Graph) executionContextsCleared(sessionID target.SessionID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, fr := range g.byFrameID {
		if fr.SessionID == sessionID {
			fr.ExecutionContextID = 0
		}
	}
}

// Lookup returns the current record for a frame id.
func (g *Graph) Lookup(id cdp.FrameID) (FrameRecord, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fr, ok := g.byFrameID[id]
	if !ok {
		return FrameRecord{}, false
	}
	return *fr, true
}

// ByIndex returns the current record assigned to a frame index.
func (g *Graph) ByIndex(i int) (FrameRecord, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fr, ok := g.byIndex[i]
	if !ok {
		return FrameRecord{}, false
	}
	return *fr, true
}

// Count returns the number of frames currently known to the graph.
func (g *Graph) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.byFrameID)
}

// Snapshot returns a stable, independently-ordered copy of every FrameRecord
// currently known, used by capture's Pass 3 to iterate the frame set without
// holding the graph's lock.
func (g *Graph) Snapshot() []FrameRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]FrameRecord, 0, len(g.byFrameID))
	for _, fr := range g.byFrameID {
		out = append(out, *fr)
	}
	return out
}

// AssignFrameIndex overwrites the frameIndex assigned to frame id,
// authoritative over any preliminary event-driven index (spec §3:
// frameIndex is "authoritative over any event-driven preliminary
// assignment"; spec §4.2: "assignFrameIndex(frameId, i): authoritative
// overwrite; used by DOM Capture to impose DFS-order indices on
// same-origin iframes after initial event-driven allocation").
func (g *Graph) AssignFrameIndex(id cdp.FrameID, index int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	fr, ok := g.byFrameID[id]
	if !ok {
		return fmt.Errorf("framegraph: unknown frame %s", id)
	}
	if old, ok := g.byIndex[fr.FrameIndex]; ok && old == fr {
		delete(g.byIndex, fr.FrameIndex)
	}
	fr.FrameIndex = index
	g.byIndex[index] = fr
	return nil
}

// FindByOwner returns the frame record whose owning <iframe> element has
// the given backendNodeId — the only reliable bridge between a DOM-walked
// IframeInfo and its event-discovered FrameRecord (spec §9: "implementations
// should treat this as the only reliable bridge and not attempt to
// correlate by URL").
func (g *Graph) FindByOwner(backendNodeID cdp.BackendNodeID) (FrameRecord, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if backendNodeID == 0 {
		return FrameRecord{}, false
	}
	for _, fr := range g.byFrameID {
		if fr.OwnerBackendNodeID == backendNodeID {
			return *fr, true
		}
	}
	return FrameRecord{}, false
}

// SetOwner records the backendNodeId of the iframe element that owns a
// child frame. EnsureInitialized records it from DOM.getFrameOwner, and
// DiscoverOOPIFs records it from the <iframe> element of the Pass 1
// candidate (spec §4.2: "the owning backendNodeId is learned from the DOM
// tree, not from any CDP event").
func (g *Graph) SetOwner(id cdp.FrameID, backendNodeID cdp.BackendNodeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	fr, ok := g.byFrameID[id]
	if !ok {
		return fmt.Errorf("framegraph: unknown frame %s", id)
	}
	fr.OwnerBackendNodeID = backendNodeID
	return nil
}

// MarkOOPIF records that a frame runs in its own renderer process, reached
// through a dedicated child CDP session rather than the main session.
func (g *Graph) MarkOOPIF(id cdp.FrameID, sessionID target.SessionID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fr := g.ensureInitialized(id)
	fr.IsOOPIF = true
	fr.SessionID = sessionID
}

// ShouldSkip reports whether a candidate OOPIF's document URL matches the
// graph's deny-list, per spec §4.2's ad/tracking frame skip.
func (g *Graph) ShouldSkip(url string) bool {
	return g.denylist(url)
}
