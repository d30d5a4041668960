package snapshot

import (
	"image"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
)

// AccessibilityNode is the merged, Pass-6-cleaned representation of one
// element, keyed by EncodedId in Snapshot.Elements.
type AccessibilityNode struct {
	Role        string
	Name        string
	Description string
	Value       string

	// Tag is the lowercase HTML tag name of the backing DOM element, used
	// when a bare structural wrapper is displayed by its tag instead of its
	// role during tree cleaning.
	Tag string

	// ScrollInfo is populated for nodes detected as scrollable by Pass 5; it
	// is a human-readable summary ("1↑ 1↓ 80%"), additive per SPEC_FULL.md.
	ScrollInfo string

	BackendDOMNodeID cdp.BackendNodeID
	Children         []EncodedId
}

// IframeInfo describes one frame discovered during DOM traversal (spec §3).
type IframeInfo struct {
	FrameIndex       int
	ParentFrameIndex *int

	IframeBackendNodeID      cdp.BackendNodeID
	ContentDocumentBackendID cdp.BackendNodeID // zero for OOPIFs
	HasContentDocument       bool

	XPath           string
	Src             string
	Name            string
	SiblingPosition int

	// Populated by the Pass 3 frame-graph sync.
	FrameID            cdp.FrameID
	ExecutionContextID runtime.ExecutionContextID
	CDPSessionID       target.SessionID
	IsOOPIF            bool

	AbsoluteBoundingBox *image.Rectangle
	FramePath           string
}

// Rect is a viewport-absolute rectangle, expressed in the page's main
// viewport coordinate system regardless of the source frame (spec §3).
type Rect struct {
	X, Y, Width, Height      float64
	Top, Left, Right, Bottom float64
}

// Snapshot is the output of one capture cycle (spec §3 "A11y DOM State").
type Snapshot struct {
	DOMState string

	Elements      map[EncodedId]AccessibilityNode
	XPathMap      map[EncodedId]string
	BackendNodeMap map[EncodedId]cdp.BackendNodeID
	FrameMap      map[int]*IframeInfo

	BoundingBoxMap map[EncodedId]Rect
	VisualOverlay  []byte // PNG bytes, nil unless visual mode

	// Warnings surfaces conditions that degrade coverage without failing
	// the capture outright (decided Open Question, see DESIGN.md).
	Warnings []string

	takenAt time.Time

	mu     sync.RWMutex
	dirty  bool
	// resolved is the per-snapshot Element Resolver cache (§4.5 step 2).
	resolved map[EncodedId]ResolvedElement
}

// ResolvedElement is a cached (session, frame, backend-node, object) tuple.
type ResolvedElement struct {
	SessionID     target.SessionID
	FrameID       cdp.FrameID
	BackendNodeID cdp.BackendNodeID
	ObjectID      runtime.RemoteObjectID
}

// New builds an empty Snapshot ready to be populated by a capture cycle.
func New() *Snapshot {
	return &Snapshot{
		Elements:       make(map[EncodedId]AccessibilityNode),
		XPathMap:       make(map[EncodedId]string),
		BackendNodeMap: make(map[EncodedId]cdp.BackendNodeID),
		FrameMap:       make(map[int]*IframeInfo),
		resolved:       make(map[EncodedId]ResolvedElement),
		takenAt:        time.Now(),
	}
}

// Age reports how long ago the snapshot was produced.
func (s *Snapshot) Age() time.Duration {
	return time.Since(s.takenAt)
}

// Dirty reports whether the snapshot has been invalidated.
func (s *Snapshot) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// MarkDirty invalidates the snapshot. Called by the dispatcher after every
// successful action and every mutating one, and by the engine on navigation/frame-attach/detach events.
func (s *Snapshot) MarkDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = true
}

// CacheResolved stores a resolved element for reuse within this snapshot's
// lifetime. It dies with the snapshot (spec §5 "Shared resources").
func (s *Snapshot) CacheResolved(id EncodedId, r ResolvedElement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved[id] = r
}

// LookupResolved returns a cached resolution, if the backend node id it was
// cached under still matches BackendNodeMap (i.e. no recovery has happened
// since).
func (s *Snapshot) LookupResolved(id EncodedId) (ResolvedElement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resolved[id]
	if !ok {
		return ResolvedElement{}, false
	}
	if cur, ok := s.BackendNodeMap[id]; !ok || cur != r.BackendNodeID {
		return ResolvedElement{}, false
	}
	return r, true
}

// UpdateBackendNode records a recovered backend node id for id (used by the
// resolver after XPath recovery), invalidating any stale cached resolution.
func (s *Snapshot) UpdateBackendNode(id EncodedId, backendNodeID cdp.BackendNodeID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.BackendNodeMap[id] = backendNodeID
	delete(s.resolved, id)
}

// AddWarning appends a non-fatal condition observed during capture.
func (s *Snapshot) AddWarning(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Warnings = append(s.Warnings, msg)
}
