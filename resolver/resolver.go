// Package resolver implements the Element Resolver (spec §4.5): it turns a
// stable EncodedId into a live (session, frame, backend-node, object)
// tuple, recovering via XPath in the correct execution context when the
// backend node id has gone stale. Grounded on the teacher's
// runtime.CallFunctionOn idiom (poll.go) and its $x(...)-based XPath
// evaluation scripts (query.go's valueJS/textJS/submitJS).
package resolver

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/sirupsen/logrus"

	"github.com/frameagent/frameagent/framegraph"
	"github.com/frameagent/frameagent/snapshot"
	"github.com/frameagent/frameagent/transport"
)

// executionContextWait is the budget for waiting for a frame's execution
// context to become available during XPath recovery (spec §4.5 step 4,
// spec §5's 750ms execution-context budget).
const executionContextWait = 750 * time.Millisecond

// Kind classifies a resolve failure so callers can decide whether to
// retry, re-observe, or abort outright (spec §4.5 "Failure cases" / §7).
type Kind int

const (
	// KindNotFound covers a frame index missing from the graph or an
	// EncodedId with no recorded XPath: structural, never retried.
	KindNotFound Kind = iota
	// KindFrameNotReady means the frame's execution context never became
	// available within the wait budget.
	KindFrameNotReady
	// KindStaleElement means DOM.resolveNode failed for a reason other than
	// a missing node, or XPath recovery failed or evaluated to no node.
	KindStaleElement
)

// Error reports a precise resolve failure cause (spec §4.5's contract:
// "fails with a precise cause").
type Error struct {
	Kind Kind
	ID   snapshot.EncodedId
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("resolver: %s: %v", e.ID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func fail(kind Kind, id snapshot.EncodedId, err error) error {
	return &Error{Kind: kind, ID: id, Err: err}
}

// Deps bundles the live state Resolve needs to turn an EncodedId into a
// session-addressed object, mirroring capture.Handles.
type Deps struct {
	Pool  *transport.Pool
	Graph *framegraph.Graph
}

// sessionFor returns the Session that should address frameIndex: the root
// DOM-pooled session for frame 0 or a same-origin frame, the dedicated
// child session for an OOPIF.
func (d *Deps) sessionFor(snap *snapshot.Snapshot, frameIndex int) (*transport.Session, cdp.FrameID, error) {
	if frameIndex == 0 {
		s, ok := d.Pool.Get(transport.KindDOM)
		if !ok {
			return nil, "", fmt.Errorf("no dom session attached")
		}
		return s, "", nil
	}

	info, ok := snap.FrameMap[frameIndex]
	if !ok || info.FrameID == "" {
		return nil, "", fmt.Errorf("frame index %d not in frame map", frameIndex)
	}

	if info.IsOOPIF {
		s, ok := d.Pool.ChildByID(info.CDPSessionID)
		if !ok {
			return nil, info.FrameID, fmt.Errorf("no child session for OOPIF frame %d", frameIndex)
		}
		return s, info.FrameID, nil
	}

	s, ok := d.Pool.Get(transport.KindDOM)
	if !ok {
		return nil, info.FrameID, fmt.Errorf("no dom session attached")
	}
	return s, info.FrameID, nil
}

// Resolve implements spec §4.5's five-step algorithm, returning a cached or
// freshly-resolved snapshot.ResolvedElement for id.
func Resolve(ctx context.Context, deps *Deps, snap *snapshot.Snapshot, id snapshot.EncodedId, log *logrus.Entry) (snapshot.ResolvedElement, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	frameIndex, backendNodeID, err := snapshot.Parse(id)
	if err != nil {
		return snapshot.ResolvedElement{}, fail(KindNotFound, id, err)
	}

	if r, ok := snap.LookupResolved(id); ok {
		return r, nil
	}

	s, frameID, err := deps.sessionFor(snap, frameIndex)
	if err != nil {
		return snapshot.ResolvedElement{}, fail(KindNotFound, id, err)
	}

	obj, err := resolveNode(ctx, s, backendNodeID)
	if err == nil {
		r := snapshot.ResolvedElement{SessionID: s.SessionID, FrameID: frameID, BackendNodeID: backendNodeID, ObjectID: obj}
		snap.CacheResolved(id, r)
		return r, nil
	}

	if !isNoNodeError(err) {
		return snapshot.ResolvedElement{}, fail(KindStaleElement, id, err)
	}

	log.WithField("encodedId", id).Debug("resolver: backend node stale, recovering via xpath")

	xpath, ok := snap.XPathMap[id]
	if !ok || xpath == "" {
		return snapshot.ResolvedElement{}, fail(KindNotFound, id, fmt.Errorf("no xpath recorded"))
	}

	var execCtxID runtime.ExecutionContextID
	if frameIndex != 0 {
		waitCtx, cancel := context.WithTimeout(ctx, executionContextWait)
		err := deps.Graph.WaitForExecutionContext(waitCtx, frameID)
		cancel()
		if err != nil {
			return snapshot.ResolvedElement{}, fail(KindFrameNotReady, id, err)
		}
		// Evaluate in the frame's own world: on the shared root session the
		// default context is the main document, not this frame's.
		if fr, ok := deps.Graph.Lookup(frameID); ok {
			execCtxID = fr.ExecutionContextID
		}
	}

	newObj, newBackendID, err := recoverByXPath(ctx, s, xpath, execCtxID)
	if err != nil {
		return snapshot.ResolvedElement{}, fail(KindStaleElement, id, err)
	}

	snap.UpdateBackendNode(id, newBackendID)
	r := snapshot.ResolvedElement{SessionID: s.SessionID, FrameID: frameID, BackendNodeID: newBackendID, ObjectID: newObj}
	snap.CacheResolved(id, r)
	return r, nil
}

func resolveNode(ctx context.Context, s cdp.Executor, backendNodeID cdp.BackendNodeID) (runtime.RemoteObjectID, error) {
	obj, err := dom.ResolveNode().WithBackendNodeID(backendNodeID).Do(cdp.WithExecutor(ctx, s))
	if err != nil {
		return "", err
	}
	if obj == nil || obj.ObjectID == "" {
		return "", fmt.Errorf("resolver: resolveNode returned no object for backend node %d", backendNodeID)
	}
	return obj.ObjectID, nil
}

// recoverByXPath evaluates xpath in the frame's execution context (or the
// session's default world when execCtxID is zero), describes the resulting
// node to learn its (possibly new) backend node id, and returns both (spec
// §4.5 step 4).
func recoverByXPath(ctx context.Context, s cdp.Executor, xpath string, execCtxID runtime.ExecutionContextID) (runtime.RemoteObjectID, cdp.BackendNodeID, error) {
	ectx := cdp.WithExecutor(ctx, s)
	script := fmt.Sprintf(`document.evaluate(%q, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue`, xpath)
	params := runtime.Evaluate(script)
	if execCtxID != 0 {
		params = params.WithContextID(execCtxID)
	}
	res, exc, err := params.Do(ectx)
	if err != nil {
		return "", 0, fmt.Errorf("xpath evaluate: %w", err)
	}
	if exc != nil {
		return "", 0, fmt.Errorf("xpath evaluate exception: %s", exc.Text)
	}
	if res == nil || res.ObjectID == "" {
		return "", 0, fmt.Errorf("xpath %q matched no node", xpath)
	}

	node, err := dom.DescribeNode().WithObjectID(res.ObjectID).Do(ectx)
	if err != nil {
		return "", 0, fmt.Errorf("describeNode after xpath recovery: %w", err)
	}
	if node == nil || node.BackendNodeID == 0 {
		return "", 0, fmt.Errorf("describeNode returned no backend node id")
	}
	return res.ObjectID, node.BackendNodeID, nil
}

// isNoNodeError recognizes CDP's "no node with given id found" class of
// error by message, the only signal the protocol gives for it (spec §4.5
// step 4: "a recognized-by-message class of errors").
func isNoNodeError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no node") || strings.Contains(msg, "could not find node") ||
		strings.Contains(msg, "node with given id")
}
