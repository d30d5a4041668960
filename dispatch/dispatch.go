// Package dispatch implements the Action Dispatcher (spec §4.6): a closed,
// bounded set of twelve element operations executed through CDP
// Input/Runtime/DOM primitives, waiting for the DOM to settle after every
// mutating call. Grounded on the teacher's input.go (MouseAction/
// MouseClickXY/MouseActionNode, KeyAction/KeyActionNode) and query.go
// (SetValue/Value's Runtime.Evaluate-against-a-node idiom).
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/sirupsen/logrus"

	"github.com/frameagent/frameagent/framegraph"
	"github.com/frameagent/frameagent/resolver"
	"github.com/frameagent/frameagent/snapshot"
	"github.com/frameagent/frameagent/transport"
)

// Method is one of the twelve closed-set element operations (spec §4.6:
// "a bounded, closed method set"). Callers, including the LLM, may request
// only these; any other value is a structural bad-request (spec §7).
type Method string

const (
	MethodClick                   Method = "click"
	MethodFill                    Method = "fill"
	MethodType                    Method = "type"
	MethodPress                   Method = "press"
	MethodSelectOptionFromDropdown Method = "selectOptionFromDropdown"
	MethodCheck                   Method = "check"
	MethodUncheck                 Method = "uncheck"
	MethodHover                   Method = "hover"
	MethodScrollToElement         Method = "scrollToElement"
	MethodScrollToPercentage      Method = "scrollToPercentage"
	MethodNextChunk               Method = "nextChunk"
	MethodPrevChunk               Method = "prevChunk"
)

var validMethods = map[Method]bool{
	MethodClick: true, MethodFill: true, MethodType: true, MethodPress: true,
	MethodSelectOptionFromDropdown: true, MethodCheck: true, MethodUncheck: true,
	MethodHover: true, MethodScrollToElement: true, MethodScrollToPercentage: true,
	MethodNextChunk: true, MethodPrevChunk: true,
}

// IsValid reports whether m is one of the twelve registered methods.
func IsValid(m Method) bool { return validMethods[m] }

var mutatingMethods = map[Method]bool{
	MethodClick: true, MethodFill: true, MethodType: true, MethodPress: true,
	MethodSelectOptionFromDropdown: true, MethodCheck: true, MethodUncheck: true,
}

// clickTimeout bounds Input.dispatchMouseEvent's move/press/release sequence
// (spec §5: "3500 ms click").
const clickTimeout = 3500 * time.Millisecond

// Result is the compact outcome every action yields (spec §6:
// executeAction → {ok, message}).
type Result struct {
	OK      bool
	Message string
}

// Dispatcher executes the closed method set against a live page, routing
// each call to the correct session via the Element Resolver.
type Dispatcher struct {
	pool     *transport.Pool
	graph    *framegraph.Graph
	resolve  *resolver.Deps
	settle   *Settle
	timeouts Timeouts
	log      *logrus.Entry
}

// New builds a Dispatcher wired to a page's live transport/frame-graph
// state. settle, if nil, is constructed fresh with default timeouts.
func New(pool *transport.Pool, graph *framegraph.Graph, settle *Settle, timeouts *Timeouts, log *logrus.Entry) *Dispatcher {
	t := defaultTimeouts()
	if timeouts != nil {
		t = *timeouts
	}
	if settle == nil {
		settle = NewSettle(pool, &t)
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Dispatcher{
		pool:     pool,
		graph:    graph,
		resolve:  &resolver.Deps{Pool: pool, Graph: graph},
		settle:   settle,
		timeouts: t,
		log:      log,
	}
}

// EnableNetworkTracking turns on the Network events the settle routine
// feeds on; called once per page after the lifecycle session is pooled.
func (d *Dispatcher) EnableNetworkTracking(ctx context.Context) error {
	return d.settle.EnableNetwork(ctx)
}

// Execute runs one action-dispatch protocol cycle (spec §4.6): resolve,
// ensure in view, perform the method-specific primitives, wait for the DOM
// to settle after mutating methods, and mark snap dirty after every
// successful action and every mutating one.
func (d *Dispatcher) Execute(ctx context.Context, snap *snapshot.Snapshot, id snapshot.EncodedId, method Method, args []string) (Result, error) {
	if !IsValid(method) {
		return Result{}, fmt.Errorf("dispatch: %q is not a registered method", method)
	}

	r, err := resolver.Resolve(ctx, d.resolve, snap, id, d.log)
	if err != nil {
		return Result{OK: false, Message: err.Error()}, nil
	}

	s, err := d.sessionForResolved(r)
	if err != nil {
		return Result{OK: false, Message: err.Error()}, nil
	}

	if err := dom.ScrollIntoViewIfNeeded().WithBackendNodeID(r.BackendNodeID).Do(cdp.WithExecutor(ctx, s)); err != nil {
		d.log.WithError(err).WithField("encodedId", id).Debug("dispatch: scrollIntoViewIfNeeded failed, continuing")
	}

	var box *snapshot.Rect
	if bb, ok := snap.BoundingBoxMap[id]; ok {
		box = &bb
	}

	msg, err := d.run(ctx, s, r, box, method, args)
	ok := err == nil
	outMsg := msg
	if err != nil {
		outMsg = err.Error()
	}

	if mutatingMethods[method] {
		reason, serr := d.settle.Wait(ctx)
		if serr != nil {
			d.log.WithError(serr).WithField("encodedId", id).Debug("dispatch: settle wait interrupted")
		} else {
			d.log.WithField("encodedId", id).WithField("reason", reason).Debug("dispatch: dom settled")
		}
	}
	// Scroll methods move layout even though they never touch the DOM, so
	// every successful action invalidates the caller's snapshot; a failed
	// mutating action may still have fired events before failing.
	if ok || mutatingMethods[method] {
		snap.MarkDirty()
	}

	return Result{OK: ok, Message: outMsg}, nil
}

func (d *Dispatcher) sessionForResolved(r snapshot.ResolvedElement) (*transport.Session, error) {
	if r.SessionID == "" {
		s, ok := d.pool.Get(transport.KindDOM)
		if !ok {
			return nil, fmt.Errorf("dispatch: no dom session attached")
		}
		return s, nil
	}
	if s, ok := d.pool.ChildByID(r.SessionID); ok {
		return s, nil
	}
	s, ok := d.pool.Get(transport.KindDOM)
	if !ok {
		return nil, fmt.Errorf("dispatch: no session for %s", r.SessionID)
	}
	return s, nil
}

func (d *Dispatcher) run(ctx context.Context, s cdp.Executor, r snapshot.ResolvedElement, box *snapshot.Rect, method Method, args []string) (string, error) {
	switch method {
	case MethodClick:
		return "clicked", d.click(ctx, s, r, box)
	case MethodHover:
		return "hovered", d.hover(ctx, s, r, box)
	case MethodFill:
		if len(args) == 0 {
			return "", fmt.Errorf("dispatch: fill requires one argument")
		}
		return "filled", d.fill(ctx, s, r, args[0])
	case MethodType:
		var trailing bool
		if len(args) == 0 {
			return "", fmt.Errorf("dispatch: type requires one argument")
		}
		if len(args) > 1 && args[1] == "Enter" {
			trailing = true
		}
		return "typed", d.typeText(ctx, s, r, args[0], trailing)
	case MethodPress:
		if len(args) == 0 {
			return "", fmt.Errorf("dispatch: press requires a key name")
		}
		return "pressed " + args[0], d.press(ctx, s, args[0])
	case MethodSelectOptionFromDropdown:
		if len(args) == 0 {
			return "", fmt.Errorf("dispatch: selectOptionFromDropdown requires one argument")
		}
		return "selected", d.selectOption(ctx, s, r, args[0])
	case MethodCheck:
		return "checked", d.setChecked(ctx, s, r, true)
	case MethodUncheck:
		return "unchecked", d.setChecked(ctx, s, r, false)
	case MethodScrollToElement:
		return "scrolled into view", dom.ScrollIntoViewIfNeeded().WithBackendNodeID(r.BackendNodeID).Do(cdp.WithExecutor(ctx, s))
	case MethodScrollToPercentage:
		if len(args) == 0 {
			return "", fmt.Errorf("dispatch: scrollToPercentage requires a percentage argument")
		}
		return "scrolled to percentage", d.scrollToPercentage(ctx, s, r, args[0])
	case MethodNextChunk:
		return "scrolled forward one chunk", d.scrollChunk(ctx, s, r, 1)
	case MethodPrevChunk:
		return "scrolled back one chunk", d.scrollChunk(ctx, s, r, -1)
	}
	return "", fmt.Errorf("dispatch: unhandled method %q", method)
}
