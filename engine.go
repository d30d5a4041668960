package frameagent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/sirupsen/logrus"

	"github.com/frameagent/frameagent/browserdriver"
	"github.com/frameagent/frameagent/capture"
	"github.com/frameagent/frameagent/dispatch"
	"github.com/frameagent/frameagent/framegraph"
	"github.com/frameagent/frameagent/llmiface"
	"github.com/frameagent/frameagent/snapshot"
	"github.com/frameagent/frameagent/transport"
)

// cacheMaxAge is spec §5's "age > 1s" cache-invalidation bound.
const cacheMaxAge = time.Second

// pageState is the lazily-built, per-page bundle of live transport/frame-graph
// state an Engine keeps alive across calls, the analogue of the teacher's
// per-context Browser/Target pairing cached by allocate.go.
type pageState struct {
	pool       *transport.Pool
	graph      *framegraph.Graph
	handles    *capture.Handles
	dispatcher *dispatch.Dispatcher

	mu     sync.Mutex
	cached *snapshot.Snapshot
}

// Engine is the root engine surface (spec §6). It is safe for concurrent use
// across distinct pages; spec §5's single-concurrent-action assumption means
// the caller must still serialize calls against the same page.
type Engine struct {
	driver browserdriver.Driver
	llm    llmiface.Client
	opts   engineOptions
	log    *logrus.Entry

	mu    sync.Mutex
	pages map[any]*pageState
}

// New builds an Engine bound to driver, the engine's only required
// dependency (spec §6 "Browser boundary"). An llmiface.Client may be
// attached via WithLLM; FindElement also accepts a per-call override so
// callers that talk to more than one model don't need a separate Engine.
func New(driver browserdriver.Driver, opts ...EngineOption) *Engine {
	o := defaultEngineOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return &Engine{
		driver: driver,
		llm:    o.llm,
		opts:   o,
		log:    o.log.WithField("component", "engine"),
		pages:  make(map[any]*pageState),
	}
}

// pageStateFor returns the page's existing bundle or lazily builds one: it
// asks the driver for the page's CDP session, registers it under every
// transport.Kind the engine uses, wires the Frame Graph's event handlers
// onto it, runs the idempotent Frame Graph init sequence, and constructs the
// capture/dispatch wiring against that pool and graph (spec §9 "Global
// state": "the only process-wide state is the lazy per-page client cache").
func (e *Engine) pageStateFor(ctx context.Context, pg any) (*pageState, error) {
	e.mu.Lock()
	ps, ok := e.pages[pg]
	e.mu.Unlock()
	if ok {
		return ps, nil
	}

	if e.driver == nil {
		return nil, &FatalError{Cause: ErrNoDriver}
	}

	session, err := e.driver.Session(ctx, pg)
	if err != nil {
		return nil, &FatalError{Cause: fmt.Errorf("frameagent: obtain session: %w", err)}
	}

	logf := func(f string, v ...interface{}) { e.log.Debugf(f, v...) }
	errf := func(f string, v ...interface{}) { e.log.Errorf(f, v...) }

	var pool *transport.Pool
	if provider, ok := e.driver.(browserdriver.PoolProvider); ok {
		if p, err := provider.Pool(ctx, pg); err == nil && p != nil {
			pool = p
		}
	}
	if pool == nil {
		pool = transport.NewPool(nil, transport.WithPoolLogf(logf), transport.WithPoolErrf(errf))
	}
	pool.Put(transport.KindDOM, session)
	pool.Put(transport.KindScreenshot, session)
	pool.Put(transport.KindLifecycle, session)

	graph := framegraph.New(e.opts.denylist)
	session.OnEvent(graph.HandlePageEvent)
	session.OnEvent(func(ev interface{}) { graph.HandleRuntimeEvent(session.SessionID, ev) })

	if err := graph.EnsureInitialized(ctx, session); err != nil {
		return nil, &FatalError{Cause: fmt.Errorf("frameagent: frame graph init: %w", err)}
	}

	if frames, err := e.driver.Frames(ctx, pg); err != nil {
		e.log.WithError(err).Debug("frameagent: driver frame enumeration unavailable")
	} else {
		e.log.WithField("count", len(frames)).Debug("frameagent: driver-enumerated frames at page attach")
	}

	handles := &capture.Handles{Pool: pool, Graph: graph, Logf: logf, Errf: errf}
	dispatcher := dispatch.New(pool, graph, nil, &e.opts.timeouts, e.log.WithField("component", "dispatch"))
	if err := dispatcher.EnableNetworkTracking(ctx); err != nil {
		e.log.WithError(err).Debug("frameagent: network tracking unavailable; settle waits will report quiet immediately")
	}

	ps = &pageState{pool: pool, graph: graph, handles: handles, dispatcher: dispatcher}

	// Navigation and frame lifecycle events invalidate whatever snapshot is
	// cached for the page (spec §5 "Shared resources": framenavigated /
	// framedetached / load).
	session.OnEvent(func(ev interface{}) {
		switch ev.(type) {
		case *page.EventFrameNavigated, *page.EventFrameAttached, *page.EventFrameDetached, *page.EventLoadEventFired:
			ps.mu.Lock()
			if ps.cached != nil {
				ps.cached.MarkDirty()
			}
			ps.mu.Unlock()
		}
	})

	e.mu.Lock()
	if existing, ok := e.pages[pg]; ok {
		ps = existing // lost the race against a concurrent first call
	} else {
		e.pages[pg] = ps
	}
	e.mu.Unlock()

	return ps, nil
}

// Observe runs one capture cycle against page and returns the resulting
// Snapshot (spec §6 "observe"). With WithUseCache(true), a still-fresh,
// non-dirty cached Snapshot is returned instead of re-capturing.
func (e *Engine) Observe(ctx context.Context, page any, opts ...ObserveOption) (*snapshot.Snapshot, error) {
	o := observeOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	ps, err := e.pageStateFor(ctx, page)
	if err != nil {
		return nil, err
	}

	ps.mu.Lock()
	if o.useCache && ps.cached != nil && !ps.cached.Dirty() && ps.cached.Age() < cacheMaxAge {
		snap := ps.cached
		ps.mu.Unlock()
		return snap, nil
	}
	ps.mu.Unlock()

	snap, err := capture.Run(ctx, ps.handles, e.log.WithField("component", "capture"), o.maxElements)
	if err != nil {
		return nil, fmt.Errorf("frameagent: observe: %w", err)
	}

	if o.visualMode {
		if err := e.collectVisuals(ctx, ps, snap); err != nil {
			e.log.WithError(err).Warn("frameagent: visual mode degraded")
			snap.AddWarning(fmt.Sprintf("visual mode incomplete: %v", err))
		}
	}

	if o.debugDir != "" {
		writeDebugArtifacts(o.debugDir, snap, e.log)
	}

	ps.mu.Lock()
	ps.cached = snap
	ps.mu.Unlock()

	return snap, nil
}

// FindElement asks llm (or, if nil, the Engine's configured client) to pick
// a target out of snap's formatted tree (spec §6 "findElement"). It returns
// ErrNoStructuredOutput wrapped in a FatalError if the model never produces
// a conforming result.
func (e *Engine) FindElement(ctx context.Context, instruction string, snap *snapshot.Snapshot, llm llmiface.Client) (*llmiface.ElementResult, error) {
	if llm == nil {
		llm = e.llm
	}
	if llm == nil {
		return nil, &FatalError{Cause: ErrNoLLM}
	}

	messages := []llmiface.Message{
		{Role: "system", Content: "You select one element from a page's accessibility tree to act on."},
		{Role: "user", Content: snap.DOMState},
		{Role: "user", Content: instruction},
	}

	schema := elementResultSchema()
	_, parsed, err := llm.InvokeStructured(ctx, schema, messages)
	if err != nil {
		return nil, &FatalError{Cause: fmt.Errorf("frameagent: find element: %w", err)}
	}
	result, ok := parsed.(llmiface.ElementResult)
	if !ok {
		if p, ok2 := parsed.(*llmiface.ElementResult); ok2 && p != nil {
			result = *p
		} else {
			return nil, &FatalError{Cause: ErrNoStructuredOutput}
		}
	}

	if !snapshot.Valid(snapshot.EncodedId(result.EncodedID)) {
		return nil, &StructuralError{Method: "findElement", ID: result.EncodedID, Reason: "llm returned a malformed encodedId"}
	}
	if !dispatch.IsValid(dispatch.Method(result.Method)) {
		return nil, &StructuralError{Method: result.Method, ID: result.EncodedID, Reason: "llm returned an unregistered action method"}
	}
	if _, ok := snap.Elements[snapshot.EncodedId(result.EncodedID)]; !ok {
		return nil, ErrElementNotFound
	}

	return &result, nil
}

// ExecuteAction dispatches method against id in snap (spec §6
// "executeAction"). The returned dispatch.Result is always populated;
// err is non-nil only for structural or fatal failures, never for an
// action-local failure (those come back as Result{OK:false}).
func (e *Engine) ExecuteAction(ctx context.Context, page any, snap *snapshot.Snapshot, id snapshot.EncodedId, method dispatch.Method, args []string) (dispatch.Result, error) {
	if !snapshot.Valid(id) {
		return dispatch.Result{}, &StructuralError{Method: string(method), ID: string(id), Reason: "encodedId does not match ^\\d+-\\d+$"}
	}
	if !dispatch.IsValid(method) {
		return dispatch.Result{}, &StructuralError{Method: string(method), ID: string(id), Reason: "not a registered action method"}
	}

	ps, err := e.pageStateFor(ctx, page)
	if err != nil {
		return dispatch.Result{}, err
	}

	result, err := ps.dispatcher.Execute(ctx, snap, id, method, args)
	if err != nil {
		return dispatch.Result{}, &FatalError{Cause: err}
	}
	return result, nil
}

// Invalidate marks the page's cached Snapshot dirty without tearing down
// its sessions, used when the integrator observes a navigation/load event
// the engine didn't originate (spec §5 "Shared resources").
func (e *Engine) Invalidate(page any) {
	e.mu.Lock()
	ps, ok := e.pages[page]
	e.mu.Unlock()
	if !ok {
		return
	}
	ps.mu.Lock()
	if ps.cached != nil {
		ps.cached.MarkDirty()
	}
	ps.mu.Unlock()
}

// Close disposes of the engine's per-page state: the OOPIF child sessions
// it attached are detached in parallel (failures logged, not propagated,
// spec §4.1), and the page's cache and frame-graph entries are dropped
// (spec §9 "close(page) deletes both entries"). The driver's own main
// session is left alone; its lifecycle belongs to the integrator. Idempotent.
func (e *Engine) Close(page any) error {
	e.mu.Lock()
	ps, ok := e.pages[page]
	delete(e.pages, page)
	e.mu.Unlock()
	if !ok {
		return nil
	}

	main, haveMain := ps.pool.Get(transport.KindLifecycle)
	children := ps.pool.Children()
	if !haveMain || len(children) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for _, child := range children {
		child := child
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := main.Execute(ctx, target.CommandDetachFromTarget,
				&target.DetachFromTargetParams{SessionID: child.SessionID}, nil); err != nil {
				e.log.WithError(err).Debugf("frameagent: detach child session %s", child.SessionID)
			}
			ps.pool.RemoveChild(child.SessionID)
		}()
	}
	wg.Wait()
	return nil
}
