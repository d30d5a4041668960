package frameagent

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/frameagent/frameagent/dispatch"
	"github.com/frameagent/frameagent/llmiface"
)

// engineOptions holds the construction-time configuration an Engine carries
// for the lifetime of every page it serves, set via EngineOption (spec
// SPEC_FULL.md Ambient Stack "Configuration": the teacher's functional-option
// shape generalized to the engine's own entry points).
type engineOptions struct {
	log      *logrus.Entry
	denylist func(url string) bool
	timeouts dispatch.Timeouts
	llm      llmiface.Client
}

func defaultEngineOptions() engineOptions {
	return engineOptions{
		log:      logrus.NewEntry(logrus.StandardLogger()),
		denylist: func(string) bool { return false },
		timeouts: dispatch.DefaultTimeouts(),
	}
}

// EngineOption configures an Engine at construction time.
type EngineOption func(*engineOptions)

// WithLog installs the engine's base logger; every component it wires gets
// a derived *logrus.Entry with a "component" field.
func WithLog(log *logrus.Entry) EngineOption {
	return func(o *engineOptions) {
		if log != nil {
			o.log = log
		}
	}
}

// WithDenylist installs the predicate deciding which OOPIF candidate URLs
// to skip during Pass 2 discovery (spec §4.2's ad/tracking frame skip).
func WithDenylist(f func(url string) bool) EngineOption {
	return func(o *engineOptions) {
		if f != nil {
			o.denylist = f
		}
	}
}

// WithLLM attaches the default llmiface.Client FindElement uses when called
// without a per-call override.
func WithLLM(llm llmiface.Client) EngineOption {
	return func(o *engineOptions) { o.llm = llm }
}

// WithClickTimeout overrides the 3500ms click budget from spec §5.
func WithClickTimeout(d time.Duration) EngineOption {
	return func(o *engineOptions) { o.timeouts.Click = d }
}

// WithSettleTimeout overrides the 5000ms DOM-settle budget from spec §5.
func WithSettleTimeout(d time.Duration) EngineOption {
	return func(o *engineOptions) { o.timeouts.Settle = d }
}

// observeOptions is the per-call configuration for Observe (spec §6:
// "observe(page, options) → Snapshot where options include visualMode,
// useCache, streaming, debugDir").
type observeOptions struct {
	visualMode  bool
	useCache    bool
	streaming   bool
	debugDir    string
	maxElements int
}

// ObserveOption configures one Observe call.
type ObserveOption func(*observeOptions)

// WithVisualMode enables bounding-box collection and screenshot-overlay
// composition (spec §4.4), otherwise skipped entirely.
func WithVisualMode(v bool) ObserveOption {
	return func(o *observeOptions) { o.visualMode = v }
}

// WithUseCache allows Observe to return the page's cached Snapshot when it
// is neither dirty nor older than 1s (spec §5 "Shared resources").
func WithUseCache(v bool) ObserveOption {
	return func(o *observeOptions) { o.useCache = v }
}

// WithStreaming marks the call as part of a streaming integration. The flag
// is kept in the call's options only; neither capture nor the debug
// artifacts read it.
func WithStreaming(v bool) ObserveOption {
	return func(o *observeOptions) { o.streaming = v }
}

// WithDebugDir writes elems.txt, screenshot.png (if visual), frames.json,
// perf.json, and dom-capture-metrics.json to dir after the capture
// completes (spec §6 "Persisted state / debug layout").
func WithDebugDir(dir string) ObserveOption {
	return func(o *observeOptions) { o.debugDir = dir }
}

// WithMaxElements caps the number of elements Pass 7 emits, ranking by a
// has-role/has-text/attribute-richness heuristic rather than truncating
// arbitrarily (SPEC_FULL.md supplemented feature). 0 (the default) means no
// cap, matching spec.md's unmodified behavior.
func WithMaxElements(n int) ObserveOption {
	return func(o *observeOptions) { o.maxElements = n }
}
