// Package frameagent is the public engine surface of the frame-aware page
// observation and action dispatch engine (spec §6 "External interfaces"):
// Observe captures a page's accessibility state across every frame and
// OOPIF; FindElement asks an LLM to pick a target out of that state;
// ExecuteAction dispatches one of the twelve closed-set methods against it;
// Invalidate and Close manage the per-page cache and session bookkeeping.
//
// It is the direct analogue of the teacher's root chromedp package
// (chromedp.go, context.go): one entry point wiring transport, framegraph,
// capture, layout, resolver, and dispatch together behind a small surface,
// with process/session lifecycle left to a browserdriver.Driver the
// integrator supplies.
package frameagent
