package dispatch

import "time"

// Timeouts bundles the dispatcher's click, settle, and settle-poll budgets.
// The engine's EngineOption layer can override these. A nil *Timeouts passed
// to New or NewSettle falls back to defaultTimeouts; a non-nil one is used
// field for field as given, so start from DefaultTimeouts to change one
// budget. The 750ms execution-context wait is not part of it: it is a fixed
// constant in the resolver.
type Timeouts struct {
	Click      time.Duration
	Settle     time.Duration
	SettlePoll time.Duration
}

func defaultTimeouts() Timeouts {
	return Timeouts{
		Click:      clickTimeout,
		Settle:     settleTimeout,
		SettlePoll: settlePollInterval,
	}
}

// DefaultTimeouts exposes spec §5's method-specific budgets so callers
// building a Timeouts to override only one field (e.g. the engine's
// EngineOption layer) can start from the spec defaults rather than zero
// values.
func DefaultTimeouts() Timeouts { return defaultTimeouts() }
