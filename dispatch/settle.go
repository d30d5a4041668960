package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"

	"github.com/frameagent/frameagent/transport"
)

// settlePollInterval and settleTimeout are the poll cadence and hard cap
// spec §4.6b specifies for the DOM-settle wait.
const (
	settlePollInterval = 100 * time.Millisecond
	settleTimeout      = 5000 * time.Millisecond
)

// SettleReason reports why Wait returned, for metrics (spec §4.6b:
// "reason timeout vs quiet reported in metrics").
type SettleReason string

const (
	ReasonQuiet   SettleReason = "quiet"
	ReasonTimeout SettleReason = "timeout"
)

// Settle tracks in-flight network requests on the lifecycle-pooled session
// and reports when the page has gone quiet (spec §4.6b), grounded on the
// teacher's handler.go pageWaitGroup/WaitFrame polling style.
type Settle struct {
	mu       sync.Mutex
	inFlight map[network.RequestID]struct{}

	lifecycle *transport.Session

	pollInterval time.Duration
	timeout      time.Duration
}

// NewSettle builds a Settle and registers its Network event handlers on the
// page's lifecycle session. timeouts, if nil, uses the spec §5 defaults.
// The caller still has to EnableNetwork once before the first Wait; without
// it the browser never emits the request events the tracker feeds on.
func NewSettle(pool *transport.Pool, timeouts *Timeouts) *Settle {
	t := defaultTimeouts()
	if timeouts != nil {
		t = *timeouts
	}
	s := &Settle{
		inFlight:     make(map[network.RequestID]struct{}),
		pollInterval: t.SettlePoll,
		timeout:      t.Settle,
	}
	if lifecycle, ok := pool.Get(transport.KindLifecycle); ok {
		s.lifecycle = lifecycle
		lifecycle.OnEvent(s.handleEvent)
	}
	return s
}

// EnableNetwork turns on Network events on the lifecycle session (spec
// §4.6b: "enable Network events on the lifecycle-pooled session").
func (s *Settle) EnableNetwork(ctx context.Context) error {
	if s.lifecycle == nil {
		return nil
	}
	return network.Enable().Do(cdp.WithExecutor(ctx, s.lifecycle))
}

func (s *Settle) handleEvent(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		s.mu.Lock()
		s.inFlight[e.RequestID] = struct{}{}
		s.mu.Unlock()
	case *network.EventLoadingFinished:
		s.mu.Lock()
		delete(s.inFlight, e.RequestID)
		s.mu.Unlock()
	case *network.EventLoadingFailed:
		s.mu.Lock()
		delete(s.inFlight, e.RequestID)
		s.mu.Unlock()
	}
}

func (s *Settle) empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight) == 0
}

// Wait blocks until no request has been in flight for one sample, or until
// the settle timeout elapses (spec §4.6b: "poll every 100ms, return when
// the in-flight set has been empty for one sample or when 5000ms elapses"),
// reporting which of the two ended the wait.
func (s *Settle) Wait(ctx context.Context) (SettleReason, error) {
	deadline := time.Now().Add(s.timeout)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	if s.empty() {
		return ReasonQuiet, nil
	}
	for {
		select {
		case <-ctx.Done():
			return ReasonTimeout, ctx.Err()
		case <-ticker.C:
			if s.empty() {
				return ReasonQuiet, nil
			}
			if time.Now().After(deadline) {
				return ReasonTimeout, nil
			}
		}
	}
}
