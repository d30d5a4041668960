package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"
)

func TestIsValidAcceptsOnlyTheClosedSet(t *testing.T) {
	require.True(t, IsValid(MethodClick))
	require.True(t, IsValid(MethodScrollToPercentage))
	require.False(t, IsValid(Method("rightClick")))
	require.False(t, IsValid(Method("")))
}

func TestExecuteRejectsUnregisteredMethod(t *testing.T) {
	d := &Dispatcher{}
	_, err := d.Execute(context.Background(), nil, "0-1", Method("doubleClick"), nil)
	require.Error(t, err)
}

func TestSettleWaitReturnsImmediatelyWhenNeverInFlight(t *testing.T) {
	s := &Settle{inFlight: make(map[network.RequestID]struct{}), pollInterval: 10 * time.Millisecond, timeout: time.Second}
	reason, err := s.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, ReasonQuiet, reason)
}

func TestSettleWaitReturnsOnceInFlightDrains(t *testing.T) {
	s := &Settle{inFlight: make(map[network.RequestID]struct{}), pollInterval: 10 * time.Millisecond, timeout: time.Second}
	s.handleEvent(&network.EventRequestWillBeSent{RequestID: "r1"})
	require.False(t, s.empty())

	go func() {
		time.Sleep(30 * time.Millisecond)
		s.handleEvent(&network.EventLoadingFinished{RequestID: "r1"})
	}()

	start := time.Now()
	reason, err := s.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, ReasonQuiet, reason)
	require.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestSettleWaitRespectsTimeoutWhenNeverQuiet(t *testing.T) {
	s := &Settle{inFlight: make(map[network.RequestID]struct{}), pollInterval: 5 * time.Millisecond, timeout: 30 * time.Millisecond}
	s.handleEvent(&network.EventRequestWillBeSent{RequestID: "stuck"})

	start := time.Now()
	reason, err := s.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, ReasonTimeout, reason)
	require.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}
