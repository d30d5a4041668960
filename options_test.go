package frameagent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultEngineOptionsCarrySpecTimeouts(t *testing.T) {
	o := defaultEngineOptions()
	require.Equal(t, 3500*time.Millisecond, o.timeouts.Click)
	require.Equal(t, 5000*time.Millisecond, o.timeouts.Settle)
}

func TestEngineOptionsApplyOverrides(t *testing.T) {
	o := defaultEngineOptions()
	WithClickTimeout(9 * time.Second)(&o)
	require.Equal(t, 9*time.Second, o.timeouts.Click)
}

func TestObserveOptionsDefaultToNoCapAndNoVisual(t *testing.T) {
	var o observeOptions
	require.False(t, o.visualMode)
	require.Equal(t, 0, o.maxElements)
}

func TestWithMaxElementsSetsCap(t *testing.T) {
	var o observeOptions
	WithMaxElements(50)(&o)
	require.Equal(t, 50, o.maxElements)
}
