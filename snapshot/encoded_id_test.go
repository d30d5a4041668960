package snapshot

import (
	"testing"

	"github.com/chromedp/cdproto/cdp"
	"github.com/stretchr/testify/require"
)

func TestEncodeParseRoundTrip(t *testing.T) {
	cases := []struct {
		frameIndex int
		backend    cdp.BackendNodeID
	}{
		{0, 42},
		{3, 17},
		{12, 0},
	}
	for _, c := range cases {
		id := Encode(c.frameIndex, c.backend)
		fi, bn, err := Parse(id)
		require.NoError(t, err)
		require.Equal(t, c.frameIndex, fi)
		require.Equal(t, c.backend, bn)
		require.Equal(t, id, Encode(fi, bn))
	}
}

func TestParseRejectsBadFormat(t *testing.T) {
	for _, bad := range []EncodedId{"", "1", "1-", "-1", "01-2", "1-02", "a-1", "1-1-1", "1_1"} {
		_, _, err := Parse(bad)
		require.ErrorIs(t, err, ErrBadEncodedId, "expected %q to be rejected", bad)
	}
}

func TestValid(t *testing.T) {
	require.True(t, Valid("0-5"))
	require.False(t, Valid("0-05"))
}
