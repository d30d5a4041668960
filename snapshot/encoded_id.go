// Package snapshot holds the data model shared by every component of the
// frame-aware observation engine: the EncodedId address scheme, the
// per-frame IframeInfo record, and the Snapshot produced by a capture cycle.
package snapshot

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/chromedp/cdproto/cdp"
)

// EncodedId is the engine's stable element address, "<frameIndex>-<backendNodeId>".
type EncodedId string

var encodedIDRE = regexp.MustCompile(`^[0-9]+-[0-9]+$`)

// ErrBadEncodedId is returned when an EncodedId does not match the wire format.
var ErrBadEncodedId = fmt.Errorf("encoded id does not match ^\\d+-\\d+$")

// Encode formats a frameIndex/backendNodeId pair as an EncodedId.
func Encode(frameIndex int, backendNodeID cdp.BackendNodeID) EncodedId {
	return EncodedId(strconv.Itoa(frameIndex) + "-" + strconv.FormatInt(int64(backendNodeID), 10))
}

// Parse splits an EncodedId into its frameIndex and backendNodeId components.
// It rejects leading zeros and negative components, per the wire format in spec §6.
func Parse(id EncodedId) (frameIndex int, backendNodeID cdp.BackendNodeID, err error) {
	s := string(id)
	if !encodedIDRE.MatchString(s) {
		return 0, 0, ErrBadEncodedId
	}
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return 0, 0, ErrBadEncodedId
	}
	if (len(parts[0]) > 1 && parts[0][0] == '0') || (len(parts[1]) > 1 && parts[1][0] == '0') {
		return 0, 0, ErrBadEncodedId
	}
	fi, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, ErrBadEncodedId
	}
	bn, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, 0, ErrBadEncodedId
	}
	return fi, cdp.BackendNodeID(bn), nil
}

// Valid reports whether id matches the wire format.
func Valid(id EncodedId) bool {
	_, _, err := Parse(id)
	return err == nil
}
