package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/frameagent/frameagent/framegraph"
	"github.com/frameagent/frameagent/snapshot"
	"github.com/frameagent/frameagent/transport"
)

func TestResolveRejectsBadEncodedId(t *testing.T) {
	deps := &Deps{Pool: transport.NewPool(nil), Graph: framegraph.New(nil)}
	snap := snapshot.New()

	_, err := Resolve(context.Background(), deps, snap, "not-an-id", nil)
	require.Error(t, err)

	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, KindNotFound, rerr.Kind)
}

func TestResolveRejectsUnknownFrameIndex(t *testing.T) {
	deps := &Deps{Pool: transport.NewPool(nil), Graph: framegraph.New(nil)}
	snap := snapshot.New()

	_, err := Resolve(context.Background(), deps, snap, "3-42", nil)
	require.Error(t, err)

	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	require.Equal(t, KindNotFound, rerr.Kind)
}

func TestResolveUsesCachedResolutionWhenBackendNodeUnchanged(t *testing.T) {
	deps := &Deps{Pool: transport.NewPool(nil), Graph: framegraph.New(nil)}
	snap := snapshot.New()
	snap.BackendNodeMap["0-7"] = 7
	snap.CacheResolved("0-7", snapshot.ResolvedElement{BackendNodeID: 7, ObjectID: "obj-7"})

	// No DOM session attached at all; if Resolve tried to issue a CDP call
	// it would fail on the missing-session path instead of returning the
	// cached value, so a successful return here proves the cache hit short-circuited it.
	r, err := Resolve(context.Background(), deps, snap, "0-7", nil)
	require.NoError(t, err)
	require.Equal(t, snapshot.ResolvedElement{BackendNodeID: 7, ObjectID: "obj-7"}, r)
}

func TestIsNoNodeErrorRecognizesCDPMessageClass(t *testing.T) {
	require.True(t, isNoNodeError(errors.New("Could not find node with given id")))
	require.True(t, isNoNodeError(errors.New("No node with given id found")))
	require.False(t, isNoNodeError(errors.New("target closed")))
}
