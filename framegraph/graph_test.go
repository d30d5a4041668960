package framegraph

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/stretchr/testify/require"
)

func TestEnsureInitializedAssignsRootIndexZero(t *testing.T) {
	g := New(nil)
	g.HandlePageEvent(&page.EventFrameNavigated{Frame: &cdp.Frame{ID: cdp.FrameID("root")}})

	fr, ok := g.Lookup(cdp.FrameID("root"))
	require.True(t, ok)
	require.Equal(t, 0, fr.FrameIndex)
}

func TestFrameAttachedAssignsIncreasingIndices(t *testing.T) {
	g := New(nil)
	g.HandlePageEvent(&page.EventFrameNavigated{Frame: &cdp.Frame{ID: cdp.FrameID("root")}})
	g.HandlePageEvent(&page.EventFrameAttached{FrameID: cdp.FrameID("child-1"), ParentFrameID: cdp.FrameID("root")})
	g.HandlePageEvent(&page.EventFrameAttached{FrameID: cdp.FrameID("child-2"), ParentFrameID: cdp.FrameID("root")})

	c1, ok := g.Lookup(cdp.FrameID("child-1"))
	require.True(t, ok)
	c2, ok := g.Lookup(cdp.FrameID("child-2"))
	require.True(t, ok)

	require.NotEqual(t, c1.FrameIndex, c2.FrameIndex)
	require.Equal(t, cdp.FrameID("root"), c1.ParentFrameID)
	require.Equal(t, cdp.FrameID("root"), c2.ParentFrameID)
}

// TestFrameDetachedRemovesRecordAndDescendants covers spec §4.2: a detach
// removes the record and its whole subtree, and the freed indices no longer
// resolve.
func TestFrameDetachedRemovesRecordAndDescendants(t *testing.T) {
	g := New(nil)
	g.HandlePageEvent(&page.EventFrameNavigated{Frame: &cdp.Frame{ID: cdp.FrameID("root")}})
	g.HandlePageEvent(&page.EventFrameAttached{FrameID: cdp.FrameID("child-1"), ParentFrameID: cdp.FrameID("root")})
	g.HandlePageEvent(&page.EventFrameAttached{FrameID: cdp.FrameID("grandchild"), ParentFrameID: cdp.FrameID("child-1")})

	child, ok := g.Lookup(cdp.FrameID("child-1"))
	require.True(t, ok)

	g.HandlePageEvent(&page.EventFrameDetached{FrameID: cdp.FrameID("child-1")})

	_, ok = g.Lookup(cdp.FrameID("child-1"))
	require.False(t, ok)
	_, ok = g.Lookup(cdp.FrameID("grandchild"))
	require.False(t, ok, "descendants must be removed with their parent")
	_, ok = g.ByIndex(child.FrameIndex)
	require.False(t, ok)

	_, ok = g.Lookup(cdp.FrameID("root"))
	require.True(t, ok, "the root frame is unaffected")
}

func TestFrameNavigatedRecordsURLAndName(t *testing.T) {
	g := New(nil)
	g.HandlePageEvent(&page.EventFrameNavigated{Frame: &cdp.Frame{
		ID: cdp.FrameID("root"), URL: "https://app.example/", Name: "main", LoaderID: cdp.LoaderID("l-1"),
	}})

	fr, ok := g.Lookup(cdp.FrameID("root"))
	require.True(t, ok)
	require.Equal(t, "https://app.example/", fr.URL)
	require.Equal(t, "main", fr.Name)
	require.Equal(t, cdp.LoaderID("l-1"), fr.LoaderID)
}

func TestExecutionContextCreatedAssociatesFrameFromAuxData(t *testing.T) {
	g := New(nil)
	g.HandlePageEvent(&page.EventFrameAttached{FrameID: cdp.FrameID("child-1"), ParentFrameID: cdp.FrameID("root")})

	aux, err := json.Marshal(map[string]string{"frameId": "child-1"})
	require.NoError(t, err)

	g.HandleRuntimeEvent(target.SessionID("sess-1"), &runtime.EventExecutionContextCreated{
		Context: &runtime.ExecutionContextDescription{ID: runtime.ExecutionContextID(7), AuxData: aux},
	})

	fr, ok := g.Lookup(cdp.FrameID("child-1"))
	require.True(t, ok)
	require.Equal(t, runtime.ExecutionContextID(7), fr.ExecutionContextID)
	require.Equal(t, target.SessionID("sess-1"), fr.SessionID)
}

func TestExecutionContextsClearedOnlyAffectsOwningSession(t *testing.T) {
	g := New(nil)
	g.HandlePageEvent(&page.EventFrameAttached{FrameID: cdp.FrameID("a"), ParentFrameID: cdp.FrameID("root")})
	g.HandlePageEvent(&page.EventFrameAttached{FrameID: cdp.FrameID("b"), ParentFrameID: cdp.FrameID("root")})

	auxA, _ := json.Marshal(map[string]string{"frameId": "a"})
	auxB, _ := json.Marshal(map[string]string{"frameId": "b"})
	g.HandleRuntimeEvent(target.SessionID("s1"), &runtime.EventExecutionContextCreated{Context: &runtime.ExecutionContextDescription{ID: 1, AuxData: auxA}})
	g.HandleRuntimeEvent(target.SessionID("s2"), &runtime.EventExecutionContextCreated{Context: &runtime.ExecutionContextDescription{ID: 2, AuxData: auxB}})

	g.HandleRuntimeEvent(target.SessionID("s1"), &runtime.EventExecutionContextsCleared{})

	a, _ := g.Lookup(cdp.FrameID("a"))
	b, _ := g.Lookup(cdp.FrameID("b"))
	require.Equal(t, runtime.ExecutionContextID(0), a.ExecutionContextID)
	require.Equal(t, runtime.ExecutionContextID(2), b.ExecutionContextID)
}

func TestWaitForExecutionContextReturnsImmediatelyIfAlreadySet(t *testing.T) {
	g := New(nil)
	aux, _ := json.Marshal(map[string]string{"frameId": "f1"})
	g.HandleRuntimeEvent(target.SessionID("s1"), &runtime.EventExecutionContextCreated{Context: &runtime.ExecutionContextDescription{ID: 5, AuxData: aux}})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, g.WaitForExecutionContext(ctx, cdp.FrameID("f1")))
}

func TestWaitForExecutionContextWakesOnCreation(t *testing.T) {
	g := New(nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- g.WaitForExecutionContext(ctx, cdp.FrameID("f2"))
	}()

	time.Sleep(10 * time.Millisecond)
	aux, _ := json.Marshal(map[string]string{"frameId": "f2"})
	g.HandleRuntimeEvent(target.SessionID("s1"), &runtime.EventExecutionContextCreated{Context: &runtime.ExecutionContextDescription{ID: 9, AuxData: aux}})

	require.NoError(t, <-errCh)
}

func TestWaitForExecutionContextTimesOut(t *testing.T) {
	g := New(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := g.WaitForExecutionContext(ctx, cdp.FrameID("never"))
	require.Error(t, err)
}

func TestShouldSkipUsesDenylist(t *testing.T) {
	g := New(func(url string) bool { return url == "https://ads.example.com/frame" })
	require.True(t, g.ShouldSkip("https://ads.example.com/frame"))
	require.False(t, g.ShouldSkip("https://app.example.com/widget"))
}

// TestAssignFrameIndexOverwritesEventDrivenIndex covers spec §3's invariant
// that a DFS-order frameIndex assigned by DOM capture is authoritative over
// whatever index a frame got from event-driven discovery order.
func TestAssignFrameIndexOverwritesEventDrivenIndex(t *testing.T) {
	g := New(nil)
	g.HandlePageEvent(&page.EventFrameNavigated{Frame: &cdp.Frame{ID: cdp.FrameID("root")}})
	g.HandlePageEvent(&page.EventFrameAttached{FrameID: cdp.FrameID("child-1"), ParentFrameID: cdp.FrameID("root")})

	fr, ok := g.Lookup(cdp.FrameID("child-1"))
	require.True(t, ok)
	preliminary := fr.FrameIndex

	require.NoError(t, g.AssignFrameIndex(cdp.FrameID("child-1"), 5))

	fr, ok = g.Lookup(cdp.FrameID("child-1"))
	require.True(t, ok)
	require.Equal(t, 5, fr.FrameIndex)
	require.NotEqual(t, preliminary, fr.FrameIndex)

	byIdx, ok := g.ByIndex(5)
	require.True(t, ok)
	require.Equal(t, cdp.FrameID("child-1"), byIdx.FrameID)

	_, stillAtOld := g.ByIndex(preliminary)
	require.False(t, stillAtOld, "the stale index must not still resolve to this frame")
}

func TestAssignFrameIndexUnknownFrameErrors(t *testing.T) {
	g := New(nil)
	err := g.AssignFrameIndex(cdp.FrameID("never-seen"), 3)
	require.Error(t, err)
}

// TestFindByOwnerMatchesOwningBackendNodeID covers capture Pass 3's use of
// FindByOwner as the bridge between a DOM-walked IframeInfo and the frame
// graph record it corresponds to (spec §9).
func TestFindByOwnerMatchesOwningBackendNodeID(t *testing.T) {
	g := New(nil)
	g.HandlePageEvent(&page.EventFrameAttached{FrameID: cdp.FrameID("child-1"), ParentFrameID: cdp.FrameID("root")})
	require.NoError(t, g.SetOwner(cdp.FrameID("child-1"), cdp.BackendNodeID(200)))

	fr, ok := g.FindByOwner(cdp.BackendNodeID(200))
	require.True(t, ok)
	require.Equal(t, cdp.FrameID("child-1"), fr.FrameID)

	_, ok = g.FindByOwner(cdp.BackendNodeID(999))
	require.False(t, ok)
}

func TestFindByOwnerRejectsZeroBackendNodeID(t *testing.T) {
	g := New(nil)
	g.HandlePageEvent(&page.EventFrameAttached{FrameID: cdp.FrameID("child-1"), ParentFrameID: cdp.FrameID("root")})

	_, ok := g.FindByOwner(cdp.BackendNodeID(0))
	require.False(t, ok, "an unset owner (zero value) must never spuriously match")
}
