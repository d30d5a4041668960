package transport

import (
	"encoding/json"
	"testing"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/stretchr/testify/require"
)

func TestPoolGetPutRoundTrip(t *testing.T) {
	p := NewPool(nil)
	s := NewSession(newFakeConn(), target.SessionID("dom-sess"), target.ID("t1"), nil, nil)
	p.Put(KindDOM, s)

	got, ok := p.Get(KindDOM)
	require.True(t, ok)
	require.Same(t, s, got)

	_, ok = p.Get(KindScreenshot)
	require.False(t, ok)
}

func TestPoolRouteDispatchesToMatchingChildSession(t *testing.T) {
	p := NewPool(nil)

	var mainGot, childGot []string
	main := NewSession(newFakeConn(), target.SessionID("main"), target.ID("t-main"), nil, nil)
	main.OnEvent(func(ev interface{}) {
		if fa, ok := ev.(*page.EventFrameAttached); ok {
			mainGot = append(mainGot, string(fa.FrameID))
		}
	})
	p.Put(KindLifecycle, main)

	child := NewSession(newFakeConn(), target.SessionID("child-1"), target.ID("t-child"), nil, nil)
	child.OnEvent(func(ev interface{}) {
		if fa, ok := ev.(*page.EventFrameAttached); ok {
			childGot = append(childGot, string(fa.FrameID))
		}
	})
	p.PutChild(child)

	childParams, err := json.Marshal(&page.EventFrameAttached{FrameID: cdp.FrameID("oopif-1"), ParentFrameID: cdp.FrameID("main")})
	require.NoError(t, err)
	mainParams, err := json.Marshal(&page.EventFrameAttached{FrameID: cdp.FrameID("sub-1"), ParentFrameID: cdp.FrameID("main")})
	require.NoError(t, err)

	p.route(&cdproto.Message{SessionID: target.SessionID("child-1"), Method: cdproto.MethodType("Page.frameAttached"), Params: childParams})
	p.route(&cdproto.Message{SessionID: "", Method: cdproto.MethodType("Page.frameAttached"), Params: mainParams})

	require.Equal(t, []string{"oopif-1"}, childGot)
	require.Equal(t, []string{"sub-1"}, mainGot)
}

func TestPoolChildByID(t *testing.T) {
	p := NewPool(nil)
	child := NewSession(newFakeConn(), target.SessionID("child-2"), target.ID("t-child-2"), nil, nil)
	p.PutChild(child)

	got, ok := p.ChildByID(target.SessionID("child-2"))
	require.True(t, ok)
	require.Same(t, child, got)

	_, ok = p.ChildByID(target.SessionID("missing"))
	require.False(t, ok)
}
