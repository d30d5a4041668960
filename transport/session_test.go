package transport

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/chromedp/cdproto"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/stretchr/testify/require"
)

// fakeConn captures every message written to it and lets the test script a
// reply, standing in for the real websocket Conn so Session's id-correlation
// logic can be exercised without a browser.
type fakeConn struct {
	written chan *cdproto.Message
}

func newFakeConn() *fakeConn {
	return &fakeConn{written: make(chan *cdproto.Message, 8)}
}

func (f *fakeConn) Write(msg *cdproto.Message) error {
	f.written <- msg
	return nil
}

func TestSessionExecuteMatchesResponseByID(t *testing.T) {
	conn := newFakeConn()
	s := NewSession(conn, target.SessionID("sess-1"), target.ID("target-1"), nil, nil)

	done := make(chan error, 1)
	go func() {
		done <- s.Execute(context.Background(), "Dom.enable", nil, nil)
	}()

	var sent *cdproto.Message
	select {
	case sent = <-conn.written:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for command to be written")
	}
	require.Equal(t, target.SessionID("sess-1"), sent.SessionID)

	s.Feed(&cdproto.Message{ID: sent.ID})

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Execute to return")
	}
}

func TestSessionExecuteIgnoresMismatchedID(t *testing.T) {
	conn := newFakeConn()
	s := NewSession(conn, target.SessionID("sess-1"), target.ID("target-1"), nil, nil)

	done := make(chan error, 1)
	go func() {
		done <- s.Execute(context.Background(), "Dom.enable", nil, nil)
	}()

	sent := <-conn.written

	// A reply for a different in-flight command must not satisfy this call.
	s.Feed(&cdproto.Message{ID: sent.ID + 999})

	select {
	case <-done:
		t.Fatal("Execute returned before its own response arrived")
	case <-time.After(50 * time.Millisecond):
	}

	s.Feed(&cdproto.Message{ID: sent.ID})
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Execute to return")
	}
}

func TestSessionExecutePropagatesCDPError(t *testing.T) {
	conn := newFakeConn()
	s := NewSession(conn, target.SessionID("sess-1"), target.ID("target-1"), nil, nil)

	done := make(chan error, 1)
	go func() {
		done <- s.Execute(context.Background(), "Dom.enable", nil, nil)
	}()

	sent := <-conn.written
	s.Feed(&cdproto.Message{ID: sent.ID, Error: &cdproto.Error{Code: -32000, Message: "boom"}})

	err := <-done
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
}

func TestSessionCloseAllUnblocksExecute(t *testing.T) {
	conn := newFakeConn()
	s := NewSession(conn, target.SessionID("sess-1"), target.ID("target-1"), nil, nil)

	done := make(chan error, 1)
	go func() {
		done <- s.Execute(context.Background(), "Dom.enable", nil, nil)
	}()

	<-conn.written
	s.closeAll()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrSessionClosed)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Execute to unblock on close")
	}

	err := s.Execute(context.Background(), "Dom.enable", nil, nil)
	require.ErrorIs(t, err, ErrSessionClosed)
}

func TestSessionFeedFansOutDecodedEventsToHandlers(t *testing.T) {
	conn := newFakeConn()
	s := NewSession(conn, target.SessionID("sess-1"), target.ID("target-1"), nil, nil)

	var gotFrameIDs []string
	s.OnEvent(func(ev interface{}) {
		if fa, ok := ev.(*page.EventFrameAttached); ok {
			gotFrameIDs = append(gotFrameIDs, string(fa.FrameID))
		}
	})

	params, err := json.Marshal(&page.EventFrameAttached{FrameID: cdp.FrameID("frame-1"), ParentFrameID: cdp.FrameID("frame-0")})
	require.NoError(t, err)

	s.Feed(&cdproto.Message{Method: cdproto.MethodType("Page.frameAttached"), Params: params})

	require.Equal(t, []string{"frame-1"}, gotFrameIDs)
}
