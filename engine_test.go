package frameagent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/frameagent/frameagent/dispatch"
	"github.com/frameagent/frameagent/llmiface"
	"github.com/frameagent/frameagent/snapshot"
)

type fakeLLM struct {
	parsed any
	err    error
}

func (f *fakeLLM) InvokeStructured(ctx context.Context, schema any, messages []llmiface.Message) (string, any, error) {
	return "", f.parsed, f.err
}

func (f *fakeLLM) Invoke(ctx context.Context, messages []llmiface.Message) (string, error) {
	return "", f.err
}

func TestNewWithoutDriverFailsFatalOnFirstPageAccess(t *testing.T) {
	e := New(nil)
	_, err := e.Observe(context.Background(), "page-1")
	require.True(t, IsFatal(err))
	require.ErrorIs(t, err, ErrNoDriver)
}

func TestExecuteActionRejectsMalformedEncodedId(t *testing.T) {
	e := New(nil)
	snap := snapshot.New()
	_, err := e.ExecuteAction(context.Background(), "page-1", snap, "not-an-id", dispatch.MethodClick, nil)
	require.True(t, IsStructural(err))
}

func TestExecuteActionRejectsUnregisteredMethod(t *testing.T) {
	e := New(nil)
	snap := snapshot.New()
	_, err := e.ExecuteAction(context.Background(), "page-1", snap, "0-1", dispatch.Method("whoami"), nil)
	require.True(t, IsStructural(err))
}

func TestFindElementFailsFatalWithNoClientConfigured(t *testing.T) {
	e := New(nil)
	snap := snapshot.New()
	_, err := e.FindElement(context.Background(), "click submit", snap, nil)
	require.True(t, IsFatal(err))
	require.ErrorIs(t, err, ErrNoLLM)
}

func TestFindElementRejectsMalformedEncodedIdFromModel(t *testing.T) {
	e := New(nil, WithLLM(&fakeLLM{parsed: llmiface.ElementResult{EncodedID: "nope", Method: "click"}}))
	snap := snapshot.New()
	_, err := e.FindElement(context.Background(), "click submit", snap, nil)
	require.True(t, IsStructural(err))
}

func TestFindElementReturnsParsedResult(t *testing.T) {
	e := New(nil, WithLLM(&fakeLLM{parsed: llmiface.ElementResult{EncodedID: "0-5", Method: "click", Confidence: 0.9}}))
	snap := snapshot.New()
	snap.Elements["0-5"] = snapshot.AccessibilityNode{Role: "button", Name: "Submit"}
	result, err := e.FindElement(context.Background(), "click submit", snap, nil)
	require.NoError(t, err)
	require.Equal(t, "0-5", result.EncodedID)
}

func TestFindElementReportsNotFoundForUnknownElement(t *testing.T) {
	e := New(nil, WithLLM(&fakeLLM{parsed: llmiface.ElementResult{EncodedID: "0-5", Method: "click"}}))
	snap := snapshot.New() // empty: the model hallucinated an id
	_, err := e.FindElement(context.Background(), "click submit", snap, nil)
	require.ErrorIs(t, err, ErrElementNotFound)
}

func TestFindElementSurfacesFatalWhenModelNeverParses(t *testing.T) {
	e := New(nil, WithLLM(&fakeLLM{err: errors.New("provider timeout")}))
	snap := snapshot.New()
	_, err := e.FindElement(context.Background(), "click submit", snap, nil)
	require.True(t, IsFatal(err))
}

func TestCloseIsIdempotentOnUnknownPage(t *testing.T) {
	e := New(nil)
	require.NoError(t, e.Close("never-seen"))
	require.NoError(t, e.Close("never-seen"))
}

func TestInvalidateOnUnknownPageIsNoop(t *testing.T) {
	e := New(nil)
	e.Invalidate("never-seen") // must not panic
}
