// Package browserdriver specifies the engine's boundary to the browser
// process/session layer (spec §6 "Browser boundary"). Process lifecycle —
// launch, stealth flags, session persistence — is out of scope (spec §1);
// this package holds only the three operations the engine requires of
// whatever driver owns that lifecycle, plus a locator shape for XPath-based
// addressing that no package of the engine calls.
package browserdriver

import (
	"context"

	"github.com/frameagent/frameagent/transport"
)

// FrameDescriptor is one frame as the browser driver enumerates it (spec
// §6: "a function enumerating all frames as (url, name, parentUrl)"),
// before the Frame Graph has assigned it a frameIndex or matched it to a
// CDP-event-discovered frameId.
type FrameDescriptor struct {
	URL       string
	Name      string
	ParentURL string
}

// FrameHandle is an opaque reference to a frame as the driver names it,
// passed back into Driver.ChildSession to request an OOPIF session for
// that frame.
type FrameHandle any

// Driver is the minimal surface any browser-automation library must expose
// for the engine to observe and act on one of its pages (spec §6: "Any
// browser driver exposing these three operations is sufficient").
type Driver interface {
	// Session returns the CDP session for a given page, the session the
	// engine's transport.Pool roots its KindDOM/KindScreenshot/KindLifecycle
	// sessions from.
	Session(ctx context.Context, page any) (*transport.Session, error)

	// Frames enumerates every frame currently attached to page.
	Frames(ctx context.Context, page any) ([]FrameDescriptor, error)

	// ChildSession opens a dedicated CDP session for the frame handle: an
	// error or nil session here means the frame shares the main session's
	// process. The engine does not call it; the Frame Graph attaches OOPIF
	// sessions itself through transport.NewChildSession.
	ChildSession(ctx context.Context, frameHandle FrameHandle) (*transport.Session, error)
}

// PoolProvider is implemented by drivers that own a transport.Pool for the
// page's connection. The engine then registers its pooled kinds and OOPIF
// child sessions in that same pool, so the driver's single read loop routes
// wire messages to them; a driver without one leaves the engine holding an
// index-only pool and routing stays the driver's problem.
type PoolProvider interface {
	Pool(ctx context.Context, page any) (*transport.Pool, error)
}

// Locator addresses an element by XPath within a frame handle, with the
// click/fill/type/press subset of the dispatch method set. Dispatch does not
// use it: every action goes through CDP, and there is no path for a page
// without CDP or a snapshot without a backendNodeMap.
type Locator interface {
	Click(ctx context.Context, xpath string, frame FrameHandle) error
	Fill(ctx context.Context, xpath string, frame FrameHandle, value string) error
	Type(ctx context.Context, xpath string, frame FrameHandle, text string) error
	Press(ctx context.Context, xpath string, frame FrameHandle, key string) error
}
