// Package transport implements the CDP Transport component (spec §4.1):
// typed request/response plus an event channel over a CDP session, a
// kind-indexed session pool, and child-session creation for OOPIFs.
package transport

import (
	"bytes"
	"context"
	"io"
	"net"
	"strings"

	"github.com/chromedp/cdproto"
	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
)

// Conn is the raw websocket connection to the browser's debugger endpoint,
// adapted from the teacher's gorilla/websocket-based Conn onto
// github.com/gobwas/ws, the dependency actually pinned by its go.mod.
type Conn struct {
	rw   io.ReadWriter
	closer io.Closer

	buf    bytes.Buffer
	lexer  jlexer.Lexer
	writer jwriter.Writer

	dbgf func(string, ...interface{})
}

// DialOption configures a Conn at dial time.
type DialOption func(*Conn)

// WithConnDebugf installs a protocol-level logger, invoked with the raw wire
// bytes of every read and write.
func WithConnDebugf(f func(string, ...interface{})) DialOption {
	return func(c *Conn) { c.dbgf = f }
}

// DialContext dials the specified websocket debugger URL.
func DialContext(ctx context.Context, urlstr string, opts ...DialOption) (*Conn, error) {
	rw, _, _, err := ws.Dial(ctx, ForceIP(urlstr))
	if err != nil {
		return nil, err
	}
	c := &Conn{rw: rw, closer: rw}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Read reads the next CDP message off the wire.
func (c *Conn) Read(msg *cdproto.Message) error {
	data, err := wsutil.ReadServerText(c.rw)
	if err != nil {
		return err
	}
	if c.dbgf != nil {
		c.dbgf("-> %s", data)
	}
	c.lexer = jlexer.Lexer{Data: data}
	msg.UnmarshalEasyJSON(&c.lexer)
	if err := c.lexer.Error(); err != nil {
		return err
	}
	// wsutil hands back a buffer it may reuse; msg.Result is easyjson.RawMessage
	// so we must copy it to avoid aliasing a recycled read buffer.
	msg.Result = append([]byte{}, msg.Result...)
	return nil
}

// Write writes a CDP message to the wire.
func (c *Conn) Write(msg *cdproto.Message) error {
	c.writer = jwriter.Writer{}
	msg.MarshalEasyJSON(&c.writer)
	if err := c.writer.Error; err != nil {
		return err
	}
	buf, err := c.writer.BuildBytes()
	if err != nil {
		return err
	}
	if c.dbgf != nil {
		c.dbgf("<- %s", buf)
	}
	return wsutil.WriteClientText(c.rw, buf)
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.closer.Close()
}

// ForceIP forces the host component in urlstr to be an IP address, since
// Chrome rejects debugger connections whose Host header isn't an IP or
// "localhost".
func ForceIP(urlstr string) string {
	i := strings.Index(urlstr, "://")
	if i == -1 {
		return urlstr
	}
	scheme := urlstr[:i+3]
	host, port, path := urlstr[len(scheme):], "", ""
	if i := strings.Index(host, "/"); i != -1 {
		host, path = host[:i], host[i:]
	}
	if i := strings.Index(host, ":"); i != -1 {
		host, port = host[:i], host[i:]
	}
	if host == "localhost" {
		return urlstr
	}
	if addr, err := net.ResolveIPAddr("ip", host); err == nil {
		return scheme + addr.IP.String() + port + path
	}
	return urlstr
}
