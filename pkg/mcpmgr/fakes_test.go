package mcpmgr

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vikashloomba/mcp-client-manager-go/pkg/mcptransport"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeConn is an idle connection that only records Close.
type fakeConn struct {
	closes atomic.Int32
	done   chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn { return &fakeConn{done: make(chan struct{})} }

func (c *fakeConn) Read(ctx context.Context) (jsonrpc.Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, io.EOF
	}
}

func (c *fakeConn) Write(context.Context, jsonrpc.Message) error { return nil }

func (c *fakeConn) Close() error {
	c.closes.Add(1)
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) SessionID() string { return "" }

type fakeTransport struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (t *fakeTransport) Connect(context.Context) (mcp.Connection, error) {
	conn := newFakeConn()
	t.mu.Lock()
	t.conns = append(t.conns, conn)
	t.mu.Unlock()
	return conn, nil
}

func (t *fakeTransport) opened() []*fakeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*fakeConn(nil), t.conns...)
}

// fakeSession scripts the server side of a session.
type fakeSession struct {
	mu        sync.Mutex
	pages     [][]*mcp.Tool
	listGate  chan struct{}
	callFn    func(*mcp.CallToolParams) (*mcp.CallToolResult, error)
	lastCall  *mcp.CallToolParams
	closeWait chan struct{}
	// conn is the transport connection the session was dialed over; Close
	// closes it, as *mcp.ClientSession does.
	conn mcp.Connection

	listCalls  atomic.Int32
	closeCount atomic.Int32

	ended   chan struct{}
	endOnce sync.Once
	endErr  error
}

func newFakeSession(tools ...*mcp.Tool) *fakeSession {
	return &fakeSession{pages: [][]*mcp.Tool{tools}, ended: make(chan struct{})}
}

func (s *fakeSession) ID() string { return "fake-session" }

func (s *fakeSession) ListTools(ctx context.Context, params *mcp.ListToolsParams) (*mcp.ListToolsResult, error) {
	s.listCalls.Add(1)
	if s.listGate != nil {
		select {
		case <-s.listGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	page := 0
	if params != nil && params.Cursor != "" {
		page = int(params.Cursor[0] - '0')
	}
	res := &mcp.ListToolsResult{Tools: s.pages[page]}
	if page+1 < len(s.pages) {
		res.NextCursor = string(rune('0' + page + 1))
	}
	return res, nil
}

func (s *fakeSession) CallTool(_ context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	s.lastCall = params
	fn := s.callFn
	s.mu.Unlock()
	if fn != nil {
		return fn(params)
	}
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "ok"}}}, nil
}

func (s *fakeSession) Ping(context.Context, *mcp.PingParams) error { return nil }

func (s *fakeSession) Close() error {
	s.closeCount.Add(1)
	if s.closeWait != nil {
		<-s.closeWait
	}
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	var err error
	if conn != nil {
		err = conn.Close()
	}
	s.end(nil)
	return err
}

func (s *fakeSession) Wait() error {
	<-s.ended
	return s.endErr
}

// end simulates the session finishing, for example because the server went
// away.
func (s *fakeSession) end(err error) {
	s.endOnce.Do(func() {
		s.endErr = err
		close(s.ended)
	})
}

// fakeDialer hands out scripted sessions and counts handshakes.
type fakeDialer struct {
	mu       sync.Mutex
	sessions []*fakeSession
	errs     []error
	dials    atomic.Int32
}

func (d *fakeDialer) dial(ctx context.Context, transport mcp.Transport) (clientSession, error) {
	d.dials.Add(1)
	conn, err := transport.Connect(ctx)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.errs) > 0 {
		err := d.errs[0]
		d.errs = d.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(d.sessions) == 0 {
		return nil, errors.New("no scripted session")
	}
	s := d.sessions[0]
	if len(d.sessions) > 1 {
		d.sessions = d.sessions[1:]
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return s, nil
}

type lifecycleFixture struct {
	*Lifecycle
	dialer    *fakeDialer
	transport *fakeTransport
}

func newFixture(t *testing.T, base BaseServerConfig, sessions ...*fakeSession) *lifecycleFixture {
	t.Helper()
	if base.Logger == nil {
		base.Logger = discardLogger()
	}
	transport := &fakeTransport{}
	l := newLifecycle("fake", &base, func(*slog.Logger) []mcptransport.Candidate {
		return []mcptransport.Candidate{{Name: "fake", Transport: transport}}
	})
	d := &fakeDialer{sessions: sessions}
	l.dial = d.dial
	t.Cleanup(func() { _ = l.Cleanup(context.Background()) })
	return &lifecycleFixture{Lifecycle: l, dialer: d, transport: transport}
}
