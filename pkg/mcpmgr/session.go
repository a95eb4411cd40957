package mcpmgr

import (
	"context"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// clientSession is the part of *mcp.ClientSession the lifecycle relies on.
type clientSession interface {
	ID() string
	ListTools(context.Context, *mcp.ListToolsParams) (*mcp.ListToolsResult, error)
	CallTool(context.Context, *mcp.CallToolParams) (*mcp.CallToolResult, error)
	Ping(context.Context, *mcp.PingParams) error
	Close() error
	Wait() error
}

// sessionDialer performs the initialize handshake over transport.
type sessionDialer func(ctx context.Context, transport mcp.Transport) (clientSession, error)

func sdkDialer(impl *mcp.Implementation, opts mcp.ClientOptions) sessionDialer {
	return func(ctx context.Context, transport mcp.Transport) (clientSession, error) {
		client := mcp.NewClient(impl, &opts)
		session, err := client.Connect(ctx, transport, nil)
		if err != nil {
			return nil, err
		}
		return session, nil
	}
}

// listAllTools follows pagination cursors until the server reports no more
// pages.
func listAllTools(ctx context.Context, session clientSession) ([]*mcp.Tool, error) {
	var (
		tools  []*mcp.Tool
		cursor string
	)
	for {
		params := &mcp.ListToolsParams{Cursor: cursor}
		res, err := session.ListTools(ctx, params)
		if err != nil {
			return nil, err
		}
		if res == nil {
			return tools, nil
		}
		tools = append(tools, res.Tools...)
		if res.NextCursor == "" || res.NextCursor == cursor {
			return tools, nil
		}
		cursor = res.NextCursor
	}
}

// trackingTransport remembers every connection it opens so a failed connect
// can release them even when the handshake did not. Connections are returned
// unwrapped: the SDK session type-asserts its transport connection for
// optional behaviour (the Streamable client's standalone event stream), and a
// wrapper would hide it.
type trackingTransport struct {
	delegate mcp.Transport

	mu    sync.Mutex
	conns []mcp.Connection
}

func (t *trackingTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	conn, err := t.delegate.Connect(ctx)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.conns = append(t.conns, conn)
	t.mu.Unlock()
	return conn, nil
}

// closeAll closes every tracked connection once and forgets them.
func (t *trackingTransport) closeAll() error {
	t.mu.Lock()
	conns := t.conns
	t.conns = nil
	t.mu.Unlock()
	var firstErr error
	for _, c := range conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
