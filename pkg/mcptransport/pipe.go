package mcptransport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ErrConnClosed is returned by operations on a closed pipe connection.
var ErrConnClosed = errors.New("mcptransport: connection closed")

// PipeTransport speaks newline-delimited JSON-RPC over an existing reader and
// writer pair, for example the stdin and stdout of the current process.
type PipeTransport struct {
	Reader io.Reader
	Writer io.Writer
	// Closer runs once when the connection is closed.
	Closer func() error
}

// Connect implements mcp.Transport.
func (t *PipeTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	if t.Reader == nil || t.Writer == nil {
		return nil, errors.New("mcptransport: pipe transport needs a reader and a writer")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return newPipeConn(t.Reader, t.Writer, t.Closer), nil
}

// pipeConn frames one JSON-RPC message per line. A single goroutine owns the
// reader so that Read can honour ctx without losing a partially read line.
type pipeConn struct {
	w      io.Writer
	closer func() error

	writeMu sync.Mutex

	incoming chan jsonrpc.Message
	readDone chan struct{}
	readErr  error

	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func newPipeConn(r io.Reader, w io.Writer, closer func() error) *pipeConn {
	c := &pipeConn{
		w:        w,
		closer:   closer,
		incoming: make(chan jsonrpc.Message),
		readDone: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.readLoop(bufio.NewReader(r))
	return c
}

func (c *pipeConn) readLoop(r *bufio.Reader) {
	defer close(c.readDone)
	for {
		line, err := r.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			msg, decErr := jsonrpc.DecodeMessage(line)
			if decErr != nil {
				c.readErr = fmt.Errorf("mcptransport: decode message: %w", decErr)
				return
			}
			select {
			case c.incoming <- msg:
			case <-c.done:
				c.readErr = ErrConnClosed
				return
			}
		}
		if err != nil {
			c.readErr = err
			return
		}
	}
}

func (c *pipeConn) Read(ctx context.Context) (jsonrpc.Message, error) {
	select {
	case msg := <-c.incoming:
		return msg, nil
	case <-c.readDone:
		return nil, c.readErr
	case <-c.done:
		return nil, ErrConnClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *pipeConn) Write(ctx context.Context, msg jsonrpc.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("mcptransport: encode message: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.w.Write(append(data, '\n'))
	return err
}

// Close runs the closer once. Later calls return the first result.
func (c *pipeConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.closer != nil {
			c.closeErr = c.closer()
		}
	})
	return c.closeErr
}

func (c *pipeConn) SessionID() string { return "" }
