package mcpmgr

import (
	"context"
	"log/slog"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var rpcJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// resolveRPCLogger picks the traffic sink for a server: an explicit RPCLogger
// wins, LogJSONRPC falls back to debug records on the server logger.
func resolveRPCLogger(base *BaseServerConfig, logger *slog.Logger) RPCLogger {
	if base.DisableLogJSONRPC {
		return nil
	}
	if base.RPCLogger != nil {
		return base.RPCLogger
	}
	if !base.LogJSONRPC {
		return nil
	}
	return func(event RPCLogEvent) {
		logger.Debug("jsonrpc",
			"direction", string(event.Direction),
			"message", string(event.Message),
		)
	}
}

// loggingTransport is only installed when traffic logging is on. The wrapper
// hides optional methods of the SDK connection, so a Streamable HTTP session
// logged this way does not open its standalone event stream and misses
// server-initiated notifications such as tool list changes.
type loggingTransport struct {
	serverID string
	delegate mcp.Transport
	logger   RPCLogger
}

func (t *loggingTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	conn, err := t.delegate.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return &loggingConnection{Connection: conn, serverID: t.serverID, logger: t.logger}, nil
}

type loggingConnection struct {
	mcp.Connection
	serverID string
	logger   RPCLogger
	mu       sync.Mutex
}

func (c *loggingConnection) Read(ctx context.Context) (jsonrpc.Message, error) {
	msg, err := c.Connection.Read(ctx)
	if err == nil {
		c.emit(RPCDirectionReceive, msg)
	}
	return msg, err
}

func (c *loggingConnection) Write(ctx context.Context, msg jsonrpc.Message) error {
	if err := c.Connection.Write(ctx, msg); err != nil {
		return err
	}
	c.emit(RPCDirectionSend, msg)
	return nil
}

func (c *loggingConnection) emit(direction RPCDirection, msg jsonrpc.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	encoded, err := rpcJSON.Marshal(msg)
	if err != nil {
		encoded = []byte(err.Error())
	}
	c.logger(RPCLogEvent{Direction: direction, Message: encoded, ServerID: c.serverID})
}
