package mcpmgr

import (
	"context"
	"fmt"
	"log/slog"
	"maps"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vikashloomba/mcp-client-manager-go/pkg/mcptransport"
)

// Client is the public surface for talking to one MCP server.
type Client interface {
	Name() string
	ToolPrefix() string
	Logger() *slog.Logger
	Status() ConnectionStatus

	Connect(ctx context.Context) error
	ListTools(ctx context.Context) ([]*mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	InvalidateToolsCache()
	Ping(ctx context.Context) error
	OnToolListChanged(fn func())
	OnProgress(fn ProgressHandler)
	Cleanup(ctx context.Context) error
}

var (
	_ Client = (*StdioClient)(nil)
	_ Client = (*HTTPClient)(nil)
)

// StdioClient talks to a server running as a child process.
type StdioClient struct {
	*Lifecycle
	config StdioServerConfig
}

// NewStdioClient validates cfg and returns a disconnected client. No process
// is started until Connect.
func NewStdioClient(cfg *StdioServerConfig) (*StdioClient, error) {
	if cfg == nil {
		return nil, configError("", fmt.Errorf("nil config"))
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	c := &StdioClient{config: *cfg}
	c.config.Env = maps.Clone(cfg.Env)
	c.config.Args = append([]string(nil), cfg.Args...)
	name := c.config.Name
	if name == "" {
		name = c.config.defaultName()
	}
	c.Lifecycle = newLifecycle(name, &c.config.BaseServerConfig, func(logger *slog.Logger) []mcptransport.Candidate {
		return []mcptransport.Candidate{{Name: "stdio", Transport: c.config.transport(logger)}}
	})
	return c, nil
}

// Config returns a copy of the configuration the client was built from.
func (c *StdioClient) Config() StdioServerConfig { return c.config }

// HTTPClient talks to a remote server over Streamable HTTP or SSE.
type HTTPClient struct {
	*Lifecycle
	config HTTPServerConfig
}

// NewHTTPClient validates cfg and returns a disconnected client. Nothing is
// dialed until Connect.
func NewHTTPClient(cfg *HTTPServerConfig) (*HTTPClient, error) {
	if cfg == nil {
		return nil, configError("", fmt.Errorf("nil config"))
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	c := &HTTPClient{config: *cfg}
	c.config.Headers = maps.Clone(cfg.Headers)
	name := c.config.Name
	if name == "" {
		name = c.config.defaultName()
	}
	c.Lifecycle = newLifecycle(name, &c.config.BaseServerConfig, func(*slog.Logger) []mcptransport.Candidate {
		return c.config.transport().Candidates()
	})
	return c, nil
}

// Config returns a copy of the configuration the client was built from.
func (c *HTTPClient) Config() HTTPServerConfig { return c.config }

// NewClient builds the client matching the concrete config type.
func NewClient(cfg ServerConfig) (Client, error) {
	switch c := cfg.(type) {
	case *StdioServerConfig:
		return NewStdioClient(c)
	case *HTTPServerConfig:
		return NewHTTPClient(c)
	case nil:
		return nil, configError("", fmt.Errorf("nil config"))
	default:
		return nil, configError("", fmt.Errorf("unsupported config type %T", cfg))
	}
}
