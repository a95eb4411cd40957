package mcpmgr

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vikashloomba/mcp-client-manager-go/pkg/mcptransport"
)

// DefaultToolPrefix is prepended to tool names by callers that namespace
// tools from several servers.
const DefaultToolPrefix = "mcp_"

// RPCDirection represents the direction of an observed JSON-RPC message.
type RPCDirection string

const (
	RPCDirectionSend    RPCDirection = "send"
	RPCDirectionReceive RPCDirection = "receive"
)

// RPCLogEvent encapsulates JSON-RPC traffic for custom logging.
type RPCLogEvent struct {
	Direction RPCDirection
	Message   []byte
	ServerID  string
}

// RPCLogger is invoked for each JSON-RPC message when logging is enabled.
type RPCLogger func(RPCLogEvent)

// BaseServerConfig captures settings shared by all transport types.
type BaseServerConfig struct {
	// Name is the display name. Defaults to "stdio: <command>" or
	// "sse: <url>".
	Name string
	// ToolPrefix defaults to DefaultToolPrefix unless DisableToolPrefix is set.
	ToolPrefix        string
	DisableToolPrefix bool
	// CacheToolsList serves ListTools from the cache until invalidated.
	// DisableCacheToolsList turns caching off even when the manager enables
	// it for every server.
	CacheToolsList        bool
	DisableCacheToolsList bool
	// Timeout bounds the handshake and each request. Zero means no bound.
	Timeout time.Duration

	ClientOptions mcp.ClientOptions
	Version       string
	OnError       func(error)

	// DisableLogJSONRPC silences traffic logging for this server, overriding
	// both LogJSONRPC and the manager defaults.
	LogJSONRPC        bool
	DisableLogJSONRPC bool
	RPCLogger         RPCLogger

	// Logger defaults to slog.Default() at construction.
	Logger *slog.Logger
}

func (b *BaseServerConfig) toolPrefix() string {
	if b.DisableToolPrefix {
		return ""
	}
	if b.ToolPrefix == "" {
		return DefaultToolPrefix
	}
	return b.ToolPrefix
}

// StdioServerConfig describes an MCP server launched as a child process.
type StdioServerConfig struct {
	BaseServerConfig
	Command string
	Args    []string
	Env     map[string]string
	Dir     string
	// Encoding of the pipes, defaults to utf-8.
	Encoding string
	// EncodingErrorHandler is one of strict, ignore or replace.
	EncodingErrorHandler mcptransport.DecodeErrorPolicy
	// TerminateTimeout is the grace period between closing stdin and
	// killing the process.
	TerminateTimeout time.Duration
}

func (c *StdioServerConfig) base() *BaseServerConfig { return &c.BaseServerConfig }

func (c *StdioServerConfig) defaultName() string { return "stdio: " + c.Command }

func (c *StdioServerConfig) transport(logger *slog.Logger) *mcptransport.ProcessTransport {
	return &mcptransport.ProcessTransport{
		Command:          c.Command,
		Args:             append([]string(nil), c.Args...),
		Env:              c.Env,
		Dir:              c.Dir,
		Encoding:         c.Encoding,
		DecodeErrors:     c.EncodingErrorHandler,
		TerminateTimeout: c.TerminateTimeout,
		Logger:           logger,
	}
}

func (c *StdioServerConfig) validate() error {
	return c.transport(nil).Validate()
}

func (c *StdioServerConfig) clone() ServerConfig {
	cp := *c
	return &cp
}

// HTTPServerConfig describes an MCP server reachable over Streamable HTTP or
// SSE.
type HTTPServerConfig struct {
	BaseServerConfig
	URL     string
	Headers map[string]string
	// ConnectTimeout defaults to 5s.
	ConnectTimeout time.Duration
	// StreamReadTimeout defaults to 300s. Negative disables it.
	StreamReadTimeout time.Duration
	// Mode defaults to auto.
	Mode       mcptransport.HTTPMode
	HTTPClient *http.Client
	MaxRetries int
}

func (c *HTTPServerConfig) base() *BaseServerConfig { return &c.BaseServerConfig }

func (c *HTTPServerConfig) defaultName() string { return "sse: " + c.URL }

func (c *HTTPServerConfig) transport() *mcptransport.HTTPTransport {
	return &mcptransport.HTTPTransport{
		URL:               c.URL,
		Headers:           mcptransport.HeaderFromMap(c.Headers),
		ConnectTimeout:    c.ConnectTimeout,
		StreamReadTimeout: c.StreamReadTimeout,
		Mode:              c.Mode,
		HTTPClient:        c.HTTPClient,
		MaxRetries:        c.MaxRetries,
	}
}

func (c *HTTPServerConfig) validate() error {
	return c.transport().Validate()
}

func (c *HTTPServerConfig) clone() ServerConfig {
	cp := *c
	return &cp
}

// ServerConfig is implemented by all transport-specific configurations.
type ServerConfig interface {
	base() *BaseServerConfig
	defaultName() string
	validate() error
	clone() ServerConfig
}

// ValidateConfig reports whether cfg could be used to build a Client.
func ValidateConfig(cfg ServerConfig) error {
	if cfg == nil {
		return configError("", errors.New("nil config"))
	}
	if err := cfg.validate(); err != nil {
		return configError(cfg.defaultName(), err)
	}
	if cfg.base().Timeout < 0 {
		return configError(cfg.defaultName(), errors.New("timeout must not be negative"))
	}
	return nil
}

// ManagerOptions configures a Manager instance.
type ManagerOptions struct {
	// DefaultClientVersion controls the semantic version reported to servers.
	DefaultClientVersion string
	// DefaultTimeout is applied whenever a server configuration omits an
	// explicit timeout.
	DefaultTimeout time.Duration
	// DefaultClientOptions are merged into each server's BaseServerConfig
	// options prior to connection.
	DefaultClientOptions mcp.ClientOptions
	// DefaultLogJSONRPC toggles logging of JSON-RPC traffic for all servers
	// unless overridden per server.
	DefaultLogJSONRPC bool
	// RPCLogger provides a custom logger for JSON-RPC traffic; it takes
	// precedence over DefaultLogJSONRPC.
	RPCLogger RPCLogger
	// DefaultCacheToolsList enables tool caching for every server.
	DefaultCacheToolsList bool
	Logger                *slog.Logger
}

func (o *ManagerOptions) normalized() ManagerOptions {
	if o == nil {
		return ManagerOptions{Logger: slog.Default()}
	}
	opts := *o
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}

// apply fills unset per-server fields from the manager defaults. A false
// bool is indistinguishable from an unset one, so servers opt out of the
// boolean defaults through the matching Disable field.
func (o ManagerOptions) apply(serverID string, cfg ServerConfig) ServerConfig {
	cfg = cfg.clone()
	b := cfg.base()
	if b.Name == "" {
		b.Name = serverID
	}
	if b.Timeout == 0 {
		b.Timeout = o.DefaultTimeout
	}
	if b.Version == "" {
		b.Version = o.DefaultClientVersion
	}
	if b.DisableCacheToolsList {
		b.CacheToolsList = false
	} else if !b.CacheToolsList {
		b.CacheToolsList = o.DefaultCacheToolsList
	}
	if b.DisableLogJSONRPC {
		b.LogJSONRPC = false
		b.RPCLogger = nil
	} else {
		if b.RPCLogger == nil {
			b.RPCLogger = o.RPCLogger
		}
		if !b.LogJSONRPC {
			b.LogJSONRPC = o.DefaultLogJSONRPC
		}
	}
	if b.Logger == nil {
		b.Logger = o.Logger
	}
	merged := o.DefaultClientOptions
	mergeClientOptions(&merged, &b.ClientOptions)
	b.ClientOptions = merged
	return cfg
}

func mergeClientOptions(dst, src *mcp.ClientOptions) {
	if src == nil {
		return
	}
	if src.CreateMessageHandler != nil {
		dst.CreateMessageHandler = src.CreateMessageHandler
	}
	if src.ElicitationHandler != nil {
		dst.ElicitationHandler = src.ElicitationHandler
	}
	if src.ToolListChangedHandler != nil {
		dst.ToolListChangedHandler = src.ToolListChangedHandler
	}
	if src.PromptListChangedHandler != nil {
		dst.PromptListChangedHandler = src.PromptListChangedHandler
	}
	if src.ResourceListChangedHandler != nil {
		dst.ResourceListChangedHandler = src.ResourceListChangedHandler
	}
	if src.ResourceUpdatedHandler != nil {
		dst.ResourceUpdatedHandler = src.ResourceUpdatedHandler
	}
	if src.LoggingMessageHandler != nil {
		dst.LoggingMessageHandler = src.LoggingMessageHandler
	}
	if src.ProgressNotificationHandler != nil {
		dst.ProgressNotificationHandler = src.ProgressNotificationHandler
	}
	if src.KeepAlive != 0 {
		dst.KeepAlive = src.KeepAlive
	}
}
