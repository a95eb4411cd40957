package mcpgateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/cors"

	"github.com/vikashloomba/mcp-client-manager-go/pkg/mcpmgr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Gateway exposes a Streamable MCP server that fronts every server managed by
// mcpmgr under a single HTTP endpoint.
type Gateway struct {
	manager *mcpmgr.Manager
	opts    Options

	features *featureIndex
	progress *progressTracker

	server        *mcp.Server
	streamHandler *mcp.StreamableHTTPHandler
	mux           *http.ServeMux
	httpHandler   http.Handler

	serverMu     sync.Mutex
	httpServerMu sync.Mutex
	httpServer   *http.Server

	registerMu      sync.Mutex
	registeredSrvID map[string]struct{}
}

// NewGateway builds a Gateway, synchronizes the initial tool snapshot, and
// registers change watchers for every known server. A server whose catalog
// cannot be listed is logged and left out; the gateway still starts.
func NewGateway(mgr *mcpmgr.Manager, opts *Options) (*Gateway, error) {
	if mgr == nil {
		return nil, fmt.Errorf("mcpgateway: manager is required")
	}
	options := opts.withDefaults()
	g := &Gateway{
		manager:         mgr,
		opts:            options,
		features:        newFeatureIndex(options.Namespace),
		progress:        newProgressTracker(options.Logger),
		registeredSrvID: make(map[string]struct{}),
	}

	g.server = mcp.NewServer(options.Implementation, &mcp.ServerOptions{HasTools: true})
	g.streamHandler = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return g.server
	}, &options.Streamable)
	g.httpHandler = g.mountHandler()

	mgr.OnServerRemoved(g.detachServer)
	for _, serverID := range mgr.ListServers() {
		g.registerServerHooks(serverID)
	}
	if options.AutoConnect {
		ctx, cancel := g.syncContext(context.Background())
		if err := mgr.ConnectAll(ctx); err != nil {
			options.Logger.Warn("autoconnect failed", "error", err)
		}
		cancel()
	}
	if err := g.SyncAll(context.Background()); err != nil {
		options.Logger.Warn("initial tool sync incomplete", "error", err)
	}

	return g, nil
}

// Options returns a copy of the effective options.
func (g *Gateway) Options() Options {
	return g.opts
}

// ServeMux exposes the mux the Streamable handler is mounted on so callers can
// add their own routes (health checks, metrics) next to it.
func (g *Gateway) ServeMux() *http.ServeMux {
	return g.mux
}

// Handler exposes the HTTP handler that serves the Streamable endpoint.
func (g *Gateway) Handler() http.Handler {
	return g.httpHandler
}

// ListenAndServe runs an HTTP server until the provided context is cancelled or
// the server stops.
func (g *Gateway) ListenAndServe(ctx context.Context) error {
	g.httpServerMu.Lock()
	if g.httpServer != nil {
		serv := g.httpServer
		g.httpServerMu.Unlock()
		return fmt.Errorf("mcpgateway: server already running on %s", serv.Addr)
	}
	srv := &http.Server{Addr: g.opts.Addr, Handler: g.Handler()}
	g.httpServer = srv
	g.httpServerMu.Unlock()
	defer func() {
		g.httpServerMu.Lock()
		if g.httpServer == srv {
			g.httpServer = nil
		}
		g.httpServerMu.Unlock()
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	g.opts.Logger.Info("gateway listening", "addr", g.opts.Addr, "path", g.opts.Path)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), g.opts.SyncTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Shutdown stops the embedded HTTP server if it is running.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.httpServerMu.Lock()
	srv := g.httpServer
	g.httpServer = nil
	g.httpServerMu.Unlock()
	if srv == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return srv.Shutdown(ctx)
}

// Close stops the HTTP server and disconnects every upstream server.
func (g *Gateway) Close(ctx context.Context) error {
	return errors.Join(g.Shutdown(ctx), g.manager.DisconnectAllServers(ctx))
}

// SyncAll refreshes every connected server. Servers that are not connected
// are skipped; they are picked up by AttachServer or a later SyncServer. A
// failing server does not stop the others; the last failure is returned.
func (g *Gateway) SyncAll(ctx context.Context) error {
	var lastErr error
	for _, serverID := range g.manager.ListServers() {
		if g.manager.GetConnectionStatus(serverID) != mcpmgr.StatusConnected {
			g.opts.Logger.Debug("skipping sync of idle server", "server", serverID)
			continue
		}
		if err := g.SyncServer(ctx, serverID); err != nil {
			lastErr = err
			g.logError("sync server", err, "server", serverID)
		}
	}
	return lastErr
}

// SyncServer refreshes a specific server's tools.
func (g *Gateway) SyncServer(ctx context.Context, serverID string) error {
	return g.syncTools(ctx, serverID)
}

// AttachServer registers a server with the manager when cfg is non-nil,
// connects it, and exposes its tools.
func (g *Gateway) AttachServer(ctx context.Context, serverID string, cfg mcpmgr.ServerConfig) error {
	if cfg != nil {
		if err := g.manager.AddServer(serverID, cfg); err != nil {
			return err
		}
	}
	if err := g.manager.ConnectToServer(ctx, serverID); err != nil {
		return err
	}
	g.registerServerHooks(serverID)
	return g.SyncServer(ctx, serverID)
}

// Tools returns the tools currently exposed downstream.
func (g *Gateway) Tools() []*mcp.Tool {
	return g.features.Tools()
}

// CallTool routes a call made with a gateway tool name to its upstream server.
func (g *Gateway) CallTool(ctx context.Context, gatewayName string, args map[string]any) (*mcp.CallToolResult, error) {
	target, ok := g.features.ToolTarget(gatewayName)
	if !ok {
		return nil, fmt.Errorf("mcpgateway: unknown tool %q", gatewayName)
	}
	return g.manager.ExecuteTool(ctx, target.ServerID, target.NativeName, args)
}

func (g *Gateway) syncTools(ctx context.Context, serverID string) error {
	client, ok := g.manager.Client(serverID)
	if !ok {
		return fmt.Errorf("mcpgateway: unknown server %q", serverID)
	}
	ctx, cancel := g.syncContext(ctx)
	defer cancel()
	tools, err := client.ListTools(ctx)
	if err != nil {
		return err
	}
	if filter, ok := g.opts.ToolFilters[serverID]; ok {
		tools = filter.Apply(tools)
	}
	removed, added, conflicts := g.features.UpdateTools(serverID, client.ToolPrefix(), tools)
	for _, name := range conflicts {
		g.opts.Logger.Warn("tool name already exposed by another server", "server", serverID, "tool", name)
	}
	g.serverMu.Lock()
	if len(removed) > 0 {
		g.server.RemoveTools(removed...)
	}
	for _, reg := range added {
		g.server.AddTool(reg.Tool, g.makeToolHandler(reg.Target))
	}
	g.serverMu.Unlock()
	g.opts.Logger.Debug("synchronized tools", "server", serverID, "count", len(added))
	return nil
}

func (g *Gateway) registerServerHooks(serverID string) {
	g.registerMu.Lock()
	if _, ok := g.registeredSrvID[serverID]; ok {
		g.registerMu.Unlock()
		return
	}
	g.registeredSrvID[serverID] = struct{}{}
	g.registerMu.Unlock()

	g.manager.OnToolListChanged(serverID, func() {
		go g.syncAndLog("tools", serverID, func() error {
			return g.syncTools(context.Background(), serverID)
		})
	})
	g.manager.OnProgress(serverID, g.progress.forward(serverID))
}

func (g *Gateway) detachServer(serverID string) {
	g.registerMu.Lock()
	delete(g.registeredSrvID, serverID)
	g.registerMu.Unlock()

	removed := g.features.RemoveServer(serverID)
	if len(removed) == 0 {
		return
	}
	g.serverMu.Lock()
	g.server.RemoveTools(removed...)
	g.serverMu.Unlock()
}

func (g *Gateway) syncAndLog(kind, serverID string, fn func() error) {
	if err := fn(); err != nil {
		g.logError("sync "+kind, err, "server", serverID)
	}
}

func (g *Gateway) makeToolHandler(target toolTarget) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var raw any
		if req != nil && req.Params != nil {
			raw = req.Params.Arguments
		}
		args, err := decodeArguments(raw)
		if err != nil {
			return nil, fmt.Errorf("mcpgateway: %s: %w", target.GatewayName, err)
		}
		if req != nil && req.Params != nil && req.Session != nil {
			if token := req.Params.GetProgressToken(); token != nil {
				upstream, release := g.progress.track(ctx, target.ServerID, req.Session, token)
				defer release()
				ctx = mcpmgr.WithProgressToken(ctx, upstream)
			}
		}
		return g.manager.ExecuteTool(ctx, target.ServerID, target.NativeName, args)
	}
}

// decodeArguments normalizes downstream tool arguments into the map the
// upstream client expects. Raw JSON is decoded; absent arguments stay nil.
func decodeArguments(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	case []byte:
		if len(v) == 0 {
			return nil, nil
		}
		var out map[string]any
		if err := json.Unmarshal(v, &out); err != nil {
			return nil, fmt.Errorf("decode arguments: %w", err)
		}
		return out, nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode arguments: %w", err)
		}
		return decodeArguments(data)
	}
}

func (g *Gateway) mountHandler() http.Handler {
	path := g.opts.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	g.mux = http.NewServeMux()
	g.mux.Handle(path, g.streamHandler)
	if !strings.HasSuffix(path, "/") {
		g.mux.Handle(path+"/", g.streamHandler)
	}
	if g.opts.CORS != nil {
		return cors.New(*g.opts.CORS).Handler(g.mux)
	}
	return g.mux
}

func (g *Gateway) syncContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if g.opts.SyncTimeout <= 0 {
		return parent, func() {}
	}
	return context.WithTimeout(parent, g.opts.SyncTimeout)
}

func (g *Gateway) logError(msg string, err error, args ...any) {
	if err == nil {
		return
	}
	attrs := append([]any{"error", err}, args...)
	g.opts.Logger.Error(msg, attrs...)
}
