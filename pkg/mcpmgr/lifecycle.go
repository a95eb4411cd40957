package mcpmgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vikashloomba/mcp-client-manager-go/pkg/mcptransport"
)

// ConnectionStatus reports where a Lifecycle is in its state machine.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusCleaningUp   ConnectionStatus = "cleaning_up"
)

const clientName = "mcp-client-manager-go"

// Lifecycle owns the connection to one MCP server: it opens the session,
// caches the tool catalog, forwards tool calls and tears everything down.
//
// Connect and Cleanup are serialized against each other. Requests in flight
// do not hold that lock, so Cleanup can interrupt a blocked CallTool, which
// then fails with the transport error.
type Lifecycle struct {
	name       string
	toolPrefix string
	timeout    time.Duration
	useCache   bool
	onError    func(error)
	logger     *slog.Logger
	rpcLogger  RPCLogger

	candidates func(*slog.Logger) []mcptransport.Candidate
	dial       sessionDialer

	cache toolCache

	lifecycleMu sync.Mutex

	mu        sync.RWMutex
	state     ConnectionStatus
	session   clientSession
	connID    string
	listeners []func()
	progress  []ProgressHandler
}

func newLifecycle(name string, base *BaseServerConfig, candidates func(*slog.Logger) []mcptransport.Candidate) *Lifecycle {
	logger := base.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("mcp_server", name)
	l := &Lifecycle{
		name:       name,
		toolPrefix: base.toolPrefix(),
		timeout:    base.Timeout,
		useCache:   base.CacheToolsList,
		onError:    base.OnError,
		logger:     logger,
		candidates: candidates,
		state:      StatusDisconnected,
	}
	l.rpcLogger = resolveRPCLogger(base, logger)

	version := base.Version
	if version == "" {
		version = "1.0.0"
	}
	opts := base.ClientOptions
	userHandler := opts.ToolListChangedHandler
	opts.ToolListChangedHandler = func(ctx context.Context, req *mcp.ToolListChangedRequest) {
		l.handleToolListChanged()
		if userHandler != nil {
			userHandler(ctx, req)
		}
	}
	userProgress := opts.ProgressNotificationHandler
	opts.ProgressNotificationHandler = func(ctx context.Context, req *mcp.ProgressNotificationClientRequest) {
		if req != nil {
			l.handleProgress(ctx, req.Params)
		}
		if userProgress != nil {
			userProgress(ctx, req)
		}
	}
	l.dial = sdkDialer(&mcp.Implementation{Name: clientName, Version: version}, opts)
	return l
}

// Name returns the display name of the server.
func (l *Lifecycle) Name() string { return l.name }

// ToolPrefix returns the prefix callers should prepend to tool names.
func (l *Lifecycle) ToolPrefix() string { return l.toolPrefix }

// Logger returns the logger carrying the server name.
func (l *Lifecycle) Logger() *slog.Logger { return l.logger }

// Status reports the current state.
func (l *Lifecycle) Status() ConnectionStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// SessionID returns the transport session id, if the transport has one.
func (l *Lifecycle) SessionID() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.session == nil {
		return ""
	}
	return l.session.ID()
}

// OnToolListChanged registers fn to run after the server announces that its
// tool list changed. The cache is already invalidated when fn runs.
func (l *Lifecycle) OnToolListChanged(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

// OnProgress registers fn for progress notifications. Tool calls only carry
// a progress token when their context was built with WithProgressToken.
func (l *Lifecycle) OnProgress(fn ProgressHandler) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.progress = append(l.progress, fn)
	l.mu.Unlock()
}

// Connect opens the session. It is a no-op when already connected. On failure
// every resource the attempt opened is released and the returned error
// matches ErrConnectionFailed.
func (l *Lifecycle) Connect(ctx context.Context) error {
	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()

	l.mu.Lock()
	if l.state == StatusConnected {
		l.mu.Unlock()
		return nil
	}
	l.state = StatusConnecting
	connID := uuid.NewString()
	l.mu.Unlock()

	logger := l.logger.With("conn_id", connID)
	session, err := l.open(ctx, logger)
	if err != nil {
		l.mu.Lock()
		l.state = StatusDisconnected
		l.mu.Unlock()
		logger.Error("error initializing MCP server", "error", err)
		return &Error{Server: l.name, Kind: KindConnection, Op: "connect", Err: err}
	}

	l.cache.reset()
	l.mu.Lock()
	l.session = session
	l.connID = connID
	l.state = StatusConnected
	l.mu.Unlock()
	logger.Info("connected to MCP server", "session_id", session.ID())

	go l.watch(session, logger)
	return nil
}

// open tries each transport candidate in order and returns the first session
// whose handshake succeeds.
func (l *Lifecycle) open(ctx context.Context, logger *slog.Logger) (clientSession, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	var errs []error
	for _, candidate := range l.candidates(logger) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		var transport mcp.Transport = candidate.Transport
		if l.rpcLogger != nil {
			transport = &loggingTransport{serverID: l.name, delegate: transport, logger: l.rpcLogger}
		}
		tracker := &trackingTransport{delegate: transport}
		session, err := l.dial(ctx, tracker)
		if err == nil {
			return session, nil
		}
		if closeErr := tracker.closeAll(); closeErr != nil {
			logger.Debug("closing failed connection", "transport", candidate.Name, "error", closeErr)
		}
		logger.Debug("transport handshake failed", "transport", candidate.Name, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", candidate.Name, err))
	}
	if len(errs) == 0 {
		return nil, errors.New("no transport available")
	}
	return nil, errors.Join(errs...)
}

// watch clears the session if the server side ends it.
func (l *Lifecycle) watch(session clientSession, logger *slog.Logger) {
	err := session.Wait()

	l.mu.Lock()
	if l.session != session {
		l.mu.Unlock()
		return
	}
	l.session = nil
	l.state = StatusDisconnected
	l.mu.Unlock()

	logger.Warn("MCP session ended unexpectedly", "error", err)
	if closeErr := session.Close(); closeErr != nil {
		logger.Debug("closing ended session", "error", closeErr)
	}
	if l.onError != nil {
		if err == nil {
			err = errors.New("session closed by server")
		}
		l.onError(err)
	}
}

func (l *Lifecycle) activeSession(op string) (clientSession, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state != StatusConnected || l.session == nil {
		return nil, &Error{Server: l.name, Kind: KindNotInitialized, Op: op}
	}
	return l.session, nil
}

func (l *Lifecycle) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, l.timeout)
}

// ListTools returns the server's tools. With caching enabled a fresh,
// non-empty catalog is served without contacting the server.
func (l *Lifecycle) ListTools(ctx context.Context) ([]*mcp.Tool, error) {
	session, err := l.activeSession("list_tools")
	if err != nil {
		return nil, err
	}
	if l.useCache {
		if tools, ok := l.cache.lookup(); ok {
			return tools, nil
		}
	}
	gen := l.cache.generation()
	ctx, cancel := l.requestContext(ctx)
	defer cancel()
	tools, err := listAllTools(ctx, session)
	if err != nil {
		return nil, &Error{Server: l.name, Kind: KindCall, Op: "list_tools", Err: err}
	}
	l.cache.store(tools, gen)
	return slices.Clone(tools), nil
}

// InvalidateToolsCache forces the next ListTools to fetch from the server.
func (l *Lifecycle) InvalidateToolsCache() {
	l.cache.invalidate()
}

// CallTool invokes a tool and returns the server's result unmodified,
// including results that report a tool-level error.
func (l *Lifecycle) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	session, err := l.activeSession("call_tool")
	if err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	ctx, cancel := l.requestContext(ctx)
	defer cancel()
	params := &mcp.CallToolParams{Name: name, Arguments: args}
	attachProgressToken(ctx, params)
	res, err := session.CallTool(ctx, params)
	if err != nil {
		return nil, &Error{Server: l.name, Kind: KindCall, Op: "call_tool " + name, Err: err}
	}
	return res, nil
}

// Ping checks that the session is alive.
func (l *Lifecycle) Ping(ctx context.Context) error {
	session, err := l.activeSession("ping")
	if err != nil {
		return err
	}
	ctx, cancel := l.requestContext(ctx)
	defer cancel()
	if err := session.Ping(ctx, nil); err != nil {
		return &Error{Server: l.name, Kind: KindCall, Op: "ping", Err: err}
	}
	return nil
}

// Cleanup closes the session. It is a no-op when nothing is connected, never
// returns an error, and always leaves the lifecycle disconnected. Close
// failures and ctx expiry are logged.
func (l *Lifecycle) Cleanup(ctx context.Context) error {
	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()

	l.mu.Lock()
	session := l.session
	if session == nil {
		l.state = StatusDisconnected
		l.mu.Unlock()
		return nil
	}
	l.state = StatusCleaningUp
	l.session = nil
	logger := l.logger.With("conn_id", l.connID)
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.state = StatusDisconnected
		l.connID = ""
		l.mu.Unlock()
	}()

	done := make(chan error, 1)
	go func() { done <- session.Close() }()
	select {
	case err := <-done:
		if err != nil {
			logger.Error("error cleaning up server", "error", err)
		} else {
			logger.Info("disconnected from MCP server")
		}
	case <-ctx.Done():
		logger.Error("cleanup did not finish before context ended", "error", ctx.Err())
	}
	return nil
}

func (l *Lifecycle) handleToolListChanged() {
	l.cache.invalidate()
	l.mu.RLock()
	listeners := slices.Clone(l.listeners)
	l.mu.RUnlock()
	l.logger.Debug("tool list changed")
	for _, fn := range listeners {
		fn()
	}
}

func (l *Lifecycle) handleProgress(ctx context.Context, params *mcp.ProgressNotificationParams) {
	if params == nil {
		return
	}
	l.mu.RLock()
	handlers := slices.Clone(l.progress)
	l.mu.RUnlock()
	for _, fn := range handlers {
		fn(ctx, params)
	}
}
