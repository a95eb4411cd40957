// Package mcpmgr manages client connections to Model Context Protocol (MCP)
// servers on top of the modelcontextprotocol/go-sdk client. It owns the
// connection lifecycle so callers can focus on discovering and invoking tools.
//
// # Core entry points
//
//   - Client is the per-server facade. Build one with NewStdioClient for a
//     server launched as a child process, NewHTTPClient for a remote
//     Streamable HTTP or SSE server, or NewClient to dispatch on the config
//     type. Construction validates the configuration and performs no I/O.
//   - Lifecycle, embedded in both client types, implements the state machine:
//     Connect is idempotent, ListTools and CallTool fail with
//     ErrNotInitialized until a session exists, and Cleanup is safe to call
//     at any time, any number of times, from any goroutine.
//   - Manager keeps several named clients and applies ManagerOptions
//     defaults to each of them.
//   - LoadConfig reads server definitions from YAML, expanding ${VAR}
//     references from .env files and the environment.
//
// Tool catalogs can be cached per server with BaseServerConfig.CacheToolsList.
// A cached catalog is reused until InvalidateToolsCache is called or the
// server sends notifications/tools/list_changed.
//
// Errors returned by a Client are *Error values. Use errors.Is with
// ErrNotInitialized, ErrConnectionFailed, ErrCallFailed or ErrInvalidConfig
// to classify them; the underlying transport or protocol error remains
// reachable through errors.Is and errors.As as well.
package mcpmgr
