// Package mcptransport provides the transport adapters used by mcpmgr to reach
// an MCP server: a local child process speaking newline-delimited JSON-RPC over
// its stdin/stdout, and a remote server speaking the Streamable HTTP or SSE
// transports.
//
// Every adapter implements mcp.Transport from the go-sdk, so the protocol
// framing and the initialize handshake stay in the SDK. The adapters add what
// the SDK leaves to callers: process supervision and text decoding for pipes,
// connect and stream-read deadlines plus static headers for HTTP.
package mcptransport
