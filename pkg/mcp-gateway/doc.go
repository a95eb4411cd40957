// Package mcpgateway re-exposes the tools of every server held by an
// mcpmgr.Manager through one Streamable MCP endpoint. Tool names are rewritten
// by a NamespaceStrategy, calls are routed back to the owning server along
// with any progress the server reports, and the exposed set follows upstream
// tool list changes.
package mcpgateway
