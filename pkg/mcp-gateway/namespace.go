package mcpgateway

import (
	"regexp"
	"strings"
)

// NamespaceStrategy generates the downstream tool names for upstream MCP
// servers. Implementations must be deterministic and collision-free for a
// given prefix/serverID/name triple.
type NamespaceStrategy interface {
	ToolName(prefix, serverID, toolName string) string
}

var invalidToolChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// ServerPrefixNamespace names tools "<prefix><server><sep><tool>", with a
// configurable separator that defaults to "__". Characters outside the MCP
// tool name alphabet are replaced with "_".
type ServerPrefixNamespace struct {
	Separator string
}

func (s ServerPrefixNamespace) separator() string {
	if s.Separator == "" {
		return "__"
	}
	return s.Separator
}

func (s ServerPrefixNamespace) ToolName(prefix, serverID, toolName string) string {
	return sanitizeToolName(prefix + serverID + s.separator() + toolName)
}

// ToolPrefixNamespace names tools "<prefix><tool>", relying on each client's
// tool prefix alone to keep servers apart.
type ToolPrefixNamespace struct{}

func (ToolPrefixNamespace) ToolName(prefix, _, toolName string) string {
	return sanitizeToolName(prefix + toolName)
}

func sanitizeToolName(name string) string {
	return invalidToolChars.ReplaceAllString(strings.TrimSpace(name), "_")
}
