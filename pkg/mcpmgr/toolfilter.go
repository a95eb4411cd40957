package mcpmgr

import (
	"slices"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolFilter selects which upstream tools are exposed. A non-empty Include
// list wins; otherwise tools named in Exclude are dropped.
type ToolFilter struct {
	Include []string
	Exclude []string
}

// Allows reports whether a tool named name passes the filter.
func (f ToolFilter) Allows(name string) bool {
	if len(f.Include) > 0 {
		return slices.Contains(f.Include, name)
	}
	return !slices.Contains(f.Exclude, name)
}

// Apply returns the tools that pass the filter, preserving order.
func (f ToolFilter) Apply(tools []*mcp.Tool) []*mcp.Tool {
	if len(f.Include) == 0 && len(f.Exclude) == 0 {
		return tools
	}
	out := make([]*mcp.Tool, 0, len(tools))
	for _, tool := range tools {
		if tool != nil && f.Allows(tool.Name) {
			out = append(out, tool)
		}
	}
	return out
}
