package mcpgateway

import (
	"maps"
	"sort"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	metaKeyServerID   = "mcpgateway.server_id"
	metaKeyNativeName = "mcpgateway.native_name"
)

// featureIndex maps gateway tool names back to the upstream server and the
// tool's native name.
type featureIndex struct {
	ns NamespaceStrategy

	mu sync.RWMutex

	tools       map[string]toolTarget
	serverTools map[string][]string
	exposed     map[string]*mcp.Tool
}

type toolTarget struct {
	GatewayName string
	ServerID    string
	NativeName  string
}

type toolRegistration struct {
	Tool   *mcp.Tool
	Target toolTarget
}

func newFeatureIndex(ns NamespaceStrategy) *featureIndex {
	return &featureIndex{
		ns:          ns,
		tools:       make(map[string]toolTarget),
		serverTools: make(map[string][]string),
		exposed:     make(map[string]*mcp.Tool),
	}
}

// UpdateTools replaces every tool registered for serverID. A gateway name that
// another server already owns is skipped and reported in conflicts.
func (f *featureIndex) UpdateTools(serverID, prefix string, upstream []*mcp.Tool) (removed []string, added []toolRegistration, conflicts []string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	removed = f.removeToolsLocked(serverID)
	added = make([]toolRegistration, 0, len(upstream))
	names := make([]string, 0, len(upstream))
	for _, tool := range upstream {
		if tool == nil {
			continue
		}
		gatewayName := f.ns.ToolName(prefix, serverID, tool.Name)
		if owner, taken := f.tools[gatewayName]; taken && owner.ServerID != serverID {
			conflicts = append(conflicts, gatewayName)
			continue
		}
		clone := cloneTool(tool, gatewayName, serverID)
		target := toolTarget{GatewayName: gatewayName, ServerID: serverID, NativeName: tool.Name}
		f.tools[gatewayName] = target
		f.exposed[gatewayName] = clone
		added = append(added, toolRegistration{Tool: clone, Target: target})
		names = append(names, gatewayName)
	}
	f.serverTools[serverID] = names
	return removed, added, conflicts
}

// RemoveServer drops every tool of serverID and returns their gateway names.
func (f *featureIndex) RemoveServer(serverID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.removeToolsLocked(serverID)
}

func (f *featureIndex) ToolTarget(name string) (toolTarget, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	t, ok := f.tools[name]
	return t, ok
}

// Tools returns the exposed tools sorted by gateway name.
func (f *featureIndex) Tools() []*mcp.Tool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.exposed))
	for name := range f.exposed {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]*mcp.Tool, 0, len(names))
	for _, name := range names {
		out = append(out, f.exposed[name])
	}
	return out
}

func (f *featureIndex) removeToolsLocked(serverID string) []string {
	names := f.serverTools[serverID]
	if len(names) == 0 {
		return nil
	}
	for _, name := range names {
		delete(f.tools, name)
		delete(f.exposed, name)
	}
	delete(f.serverTools, serverID)
	return append([]string(nil), names...)
}

func cloneTool(tool *mcp.Tool, gatewayName, serverID string) *mcp.Tool {
	if tool == nil {
		return nil
	}
	clone := *tool
	clone.Name = gatewayName
	if clone.InputSchema == nil {
		// The server rejects tools without an object schema.
		clone.InputSchema = map[string]any{"type": "object"}
	}
	clone.Meta = withMeta(tool.Meta, map[string]any{
		metaKeyServerID:   serverID,
		metaKeyNativeName: tool.Name,
	})
	return &clone
}

func withMeta(base map[string]any, extras map[string]any) map[string]any {
	out := maps.Clone(base)
	if out == nil {
		out = make(map[string]any)
	}
	maps.Copy(out, extras)
	return out
}
