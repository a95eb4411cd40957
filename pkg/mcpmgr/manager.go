package mcpmgr

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ServerSummary describes a configured server for status displays.
type ServerSummary struct {
	ID         string
	Name       string
	ToolPrefix string
	Transport  ConfigTransport
	Status     ConnectionStatus
}

// Manager keeps a set of named Clients, one per configured server, so a
// process can drive several servers through a single value. Each server still
// has exactly one session owned by its Client.
type Manager struct {
	options ManagerOptions

	mu      sync.RWMutex
	clients map[string]Client
	configs map[string]ServerConfig

	removedMu       sync.Mutex
	removedHandlers []func(string)
}

// NewManager builds clients for every entry in cfg. Construction performs no
// I/O; the first invalid configuration aborts it.
func NewManager(cfg map[string]ServerConfig, opts *ManagerOptions) (*Manager, error) {
	m := &Manager{
		options: opts.normalized(),
		clients: make(map[string]Client, len(cfg)),
		configs: make(map[string]ServerConfig, len(cfg)),
	}
	ids := make([]string, 0, len(cfg))
	for id := range cfg {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := m.AddServer(id, cfg[id]); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// AddServer registers a new server. Adding an existing ID is an error.
func (m *Manager) AddServer(serverID string, cfg ServerConfig) error {
	if serverID == "" {
		return configError("", errors.New("server id is required"))
	}
	if err := ValidateConfig(cfg); err != nil {
		return err
	}
	effective := m.options.apply(serverID, cfg)
	client, err := NewClient(effective)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.clients[serverID]; exists {
		return configError(serverID, fmt.Errorf("server %q already registered", serverID))
	}
	m.clients[serverID] = client
	m.configs[serverID] = effective
	return nil
}

// ListServers returns the registered server IDs in sorted order.
func (m *Manager) ListServers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.clients))
	for id := range m.clients {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HasServer reports whether serverID is registered.
func (m *Manager) HasServer(serverID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.clients[serverID]
	return ok
}

// Client returns the client for serverID.
func (m *Manager) Client(serverID string) (Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.clients[serverID]
	return c, ok
}

// GetServerConfig returns the effective configuration for serverID, with
// manager defaults applied.
func (m *Manager) GetServerConfig(serverID string) ServerConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.configs[serverID]
	if !ok {
		return nil
	}
	return cfg.clone()
}

// GetServerSummaries reports every server with its current status.
func (m *Manager) GetServerSummaries() []ServerSummary {
	ids := m.ListServers()
	out := make([]ServerSummary, 0, len(ids))
	for _, id := range ids {
		client, ok := m.Client(id)
		if !ok {
			continue
		}
		out = append(out, ServerSummary{
			ID:         id,
			Name:       client.Name(),
			ToolPrefix: client.ToolPrefix(),
			Transport:  TransportOf(m.GetServerConfig(id)),
			Status:     client.Status(),
		})
	}
	return out
}

func (m *Manager) lookup(serverID string) (Client, error) {
	client, ok := m.Client(serverID)
	if !ok {
		return nil, fmt.Errorf("mcpmgr: unknown server %q", serverID)
	}
	return client, nil
}

// ConnectToServer connects serverID if it is not connected yet.
func (m *Manager) ConnectToServer(ctx context.Context, serverID string) error {
	client, err := m.lookup(serverID)
	if err != nil {
		return err
	}
	return client.Connect(ctx)
}

// ConnectAll connects every server concurrently and joins the failures.
func (m *Manager) ConnectAll(ctx context.Context) error {
	ids := m.ListServers()
	errs := make([]error, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = m.ConnectToServer(ctx, id)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}

// ListTools lists the tools of one server.
func (m *Manager) ListTools(ctx context.Context, serverID string) ([]*mcp.Tool, error) {
	client, err := m.lookup(serverID)
	if err != nil {
		return nil, err
	}
	return client.ListTools(ctx)
}

// ExecuteTool calls a tool on one server.
func (m *Manager) ExecuteTool(ctx context.Context, serverID, toolName string, args map[string]any) (*mcp.CallToolResult, error) {
	client, err := m.lookup(serverID)
	if err != nil {
		return nil, err
	}
	return client.CallTool(ctx, toolName, args)
}

// PingServer pings one server.
func (m *Manager) PingServer(ctx context.Context, serverID string) error {
	client, err := m.lookup(serverID)
	if err != nil {
		return err
	}
	return client.Ping(ctx)
}

// GetConnectionStatus reports the state of one server.
func (m *Manager) GetConnectionStatus(serverID string) ConnectionStatus {
	client, ok := m.Client(serverID)
	if !ok {
		return StatusDisconnected
	}
	return client.Status()
}

// OnToolListChanged registers fn for tool list changes on serverID.
func (m *Manager) OnToolListChanged(serverID string, fn func()) {
	if client, ok := m.Client(serverID); ok {
		client.OnToolListChanged(fn)
	}
}

// OnProgress registers fn for progress notifications from serverID.
func (m *Manager) OnProgress(serverID string, fn ProgressHandler) {
	if client, ok := m.Client(serverID); ok {
		client.OnProgress(fn)
	}
}

// DisconnectServer cleans up one server. Unknown IDs are ignored.
func (m *Manager) DisconnectServer(ctx context.Context, serverID string) error {
	client, ok := m.Client(serverID)
	if !ok {
		return nil
	}
	return client.Cleanup(ctx)
}

// DisconnectAllServers cleans up every server.
func (m *Manager) DisconnectAllServers(ctx context.Context) error {
	var errs []error
	for _, id := range m.ListServers() {
		if err := m.DisconnectServer(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RemoveServer disconnects and forgets serverID.
func (m *Manager) RemoveServer(ctx context.Context, serverID string) error {
	m.mu.Lock()
	client, ok := m.clients[serverID]
	delete(m.clients, serverID)
	delete(m.configs, serverID)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	err := client.Cleanup(ctx)
	m.removedMu.Lock()
	handlers := append([]func(string){}, m.removedHandlers...)
	m.removedMu.Unlock()
	for _, h := range handlers {
		h(serverID)
	}
	return err
}

// OnServerRemoved registers a callback invoked after RemoveServer.
func (m *Manager) OnServerRemoved(handler func(string)) {
	if handler == nil {
		return
	}
	m.removedMu.Lock()
	m.removedHandlers = append(m.removedHandlers, handler)
	m.removedMu.Unlock()
}
