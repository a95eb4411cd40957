package mcpmgr

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerInitialServersAndSummaries(t *testing.T) {
	t.Parallel()

	stdioID := "stdio-example"
	streamID := "streamable-example"

	manager, err := NewManager(map[string]ServerConfig{
		stdioID: &StdioServerConfig{
			Command: "npx",
			Args:    []string{"@modelcontextprotocol/server-everything"},
		},
		streamID: &HTTPServerConfig{
			BaseServerConfig: BaseServerConfig{Timeout: 9 * time.Second},
			URL:              "https://gitmcp.io/modelcontextprotocol/go-sdk",
		},
	}, &ManagerOptions{DefaultTimeout: 5 * time.Second, DefaultCacheToolsList: true, Logger: discardLogger()})
	require.NoError(t, err)

	assert.Equal(t, []string{stdioID, streamID}, manager.ListServers())
	assert.True(t, manager.HasServer(stdioID))
	assert.False(t, manager.HasServer("nope"))

	stdioCfg, ok := AsStdio(manager.GetServerConfig(stdioID))
	require.True(t, ok)
	assert.Equal(t, stdioID, stdioCfg.Name)
	assert.Equal(t, 5*time.Second, stdioCfg.Timeout)
	assert.True(t, stdioCfg.CacheToolsList)

	httpCfg, ok := AsHTTP(manager.GetServerConfig(streamID))
	require.True(t, ok)
	assert.Equal(t, 9*time.Second, httpCfg.Timeout)

	sums := manager.GetServerSummaries()
	require.Len(t, sums, 2)
	assert.Equal(t, ServerSummary{ID: stdioID, Name: stdioID, ToolPrefix: "mcp_", Transport: TransportStdio, Status: StatusDisconnected}, sums[0])
	assert.Equal(t, TransportHTTP, sums[1].Transport)
}

func TestManagerDefaultsHonourPerServerOptOut(t *testing.T) {
	t.Parallel()

	var logged int
	manager, err := NewManager(map[string]ServerConfig{
		"inherits": &StdioServerConfig{Command: "srv"},
		"opted-out": &StdioServerConfig{
			Command: "srv",
			BaseServerConfig: BaseServerConfig{
				DisableCacheToolsList: true,
				DisableLogJSONRPC:     true,
			},
		},
	}, &ManagerOptions{
		DefaultCacheToolsList: true,
		DefaultLogJSONRPC:     true,
		RPCLogger:             func(RPCLogEvent) { logged++ },
		Logger:                discardLogger(),
	})
	require.NoError(t, err)

	inherits, ok := AsStdio(manager.GetServerConfig("inherits"))
	require.True(t, ok)
	assert.True(t, inherits.CacheToolsList)
	assert.True(t, inherits.LogJSONRPC)
	assert.NotNil(t, inherits.RPCLogger)

	optedOut, ok := AsStdio(manager.GetServerConfig("opted-out"))
	require.True(t, ok)
	assert.False(t, optedOut.CacheToolsList)
	assert.False(t, optedOut.LogJSONRPC)
	assert.Nil(t, optedOut.RPCLogger)
	assert.Nil(t, resolveRPCLogger(&optedOut.BaseServerConfig, discardLogger()))
	assert.Zero(t, logged)
}

func TestManagerRejectsBadServers(t *testing.T) {
	t.Parallel()

	_, err := NewManager(map[string]ServerConfig{"broken": &StdioServerConfig{}}, nil)
	require.ErrorIs(t, err, ErrInvalidConfig)

	manager, err := NewManager(nil, nil)
	require.NoError(t, err)
	require.NoError(t, manager.AddServer("a", &StdioServerConfig{Command: "srv"}))
	require.ErrorIs(t, manager.AddServer("a", &StdioServerConfig{Command: "srv"}), ErrInvalidConfig)
	require.ErrorIs(t, manager.AddServer("", &StdioServerConfig{Command: "srv"}), ErrInvalidConfig)
}

func TestManagerOperationsOnUnknownAndIdleServers(t *testing.T) {
	t.Parallel()

	manager, err := NewManager(map[string]ServerConfig{
		"idle": &StdioServerConfig{Command: "srv", BaseServerConfig: BaseServerConfig{Logger: discardLogger()}},
	}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = manager.ListTools(ctx, "unknown")
	require.Error(t, err)
	_, err = manager.ExecuteTool(ctx, "idle", "tool", nil)
	require.ErrorIs(t, err, ErrNotInitialized)
	require.ErrorIs(t, manager.PingServer(ctx, "idle"), ErrNotInitialized)
	assert.Equal(t, StatusDisconnected, manager.GetConnectionStatus("idle"))

	require.NoError(t, manager.DisconnectAllServers(ctx))
	require.NoError(t, manager.DisconnectServer(ctx, "unknown"))

	var removed []string
	manager.OnServerRemoved(func(id string) { removed = append(removed, id) })
	require.NoError(t, manager.RemoveServer(ctx, "idle"))
	require.NoError(t, manager.RemoveServer(ctx, "idle"))
	assert.Equal(t, []string{"idle"}, removed)
	assert.Empty(t, manager.ListServers())
}

func TestManagerConnectsStdioServer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping subprocess test in short mode")
	}
	t.Parallel()

	manager, err := NewManager(map[string]ServerConfig{"calc": calculatorStdioConfig()}, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	t.Cleanup(func() { _ = manager.DisconnectAllServers(context.Background()) })

	require.NoError(t, manager.ConnectAll(ctx))
	assert.Equal(t, StatusConnected, manager.GetConnectionStatus("calc"))
	res, err := manager.ExecuteTool(ctx, "calc", "calculator_tool", map[string]any{"expression": "3*3"})
	require.NoError(t, err)
	assert.Equal(t, "9", textOf(t, res))

	require.NoError(t, manager.DisconnectServer(ctx, "calc"))
	assert.Equal(t, StatusDisconnected, manager.GetConnectionStatus("calc"))
}
