package mcpgateway

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vikashloomba/mcp-client-manager-go/pkg/mcpmgr"
)

type progressSink interface {
	NotifyProgress(context.Context, *mcp.ProgressNotificationParams) error
}

// progressTracker relays upstream progress notifications to the downstream
// session whose tool call caused them. Each tracked call gets its own
// upstream token, so two downstream clients reusing the same token never see
// each other's updates.
type progressTracker struct {
	counter atomic.Uint64
	seq     atomic.Uint64

	mu     sync.RWMutex
	routes map[string]progressRoute

	logger       *slog.Logger
	cleanupGrace time.Duration
}

type progressRoute struct {
	// ctx is the downstream request context; notifications sent with it
	// travel on that request's response stream.
	ctx   context.Context
	sink  progressSink
	token any
	seq   uint64
}

// progressCleanupGrace keeps a route alive briefly after the call returns so
// notifications racing the result are still delivered.
const progressCleanupGrace = 250 * time.Millisecond

func newProgressTracker(logger *slog.Logger) *progressTracker {
	return &progressTracker{
		routes:       make(map[string]progressRoute),
		logger:       logger,
		cleanupGrace: progressCleanupGrace,
	}
}

// track registers a downstream call that asked for progress under token and
// returns the token to send upstream along with a release func.
func (pt *progressTracker) track(ctx context.Context, serverID string, sink progressSink, token any) (string, func()) {
	upstream := fmt.Sprintf("gw/%s/%d", serverID, pt.counter.Add(1))
	key := progressKey(serverID, upstream)
	seq := pt.seq.Add(1)
	pt.mu.Lock()
	pt.routes[key] = progressRoute{ctx: ctx, sink: sink, token: token, seq: seq}
	pt.mu.Unlock()
	return upstream, func() { pt.removeLater(key, seq) }
}

func (pt *progressTracker) removeLater(key string, seq uint64) {
	if pt.cleanupGrace <= 0 {
		pt.removeIfMatch(key, seq)
		return
	}
	time.AfterFunc(pt.cleanupGrace, func() {
		pt.removeIfMatch(key, seq)
	})
}

func (pt *progressTracker) removeIfMatch(key string, seq uint64) {
	pt.mu.Lock()
	if current, ok := pt.routes[key]; ok && current.seq == seq {
		delete(pt.routes, key)
	}
	pt.mu.Unlock()
}

func (pt *progressTracker) lookup(serverID string, token any) (progressRoute, bool) {
	normalized, ok := normalizeProgressToken(token)
	if !ok {
		return progressRoute{}, false
	}
	pt.mu.RLock()
	route, ok := pt.routes[progressKey(serverID, normalized)]
	pt.mu.RUnlock()
	return route, ok
}

// forward returns the handler the gateway registers on serverID.
func (pt *progressTracker) forward(serverID string) mcpmgr.ProgressHandler {
	return func(_ context.Context, params *mcp.ProgressNotificationParams) {
		route, ok := pt.lookup(serverID, params.ProgressToken)
		if !ok {
			pt.logger.Debug("dropping progress for unknown token", "server", serverID, "token", params.ProgressToken)
			return
		}
		out := *params
		out.ProgressToken = route.token
		if err := route.sink.NotifyProgress(route.ctx, &out); err != nil {
			pt.logger.Debug("relaying progress failed", "server", serverID, "error", err)
		}
	}
}

func progressKey(serverID, token string) string {
	return serverID + "|" + token
}

// normalizeProgressToken renders a token decoded from JSON as the string the
// tracker keyed it under. Integral floats lose their fraction.
func normalizeProgressToken(token any) (string, bool) {
	switch v := token.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return "", false
		}
		if math.Trunc(v) == v {
			return fmt.Sprintf("%d", int64(v)), true
		}
		return fmt.Sprintf("%g", v), true
	default:
		return fmt.Sprintf("%v", v), true
	}
}
