package mcpmgr

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ProgressHandler receives progress notifications a server sends while it
// works on a request that carried a progress token.
type ProgressHandler func(context.Context, *mcp.ProgressNotificationParams)

type progressTokenKey struct{}

// WithProgressToken returns a context whose tool calls ask the server to
// report progress against token. Only string and integer tokens are valid on
// the wire; other values are ignored.
func WithProgressToken(ctx context.Context, token any) context.Context {
	switch token.(type) {
	case string, int, int32, int64:
		return context.WithValue(ctx, progressTokenKey{}, token)
	default:
		return ctx
	}
}

func progressTokenFrom(ctx context.Context) any {
	return ctx.Value(progressTokenKey{})
}

// attachProgressToken copies the context's token onto params. SetProgressToken
// writes into the existing meta map, so one is allocated first.
func attachProgressToken(ctx context.Context, params *mcp.CallToolParams) {
	token := progressTokenFrom(ctx)
	if token == nil {
		return
	}
	if params.GetMeta() == nil {
		params.SetMeta(map[string]any{})
	}
	params.SetProgressToken(token)
}
