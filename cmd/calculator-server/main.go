// Command calculator-server serves the calculator_tool MCP server over stdio
// or Streamable HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/cors"

	"github.com/vikashloomba/mcp-client-manager-go/internal/demoserver"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Stderr, os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "calculator-server: %v\n", err)
		os.Exit(1)
	}
}

// run never writes to stdout: in stdio mode it carries the protocol.
func run(ctx context.Context, stderr io.Writer, args []string) error {
	fs := flag.NewFlagSet("calculator-server", flag.ContinueOnError)
	fs.SetOutput(stderr)
	transport := fs.String("transport", "stdio", "transport to serve: stdio or http")
	addr := fs.String("addr", "127.0.0.1:8000", "listen address for -transport=http")
	path := fs.String("path", "/mcp", "HTTP path of the MCP endpoint")
	origins := fs.String("cors-origins", "", "comma separated origins allowed to call the HTTP endpoint")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	server := demoserver.New(nil)

	switch *transport {
	case "stdio":
		logger.Debug("serving calculator over stdio")
		return server.Run(ctx, &mcp.StdioTransport{})
	case "http":
		return serveHTTP(ctx, logger, server, *addr, *path, *origins)
	default:
		return fmt.Errorf("unknown transport %q", *transport)
	}
}

func serveHTTP(ctx context.Context, logger *slog.Logger, server *mcp.Server, addr, path, origins string) error {
	mux := http.NewServeMux()
	mux.Handle(path, mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil))

	var handler http.Handler = mux
	if origins != "" {
		handler = cors.New(cors.Options{
			AllowedOrigins: strings.Split(origins, ","),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowedHeaders: []string{"*"},
			ExposedHeaders: []string{"Mcp-Session-Id"},
		}).Handler(mux)
	}

	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("calculator listening", "addr", addr, "path", path)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
