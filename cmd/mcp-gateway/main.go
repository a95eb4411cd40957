// Command mcp-gateway exposes every server of a YAML config file through one
// Streamable MCP endpoint.
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

	"github.com/rs/cors"

	mcpgateway "github.com/vikashloomba/mcp-client-manager-go/pkg/mcp-gateway"
	"github.com/vikashloomba/mcp-client-manager-go/pkg/mcpmgr"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Stderr, os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "mcp-gateway: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stderr io.Writer, args []string) error {
	fs := flag.NewFlagSet("mcp-gateway", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "mcp.yaml", "path to the servers config file")
	envFile := fs.String("env", "", "optional .env file used for ${VAR} expansion")
	addr := fs.String("addr", "", "listen address, overrides gateway.addr")
	origins := fs.String("cors-origins", "", "comma separated origins allowed to call the gateway")
	namespace := fs.String("namespace", "server", "tool naming: server (prefix+server__tool) or prefix (prefix+tool)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}
	cfg, err := mcpmgr.LoadConfig(*configPath, envFiles...)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	manager, err := mcpmgr.NewManager(cfg.Servers, &mcpmgr.ManagerOptions{Logger: logger})
	if err != nil {
		return err
	}

	opts := &mcpgateway.Options{
		Addr:        cfg.Gateway.Addr,
		Path:        cfg.Gateway.Path,
		ToolFilters: cfg.ToolFilters,
		AutoConnect: true,
		Logger:      logger,
	}
	if *addr != "" {
		opts.Addr = *addr
	}
	switch *namespace {
	case "server":
	case "prefix":
		opts.Namespace = mcpgateway.ToolPrefixNamespace{}
	default:
		return fmt.Errorf("unknown namespace %q", *namespace)
	}
	if *origins != "" {
		opts.CORS = &cors.Options{
			AllowedOrigins: strings.Split(*origins, ","),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowedHeaders: []string{"*"},
			ExposedHeaders: []string{"Mcp-Session-Id"},
		}
	}

	gateway, err := mcpgateway.NewGateway(manager, opts)
	if err != nil {
		_ = manager.DisconnectAllServers(context.Background())
		return err
	}
	gateway.ServeMux().HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	for _, s := range manager.GetServerSummaries() {
		logger.Info("upstream server", "id", s.ID, "transport", s.Transport, "status", s.Status)
	}

	serveErr := gateway.ListenAndServe(ctx)
	return errors.Join(serveErr, gateway.Close(context.Background()))
}
