// Command mcpctl drives the MCP servers listed in a YAML config file: list
// them, list their tools, ping them, or call a tool.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	jsoniter "github.com/json-iterator/go"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/vikashloomba/mcp-client-manager-go/pkg/mcpmgr"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "mcpctl: %v\n", err)
		os.Exit(1)
	}
}

const usage = `usage: mcpctl [flags] <command> [args]

commands:
  servers                      list configured servers
  tools <server>               list the tools of a server
  ping <server>                check that a server answers
  call <server> <tool> [json]  call a tool with JSON object arguments
`

func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	fs := flag.NewFlagSet("mcpctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage, "\nflags:\n")
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "mcp.yaml", "path to the servers config file")
	envFile := fs.String("env", "", "optional .env file used for ${VAR} expansion")
	logLevel := fs.String("log-level", "", "override the config file log level")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	var envFiles []string
	if *envFile != "" {
		envFiles = append(envFiles, *envFile)
	}
	cfg, err := mcpmgr.LoadConfig(*configPath, envFiles...)
	if err != nil {
		return err
	}
	level := cfg.LogLevel
	if *logLevel != "" {
		if level, err = mcpmgr.ParseLogLevel(*logLevel); err != nil {
			return err
		}
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	manager, err := mcpmgr.NewManager(cfg.Servers, &mcpmgr.ManagerOptions{
		DefaultClientVersion: "1.0.0",
		Logger:               logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := manager.DisconnectAllServers(context.Background()); err != nil {
			logger.Warn("cleanup failed", "error", err)
		}
	}()

	switch cmd := rest[0]; cmd {
	case "servers":
		return printServers(stdout, manager)
	case "tools":
		if len(rest) != 2 {
			return errors.New("usage: mcpctl tools <server>")
		}
		return listTools(ctx, stdout, manager, cfg.ToolFilters, rest[1])
	case "ping":
		if len(rest) != 2 {
			return errors.New("usage: mcpctl ping <server>")
		}
		if err := connect(ctx, manager, rest[1]); err != nil {
			return err
		}
		if err := manager.PingServer(ctx, rest[1]); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%s: ok\n", rest[1])
		return nil
	case "call":
		if len(rest) < 3 || len(rest) > 4 {
			return errors.New("usage: mcpctl call <server> <tool> [json]")
		}
		raw := ""
		if len(rest) == 4 {
			raw = rest[3]
		}
		return callTool(ctx, stdout, manager, rest[1], rest[2], raw)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func connect(ctx context.Context, manager *mcpmgr.Manager, serverID string) error {
	if !manager.HasServer(serverID) {
		return fmt.Errorf("server %q is not configured (have %s)", serverID, strings.Join(manager.ListServers(), ", "))
	}
	return manager.ConnectToServer(ctx, serverID)
}

func printServers(w io.Writer, manager *mcpmgr.Manager) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTRANSPORT\tPREFIX")
	for _, s := range manager.GetServerSummaries() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Name, s.Transport, s.ToolPrefix)
	}
	return tw.Flush()
}

func listTools(ctx context.Context, w io.Writer, manager *mcpmgr.Manager, filters map[string]mcpmgr.ToolFilter, serverID string) error {
	if err := connect(ctx, manager, serverID); err != nil {
		return err
	}
	tools, err := manager.ListTools(ctx, serverID)
	if err != nil {
		return err
	}
	tools = filters[serverID].Apply(tools)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, tool := range tools {
		fmt.Fprintf(tw, "%s\t%s\n", tool.Name, firstLine(tool.Description))
	}
	return tw.Flush()
}

func callTool(ctx context.Context, w io.Writer, manager *mcpmgr.Manager, serverID, tool, raw string) error {
	var args map[string]any
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return fmt.Errorf("arguments must be a JSON object: %w", err)
		}
	}
	if err := connect(ctx, manager, serverID); err != nil {
		return err
	}
	result, err := manager.ExecuteTool(ctx, serverID, tool, args)
	if err != nil {
		return err
	}
	if err := printResult(w, result); err != nil {
		return err
	}
	if result.IsError {
		return fmt.Errorf("tool %s reported an error", tool)
	}
	return nil
}

func printResult(w io.Writer, result *mcp.CallToolResult) error {
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			fmt.Fprintln(w, text.Text)
			continue
		}
		data, err := json.Marshal(content)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
	}
	if result.StructuredContent != nil {
		data, err := json.MarshalIndent(result.StructuredContent, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
	}
	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
