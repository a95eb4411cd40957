package mcptransport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// DefaultTerminateTimeout is how long Close waits for a child to exit after
// its stdin is closed before killing it.
const DefaultTerminateTimeout = 5 * time.Second

// ProcessTransport launches an MCP server as a child process and speaks
// newline-delimited JSON-RPC over its stdin and stdout. Each Connect starts a
// new process owned by the returned connection; closing the connection stops
// the process.
type ProcessTransport struct {
	Command string
	Args    []string
	// Env entries are layered on top of the parent environment.
	Env map[string]string
	Dir string

	// Encoding names the text encoding of the pipes. Defaults to utf-8.
	Encoding string
	// DecodeErrors controls undecodable server output. Defaults to strict.
	DecodeErrors DecodeErrorPolicy

	TerminateTimeout time.Duration
	Logger           *slog.Logger
}

// Validate reports configuration errors without starting anything.
func (t *ProcessTransport) Validate() error {
	if t.Command == "" {
		return errors.New("mcptransport: command is required")
	}
	_, err := NewTextCodec(t.Encoding, t.DecodeErrors)
	return err
}

// Connect implements mcp.Transport.
func (t *ProcessTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	codec, _ := NewTextCodec(t.Encoding, t.DecodeErrors)
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.Command(t.Command, t.Args...)
	cmd.Dir = t.Dir
	if len(t.Env) > 0 {
		cmd.Env = mergeEnv(os.Environ(), t.Env)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("mcptransport: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("mcptransport: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("mcptransport: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("mcptransport: start %q: %w", t.Command, err)
	}
	logger = logger.With("pid", cmd.Process.Pid)
	logger.Debug("started MCP subprocess", "command", t.Command, "encoding", codec.Name())
	go drainStderr(stderr, logger)

	grace := t.TerminateTimeout
	if grace <= 0 {
		grace = DefaultTerminateTimeout
	}
	proc := &process{cmd: cmd, stdin: stdin, grace: grace, logger: logger}

	return newPipeConn(codec.WrapReader(stdout), codec.WrapWriter(stdin), proc.stop), nil
}

type process struct {
	cmd    *exec.Cmd
	stdin  io.Closer
	grace  time.Duration
	logger *slog.Logger
}

// stop closes stdin, waits for a graceful exit and kills the child once the
// grace period elapses.
func (p *process) stop() error {
	_ = p.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- p.cmd.Wait() }()

	timer := time.NewTimer(p.grace)
	defer timer.Stop()
	select {
	case err := <-done:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			p.logger.Debug("MCP subprocess exited", "status", exitErr.String())
			return nil
		}
		return err
	case <-timer.C:
		p.logger.Warn("MCP subprocess did not exit gracefully, killing")
		_ = p.cmd.Process.Kill()
		<-done
		return nil
	}
}

func drainStderr(r io.Reader, logger *slog.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		logger.Debug("MCP subprocess stderr", "line", scanner.Text())
	}
}

func mergeEnv(base []string, overrides map[string]string) []string {
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := append([]string(nil), base...)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, overrides[k]))
	}
	return env
}
