package mcptransport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vikashloomba/mcp-client-manager-go/internal/demoserver"
)

const helperEnv = "MCPTRANSPORT_HELPER"

// TestMain turns the test binary into a helper child process when
// MCPTRANSPORT_HELPER is set.
func TestMain(m *testing.M) {
	switch os.Getenv(helperEnv) {
	case "":
		os.Exit(m.Run())
	case "calculator":
		os.Exit(serveCalculator(os.Getenv("MCPTRANSPORT_ENCODING")))
	case "hang":
		fmt.Fprintln(os.Stderr, "ignoring stdin")
		time.Sleep(time.Minute)
		os.Exit(0)
	default:
		os.Exit(2)
	}
}

func serveCalculator(encoding string) int {
	codec, err := NewTextCodec(encoding, DecodeStrict)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	transport := &PipeTransport{
		Reader: codec.WrapReader(os.Stdin),
		Writer: codec.WrapWriter(os.Stdout),
	}
	if err := demoserver.New(nil).Run(context.Background(), transport); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return 0
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func callCalculator(t *testing.T, transport mcp.Transport, expr string) string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{Name: "mcptransport-test", Version: "1.0.0"}, nil)
	session, err := client.Connect(ctx, transport, nil)
	require.NoError(t, err)
	defer session.Close()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      demoserver.ToolName,
		Arguments: map[string]any{"expression": expr},
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestProcessTransportCalculator(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping subprocess test in short mode")
	}
	t.Parallel()

	transport := &ProcessTransport{
		Command: os.Args[0],
		Env:     map[string]string{helperEnv: "calculator"},
		Logger:  quietLogger(),
	}
	assert.Equal(t, "4", callCalculator(t, transport, "2+2"))
}

func TestProcessTransportLatin1Pipes(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping subprocess test in short mode")
	}
	t.Parallel()

	transport := &ProcessTransport{
		Command:  os.Args[0],
		Env:      map[string]string{helperEnv: "calculator", "MCPTRANSPORT_ENCODING": "latin1"},
		Encoding: "latin1",
		Logger:   quietLogger(),
	}
	assert.Equal(t, "café", callCalculator(t, transport, `"caf" + "é"`))
}

func TestProcessTransportKillsUnresponsiveChild(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping subprocess test in short mode")
	}
	t.Parallel()

	transport := &ProcessTransport{
		Command:          os.Args[0],
		Env:              map[string]string{helperEnv: "hang"},
		TerminateTimeout: 100 * time.Millisecond,
		Logger:           quietLogger(),
	}
	conn, err := transport.Connect(context.Background())
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, conn.Close())
	assert.Less(t, time.Since(start), 10*time.Second)
	require.NoError(t, conn.Close())
}

func TestProcessTransportValidation(t *testing.T) {
	t.Parallel()

	_, err := (&ProcessTransport{}).Connect(context.Background())
	assert.Error(t, err)

	_, err = (&ProcessTransport{Command: "srv", Encoding: "bogus"}).Connect(context.Background())
	assert.Error(t, err)

	_, err = (&ProcessTransport{Command: "mcptransport-missing-binary"}).Connect(context.Background())
	assert.Error(t, err)
}

func TestMergeEnv(t *testing.T) {
	t.Parallel()

	env := mergeEnv([]string{"A=1"}, map[string]string{"C": "3", "B": "2"})
	assert.Equal(t, []string{"A=1", "B=2", "C=3"}, env)
}
