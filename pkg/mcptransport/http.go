package mcptransport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	// DefaultConnectTimeout bounds dialing and the TLS handshake. Response
	// headers are not bounded by it: a server answering a POST with a plain
	// JSON body only sends headers once the tool call is done.
	DefaultConnectTimeout = 5 * time.Second
	// DefaultStreamReadTimeout bounds each silent gap on an event stream that
	// answers a request. An idle session is never timed out.
	DefaultStreamReadTimeout = 300 * time.Second
)

// HTTPMode selects the HTTP transport family.
type HTTPMode string

const (
	// ModeAuto uses SSE for URLs ending in /sse and otherwise tries
	// Streamable HTTP first, falling back to SSE.
	ModeAuto       HTTPMode = "auto"
	ModeSSE        HTTPMode = "sse"
	ModeStreamable HTTPMode = "streamable"
)

// CandidateSource is implemented by transports that offer several ways to
// reach the same server. Callers should attempt the handshake on each
// candidate in order until one succeeds.
type CandidateSource interface {
	Candidates() []Candidate
}

// Candidate is one concrete transport attempt.
type Candidate struct {
	Name      string
	Transport mcp.Transport
}

// HTTPTransport reaches a remote MCP server over Streamable HTTP or SSE.
type HTTPTransport struct {
	URL     string
	Headers http.Header

	ConnectTimeout time.Duration
	// StreamReadTimeout bounds silence on event streams that answer a POST.
	// Zero means DefaultStreamReadTimeout; negative disables it.
	StreamReadTimeout time.Duration

	Mode HTTPMode
	// HTTPClient is cloned and decorated; its Transport is reused when set.
	HTTPClient *http.Client
	// MaxRetries is passed to the Streamable transport.
	MaxRetries int
}

// Validate checks the URL and mode.
func (t *HTTPTransport) Validate() error {
	if strings.TrimSpace(t.URL) == "" {
		return errors.New("mcptransport: url is required")
	}
	u, err := url.Parse(t.URL)
	if err != nil {
		return fmt.Errorf("mcptransport: invalid url %q: %w", t.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("mcptransport: url %q must use http or https", t.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("mcptransport: url %q has no host", t.URL)
	}
	switch t.Mode {
	case "", ModeAuto, ModeSSE, ModeStreamable:
		return nil
	default:
		return fmt.Errorf("mcptransport: unknown http mode %q", t.Mode)
	}
}

// PreferSSE reports whether the URL or mode selects SSE first.
func (t *HTTPTransport) PreferSSE() bool {
	switch t.Mode {
	case ModeSSE:
		return true
	case ModeStreamable:
		return false
	}
	return strings.HasSuffix(strings.TrimRight(strings.TrimSpace(t.URL), "/"), "/sse")
}

// Candidates implements CandidateSource.
func (t *HTTPTransport) Candidates() []Candidate {
	client := t.client()
	sse := Candidate{Name: "sse", Transport: &mcp.SSEClientTransport{
		Endpoint:   t.URL,
		HTTPClient: client,
	}}
	streamable := Candidate{Name: "streamable", Transport: &mcp.StreamableClientTransport{
		Endpoint:   t.URL,
		HTTPClient: client,
		MaxRetries: t.MaxRetries,
	}}
	switch {
	case t.PreferSSE():
		return []Candidate{sse}
	case t.Mode == ModeStreamable:
		return []Candidate{streamable}
	default:
		return []Candidate{streamable, sse}
	}
}

// Connect implements mcp.Transport using the first candidate. Most callers
// should go through Candidates so that a failed handshake can fall back.
func (t *HTTPTransport) Connect(ctx context.Context) (mcp.Connection, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t.Candidates()[0].Transport.Connect(ctx)
}

func (t *HTTPTransport) client() *http.Client {
	connectTimeout := t.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	var base http.Client
	if t.HTTPClient != nil {
		base = *t.HTTPClient
	}
	next := base.Transport
	if next == nil {
		next = defaultRoundTripper(connectTimeout)
	}
	readTimeout := t.StreamReadTimeout
	if readTimeout == 0 {
		readTimeout = DefaultStreamReadTimeout
	}
	if readTimeout > 0 {
		next = &streamDeadline{next: next, timeout: readTimeout}
	}
	base.Transport = &headerDecorator{next: next, headers: cloneHeader(t.Headers)}
	return &base
}

func defaultRoundTripper(connectTimeout time.Duration) http.RoundTripper {
	dialer := &net.Dialer{Timeout: connectTimeout, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   connectTimeout,
		ExpectContinueTimeout: time.Second,
	}
}
