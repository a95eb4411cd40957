package mcptransport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func candidateNames(t *HTTPTransport) []string {
	var names []string
	for _, c := range t.Candidates() {
		names = append(names, c.Name)
	}
	return names
}

func TestHTTPTransportCandidates(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"streamable", "sse"}, candidateNames(&HTTPTransport{URL: "http://localhost/mcp"}))
	assert.Equal(t, []string{"sse"}, candidateNames(&HTTPTransport{URL: "http://localhost:8000/sse"}))
	assert.Equal(t, []string{"sse"}, candidateNames(&HTTPTransport{URL: "http://localhost:8000/sse/"}))
	assert.Equal(t, []string{"sse"}, candidateNames(&HTTPTransport{URL: "http://localhost/mcp", Mode: ModeSSE}))
	assert.Equal(t, []string{"streamable"}, candidateNames(&HTTPTransport{URL: "http://localhost/sse", Mode: ModeStreamable}))
}

func TestHTTPTransportValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, (&HTTPTransport{URL: "https://example.com/mcp"}).Validate())
	for _, bad := range []*HTTPTransport{
		{},
		{URL: "example.com/mcp"},
		{URL: "ws://example.com"},
		{URL: "http://"},
		{URL: "http://example.com", Mode: "grpc"},
	} {
		assert.Error(t, bad.Validate(), bad.URL)
	}
}

func TestHTTPTransportInjectsHeaders(t *testing.T) {
	t.Parallel()

	var seen http.Header
	base := &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		seen = req.Header.Clone()
		return &http.Response{StatusCode: http.StatusNoContent, Body: http.NoBody, Request: req}, nil
	})}
	tr := &HTTPTransport{
		URL:        "http://example.com/mcp",
		Headers:    HeaderFromMap(map[string]string{"Authorization": "Bearer token", "X-Tenant": "blue"}),
		HTTPClient: base,
	}
	client := tr.client()
	assert.NotSame(t, base, client)

	req, err := http.NewRequest(http.MethodGet, tr.URL, nil)
	require.NoError(t, err)
	req.Header.Set("X-Tenant", "red")
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer token", seen.Get("Authorization"))
	assert.Equal(t, "blue", seen.Get("X-Tenant"))
	assert.Equal(t, "red", req.Header.Get("X-Tenant"))
}

func TestHTTPTransportSSEFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	tr := &HTTPTransport{URL: srv.URL + "/sse", HTTPClient: srv.Client()}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := tr.Connect(ctx)
	assert.Error(t, err)
}

func TestStreamReadTimeoutBoundsRequestStreams(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	tr := &HTTPTransport{URL: srv.URL, HTTPClient: srv.Client(), StreamReadTimeout: 50 * time.Millisecond}
	client := tr.client()

	resp, err := client.Post(srv.URL, "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	_, err = io.ReadAll(resp.Body)
	require.ErrorIs(t, err, ErrStreamIdle)
}

func TestStreamReadTimeoutLeavesStandaloneStreamOpen(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-release
		_, _ = io.WriteString(w, "data: late\n\n")
	}))
	defer srv.Close()

	tr := &HTTPTransport{URL: srv.URL, HTTPClient: srv.Client(), StreamReadTimeout: 20 * time.Millisecond}
	resp, err := tr.client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	time.AfterFunc(200*time.Millisecond, func() { close(release) })
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "data: late\n\n", string(body))
}

func TestConnectTimeoutDoesNotBoundSlowResponses(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, "{}")
	}))
	defer srv.Close()

	// No HTTPClient: the default round tripper built from ConnectTimeout is used.
	tr := &HTTPTransport{URL: srv.URL, ConnectTimeout: 20 * time.Millisecond}
	resp, err := tr.client().Post(srv.URL, "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(body))
}
