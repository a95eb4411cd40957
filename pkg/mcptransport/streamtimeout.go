package mcptransport

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sync/atomic"
	"time"
)

// ErrStreamIdle is returned when an event stream carrying the answer to a
// request stays silent for longer than the stream read timeout.
var ErrStreamIdle = errors.New("mcptransport: no data from server within stream read timeout")

// streamDeadline bounds the gaps between chunks of event streams returned for
// POST requests. The standalone GET stream is left alone: it is idle whenever
// the server has nothing to announce, and that is not a failure.
type streamDeadline struct {
	next    http.RoundTripper
	timeout time.Duration
}

func (s *streamDeadline) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := s.next.RoundTrip(req)
	if err != nil || req.Method != http.MethodPost || !isEventStream(resp) {
		return resp, err
	}
	resp.Body = &idleBody{body: resp.Body, timeout: s.timeout}
	return resp, nil
}

func isEventStream(resp *http.Response) bool {
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	return err == nil && mediaType == "text/event-stream"
}

// idleBody closes the underlying body when a single Read waits longer than
// timeout.
type idleBody struct {
	body    io.ReadCloser
	timeout time.Duration
	expired atomic.Bool
}

func (b *idleBody) Read(p []byte) (int, error) {
	timer := time.AfterFunc(b.timeout, func() {
		b.expired.Store(true)
		_ = b.body.Close()
	})
	n, err := b.body.Read(p)
	if !timer.Stop() && b.expired.Load() {
		return n, fmt.Errorf("%w (%s)", ErrStreamIdle, b.timeout)
	}
	return n, err
}

func (b *idleBody) Close() error {
	return b.body.Close()
}
