package api

import (
	"net/http"
	"sync"
)

// ResponseInfo captures the status and headers of an HTTP response so the
// executor can classify errors that the GraphQL client has already consumed.
type ResponseInfo struct {
	StatusCode int
	Header     http.Header
}

// recordingTransport remembers the most recent response on its way through.
// The executor issues one query at a time, so the last response always
// belongs to the call being classified.
type recordingTransport struct {
	base http.RoundTripper

	mu   sync.Mutex
	last *ResponseInfo
}

func (t *recordingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	resp, err := base.RoundTrip(req)
	if resp != nil {
		t.mu.Lock()
		t.last = &ResponseInfo{
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
		}
		t.mu.Unlock()
	}
	return resp, err
}

// Last returns the most recently recorded response, or nil.
func (t *recordingTransport) Last() *ResponseInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}
