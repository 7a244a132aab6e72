package threatlens

import (
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

// maxResponseBytes caps how much of an external response is read.
const maxResponseBytes = 10 * 1024 * 1024

// sharedTransport pools connections for all outbound calls (scanner
// probes, AI provider). Safe for concurrent use.
var sharedTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ForceAttemptHTTP2:     true,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
}

var (
	scanClientOnce sync.Once
	aiClientOnce   sync.Once
	scanClient     *http.Client
	aiClient       *http.Client
)

// ScanClient returns the shared client for passive scanner probes.
// Redirects are not followed: the scanner inspects the first response.
func ScanClient() *http.Client {
	scanClientOnce.Do(func() {
		scanClient = &http.Client{
			Timeout:   15 * time.Second,
			Transport: sharedTransport,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	})
	return scanClient
}

// AIClient returns the shared client for AI provider calls, with a
// generous timeout for model latency.
func AIClient() *http.Client {
	aiClientOnce.Do(func() {
		aiClient = &http.Client{
			Timeout:   60 * time.Second,
			Transport: sharedTransport,
		}
	})
	return aiClient
}

// readBody reads a response body with a hard size cap.
func readBody(r io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxResponseBytes))
}

// drainAndClose drains a response body so the connection returns to
// the pool.
func drainAndClose(body io.ReadCloser) {
	if body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(body, maxResponseBytes))
		_ = body.Close()
	}
}
