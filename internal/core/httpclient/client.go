// Package httpclient configures the HTTP client used to call the upstream API.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

// NewOutbound creates the shared outbound http client. Per-request
// deadlines are set by callers; the client-level timeout is a backstop.
func NewOutbound() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          64,
		MaxIdleConnsPerHost:   32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   30 * time.Second,
	}
}
