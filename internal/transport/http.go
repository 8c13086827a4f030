// Package transport builds the HTTP client shared by the remote speech services
package transport

import (
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// NewHTTPClient returns a pooled client with HTTP/2 enabled.
// Per-request deadlines come from the caller's context; timeout is an outer bound.
func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          16,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	_ = http2.ConfigureTransport(tr)

	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}
}
