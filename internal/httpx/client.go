// Package httpx builds the HTTP client used for part and object transfers.
package httpx

import (
	"crypto/tls"
	"net/http"
	"os"
	"time"

	"golang.org/x/net/http2"
)

// NewTransferClient creates an HTTP client tuned for many concurrent PUTs of
// large bodies to a presigned-URL endpoint.
//
// Key choices:
//   - Large connection pool: a batch keeps up to MaxConcurrentUploads PUTs
//     in flight against one host.
//   - No client-level timeout: a 10 GiB part set on a slow link is not an
//     error. Cancellation and deadlines come from per-request contexts.
//   - Compression disabled: upload bodies are raw object bytes.
//   - HTTP/2 on by default for multiplexing; DISABLE_HTTP2=true forces
//     HTTP/1.1 when a middlebox misbehaves.
func NewTransferClient() *http.Client {
	tr := &http.Transport{
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   64,
		MaxConnsPerHost:       64,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   30 * time.Second,
		ExpectContinueTimeout: 5 * time.Second,
		DisableCompression:    true,
		ForceAttemptHTTP2:     true,
	}

	_ = http2.ConfigureTransport(tr)

	if os.Getenv("DISABLE_HTTP2") == "true" {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) http.RoundTripper)
	}

	return &http.Client{
		Transport: tr,
		Timeout:   0,
	}
}
