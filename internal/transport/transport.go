// Package transport builds the pooled HTTP transports shared by the page and
// asset fetchers.
package transport

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// New returns a pooled transport. insecureTLS disables certificate
// verification and must only be set for sources whose media hosts serve
// broken chains.
func New(insecureTLS bool) *http.Transport {
	t := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}
	if insecureTLS {
		t.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // opt-in per source
		}
	}
	return t
}
