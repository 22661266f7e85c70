// Package httpclient builds the shared HTTP client. There is no
// client-level timeout: bulk exports stream for minutes, so request
// lifetime is governed by context while the transport bounds dial and
// header latency.
package httpclient

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

func Default() *http.Client {
	tr := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:       &tls.Config{InsecureSkipVerify: false},
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          64,
		MaxConnsPerHost:       8,
		MaxIdleConnsPerHost:   4,
		ResponseHeaderTimeout: 30 * time.Second,
		IdleConnTimeout:       30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{Transport: tr}
}
