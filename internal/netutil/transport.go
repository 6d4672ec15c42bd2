package netutil

import (
	"crypto/tls"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// NewAPITransport creates the HTTP transport used for Emporia cloud API
// calls. Connection pooling is tuned for a small number of hosts hit on a
// fixed polling cadence.
func NewAPITransport(logger *logrus.Logger) *http.Transport {
	transport := &http.Transport{
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		TLSHandshakeTimeout:   10 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   4,
	}

	logger.Debug("API transport ready")
	return transport
}

// NewAPIClient creates an HTTP client for the Emporia cloud API. The
// timeout bounds the whole request so a slow remote call can never stall
// a poll cycle indefinitely.
func NewAPIClient(timeout time.Duration, logger *logrus.Logger) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewAPITransport(logger),
	}
}
