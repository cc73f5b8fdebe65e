// Package transport carries the REST plumbing both service clients share:
// HTTP client construction with the tri-state certificate policy, non-2xx
// error mapping, and the bounded retry executor.
package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/deskbridge/deskbridge/internal/config"
	"github.com/deskbridge/deskbridge/internal/domain"
)

// NewHTTPClient builds an HTTP client honoring the certificate policy:
// default verification, a custom CA bundle, or no verification at all.
func NewHTTPClient(policy config.TLSPolicy, timeout time.Duration) (*http.Client, error) {
	tlsConfig := &tls.Config{}

	switch {
	case policy.Insecure:
		tlsConfig.InsecureSkipVerify = true
	case policy.CABundle != "":
		pem, err := os.ReadFile(policy.CABundle)
		if err != nil {
			return nil, fmt.Errorf("read CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", policy.CABundle)
		}
		tlsConfig.RootCAs = pool
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: tlsConfig,
			Proxy:           http.ProxyFromEnvironment,
		},
	}, nil
}

// StatusError is a non-2xx response from a remote service.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.Code, e.Body)
}

// maxErrBody caps how much of an error response body is kept around.
const maxErrBody = 2048

// NewStatusError drains resp's body into a bounded StatusError.
func NewStatusError(op string, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBody))
	return &StatusError{Op: op, Code: resp.StatusCode, Body: string(body)}
}

// Class buckets an error by how the retry layer treats it.
type Class int

const (
	// ClassFatal errors surface immediately.
	ClassFatal Class = iota

	// ClassTransient errors are retried with backoff: network failures,
	// timeouts, throttling and server-side 5xx responses.
	ClassTransient

	// ClassAuth errors trigger one session refresh, then one more try.
	ClassAuth

	// ClassValidation errors mean the request itself is malformed; they are
	// never retried.
	ClassValidation
)

// Classify buckets a non-nil error for the retry policy.
func Classify(err error) Class {
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusUnauthorized:
			return ClassAuth
		case se.Code == http.StatusBadRequest:
			return ClassValidation
		case se.Code == http.StatusTooManyRequests:
			return ClassTransient
		case se.Code >= 500:
			return ClassTransient
		default:
			return ClassFatal
		}
	}

	if errors.Is(err, domain.ErrSessionExpired) {
		return ClassAuth
	}
	if errors.Is(err, domain.ErrUnauthorized) {
		return ClassFatal
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return ClassTransient
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return ClassTransient
	}
	return ClassFatal
}
