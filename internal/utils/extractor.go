package utils

import (
	"net"
	"net/http"
	"strings"
)

// FallbackIdentity is used when a request carries no usable address.
const FallbackIdentity = "127.0.0.1"

// Extractor represents the way we will extract a key from an HTTP request. It must not read the body
// of the request.
type Extractor interface {
	Extract(r *http.Request) (string, error)
}

type clientAddressExtractor struct {
	headers []string
}

// NewClientAddressExtractor creates an extractor that identifies the client by its address. The first
// entry of X-Forwarded-For wins, then X-Real-IP, then the peer address of the connection.
func NewClientAddressExtractor() Extractor {
	return &clientAddressExtractor{headers: []string{"X-Forwarded-For", "X-Real-IP"}}
}

// Extract never fails; a request without any address is keyed by FallbackIdentity.
func (h *clientAddressExtractor) Extract(r *http.Request) (string, error) {
	for _, key := range h.headers {
		// a forwarded-for chain lists the original client first
		first, _, _ := strings.Cut(r.Header.Get(key), ",")
		if value := strings.TrimSpace(first); value != "" {
			return value, nil
		}
	}

	if addr := strings.TrimSpace(r.RemoteAddr); addr != "" {
		if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
			return host, nil
		}
		return addr, nil
	}

	return FallbackIdentity, nil
}
