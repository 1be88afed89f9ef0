// Package netutil picks the listen address of the control API.
package netutil

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
)

// ErrNoAddress is returned when neither the preferred address nor any
// fallback can be bound.
var ErrNoAddress = errors.New("no available control API bind address")

// Listen binds preferred, or the first free fallback when autoFallback is
// set. The listener is returned open so the address cannot be taken between
// the check and the server start.
func Listen(preferred string, candidates []string, autoFallback bool) (net.Listener, error) {
	preferred = strings.TrimSpace(preferred)
	if preferred != "" {
		ln, err := net.Listen("tcp", preferred)
		if err == nil {
			return ln, nil
		}
		if !autoFallback {
			return nil, fmt.Errorf("preferred bind address %s: %w", preferred, err)
		}
		slog.Warn("preferred bind address unavailable, trying fallbacks", "addr", preferred, "error", err)
	}

	seen := map[string]bool{preferred: true}
	for _, addr := range candidates {
		addr = strings.TrimSpace(addr)
		if addr == "" || seen[addr] {
			continue
		}
		seen[addr] = true
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			slog.Debug("bind address unavailable", "addr", addr, "error", err)
			continue
		}
		return ln, nil
	}
	return nil, ErrNoAddress
}
