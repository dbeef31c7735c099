package netutil

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
)

// Listen binds the control API. It tries preferred first and, when that is
// taken and autoFallback is set, each candidate in order. The returned
// listener is already bound, so no other process can take the port between
// selection and serving.
func Listen(preferred string, candidates []string, autoFallback bool) (net.Listener, error) {
	var tried []string
	if preferred != "" {
		ln, err := net.Listen("tcp", preferred)
		if err == nil {
			return ln, nil
		}
		if !autoFallback {
			return nil, fmt.Errorf("bind %s: %w (port fallback disabled)", preferred, err)
		}
		slog.Warn("control API address busy, trying candidates", "addr", preferred, "error", err)
		tried = append(tried, preferred)
	}

	for _, addr := range candidates {
		if addr == preferred {
			continue
		}
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
		slog.Debug("control API candidate busy", "addr", addr, "error", err)
		tried = append(tried, addr)
	}

	if len(tried) == 0 {
		return nil, errors.New("no control API bind address configured")
	}
	return nil, fmt.Errorf("no available control API bind address (tried %s)", strings.Join(tried, ", "))
}
