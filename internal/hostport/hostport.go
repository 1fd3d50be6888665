// Package hostport parses the blob server address operators type into
// settings.
//
// Addresses take the form host[:port]. A missing port selects the HTTP
// default. Anything else that does not split cleanly into a non-empty host and
// a decimal port in range yields an invalid HostPort rather than an error, so
// callers can keep the raw value around and report it when an upload is
// attempted.
package hostport

import (
	"net"
	"strconv"
	"strings"
)

// DefaultPort is used when the address carries no port.
const DefaultPort = 80

// HostPort is a parsed server address. The zero value is invalid.
type HostPort struct {
	raw  string
	host string
	port int
}

// Parse splits value into host and port. It never fails; check Valid.
func Parse(value string) HostPort {
	hp := HostPort{raw: value}
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return hp
	}

	parts := strings.Split(trimmed, ":")
	switch len(parts) {
	case 1:
		hp.host = parts[0]
		hp.port = DefaultPort
	case 2:
		if parts[0] == "" {
			return hp
		}
		if !allDigits(parts[1]) {
			return hp
		}
		port, err := strconv.Atoi(parts[1])
		if err != nil || port < 1 || port > 65535 {
			return hp
		}
		hp.host = parts[0]
		hp.port = port
	default:
		return hp
	}
	return hp
}

// Host returns the host part, or "" when the address is invalid.
func (hp HostPort) Host() string { return hp.host }

// Port returns the port, or 0 when the address is invalid.
func (hp HostPort) Port() int { return hp.port }

// Valid reports whether the address parsed into a usable host and port.
func (hp HostPort) Valid() bool { return hp.host != "" && hp.port > 0 }

// Raw returns the value Parse was given.
func (hp HostPort) Raw() string { return hp.raw }

// String returns host:port for valid addresses and "" otherwise.
func (hp HostPort) String() string {
	if !hp.Valid() {
		return ""
	}
	return net.JoinHostPort(hp.host, strconv.Itoa(hp.port))
}

// URL builds an http URL for path on this server. Invalid addresses yield "".
func (hp HostPort) URL(path string) string {
	if !hp.Valid() {
		return ""
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return "http://" + hp.String() + path
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
