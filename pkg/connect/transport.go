// Package connect implements the connection strategy engine: it turns a
// resolved device record into an ordered list of (transport, host)
// candidates and tries each until one yields a live CLI session.
package connect

import (
	"context"
	"net"
	"strconv"
	"strings"

	"github.com/switchyard-net/switchyard/pkg/registry"
)

// TransportKind identifies one way of reaching a device.
type TransportKind string

const (
	TransportSSH       TransportKind = "ssh"
	TransportTelnet    TransportKind = "telnet"
	TransportLegacySSH TransportKind = "legacy-ssh"
	TransportJump      TransportKind = "jump"
)

// Candidate is one (transport, host) pair to try. Built fresh per request,
// never persisted.
type Candidate struct {
	Kind TransportKind
	Host string
}

// Session is a live CLI session on a device.
type Session interface {
	// Run executes one command and returns its output with the echoed
	// command and trailing prompt stripped.
	Run(command string) (string, error)
	// Enable elevates privilege with the given secret. Callers treat a
	// failure as non-fatal.
	Enable(secret string) error
	// Prompt returns the detected device prompt line.
	Prompt() string
	Close() error
}

// Dialer opens a session over one transport kind.
type Dialer interface {
	Kind() TransportKind
	Dial(ctx context.Context, host string, rec *registry.DeviceRecord) (Session, error)
}

// attempt is the typed outcome of one candidate try. The engine folds over
// a list of these instead of using control flow for expected failures.
type attempt struct {
	cand Candidate
	err  error
}

// isLoopback reports whether host is a loopback-style address. Loopback
// candidates are permanently excluded from candidate lists.
func isLoopback(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "localhost" {
		return true
	}
	if ip := net.ParseIP(h); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

// hostPort joins host with the record's port, falling back to def.
func hostPort(host string, rec *registry.DeviceRecord, def int) string {
	port := rec.Port
	if port == 0 {
		port = def
	}
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
