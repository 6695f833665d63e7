// Package util provides utility functions and common error types.
package util

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the failure taxonomy. Components wrap these so callers
// can classify failures with errors.Is without depending on concrete types.
var (
	ErrResolutionAmbiguous    = errors.New("device reference is ambiguous")
	ErrResolutionNotFound     = errors.New("device not found")
	ErrConnectionTimeout      = errors.New("connection timed out")
	ErrConnectionAuthFailed   = errors.New("authentication failed")
	ErrConnectionRefused      = errors.New("connection refused")
	ErrJumpIdentityUnverified = errors.New("jump target identity unverified")
	ErrJumpNegotiationFailed  = errors.New("jump negotiation failed")
	ErrCommandExecutionFailed = errors.New("command execution failed")
	ErrPollFailed             = errors.New("health poll failed")
)

// ResolutionError reports a failed or ambiguous device resolution.
// Candidates is non-empty only for the ambiguous case.
type ResolutionError struct {
	Query      string
	Candidates []string
	Reason     string
}

func (e *ResolutionError) Error() string {
	if len(e.Candidates) > 0 {
		return fmt.Sprintf("ambiguous device reference %q: candidates %s", e.Query, strings.Join(e.Candidates, ", "))
	}
	return fmt.Sprintf("cannot resolve device reference %q: %s", e.Query, e.Reason)
}

func (e *ResolutionError) Unwrap() error {
	if len(e.Candidates) > 0 {
		return ErrResolutionAmbiguous
	}
	return ErrResolutionNotFound
}

// NewAmbiguousError creates a ResolutionError for multiple candidate aliases
func NewAmbiguousError(query string, candidates []string) *ResolutionError {
	return &ResolutionError{Query: query, Candidates: candidates}
}

// NewNotFoundError creates a ResolutionError for an unmatched reference
func NewNotFoundError(query, reason string) *ResolutionError {
	return &ResolutionError{Query: query, Reason: reason}
}

// ConnectError reports exhaustion of every connection candidate for a device.
// Last carries the most recent underlying failure for diagnostics.
type ConnectError struct {
	Alias    string
	Attempts int
	Last     error
}

func (e *ConnectError) Error() string {
	if e.Last != nil {
		return fmt.Sprintf("all %d connection attempts to %s failed, last: %v", e.Attempts, e.Alias, e.Last)
	}
	return fmt.Sprintf("all %d connection attempts to %s failed", e.Attempts, e.Alias)
}

func (e *ConnectError) Unwrap() error {
	return e.Last
}

// JumpError reports a failed jump-session negotiation or verification.
// Buffer holds a truncated tail of the last terminal transcript seen.
type JumpError struct {
	Jump     string
	Target   string
	Host     string
	Phase    string
	Buffer   string
	Identity bool // true when the failure is an identity-verification failure
	Err      error
}

func (e *JumpError) Error() string {
	msg := fmt.Sprintf("jump via %s to %s (%s) failed in phase %s", e.Jump, e.Target, e.Host, e.Phase)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *JumpError) Unwrap() error {
	if e.Identity {
		return ErrJumpIdentityUnverified
	}
	return ErrJumpNegotiationFailed
}

// ExecError reports a command failure on an already-established session,
// distinct from ConnectError so callers can tell "unreachable" from
// "reachable but the command failed".
type ExecError struct {
	Alias   string
	Command string
	Err     error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("command %q on %s failed: %v", e.Command, e.Alias, e.Err)
}

func (e *ExecError) Unwrap() error {
	return ErrCommandExecutionFailed
}

// PollError reports a failed health poll. Non-fatal: the monitor records a
// sentinel sample and continues.
type PollError struct {
	Alias string
	Host  string
	Err   error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll of %s (%s) failed: %v", e.Alias, e.Host, e.Err)
}

func (e *PollError) Unwrap() error {
	return ErrPollFailed
}

// Truncate shortens s to at most n bytes, marking the cut.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
