// Package jump drives multi-hop device access: it negotiates an outbound
// shell from a live session on an intermediate jump device toward the real
// target, verifies the target's identity, runs the command, and sanitizes
// the captured transcript.
package jump

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/switchyard-net/switchyard/pkg/config"
	"github.com/switchyard-net/switchyard/pkg/connect"
	"github.com/switchyard-net/switchyard/pkg/registry"
	"github.com/switchyard-net/switchyard/pkg/util"
)

// Phase is the state of one jump attempt. Carried on JumpError for
// diagnostics.
type Phase string

const (
	PhaseConnected        Phase = "Connected"
	PhaseNegotiating      Phase = "Negotiating"
	PhaseAwaitingPassword Phase = "AwaitingPassword"
	PhasePromptFound      Phase = "PromptFound"
	PhaseIdentityVerified Phase = "IdentityVerified"
	PhaseExecuting        Phase = "Executing"
	PhaseClosed           Phase = "Closed"
)

// Connector opens a direct session to a device. Satisfied by
// *connect.Engine; the jump device itself is always reached over non-jump
// transports.
type Connector interface {
	Connect(ctx context.Context, rec *registry.DeviceRecord) (connect.Session, error)
}

// terminalSession is the subset of connect.CLISession the manager needs:
// the raw stream plus the detected prompt.
type terminalSession interface {
	connect.Session
	Terminal() connect.Terminal
}

// Manager implements connect.JumpRunner.
type Manager struct {
	cfg       *config.Config
	connector Connector
}

func NewManager(cfg *config.Config, connector Connector) *Manager {
	return &Manager{cfg: cfg, connector: connector}
}

// RunThrough connects to the jump device and tries each of the target's
// candidate hosts in turn until one hop yields verified, sanitized output.
func (m *Manager) RunThrough(ctx context.Context, jumpRec, target *registry.DeviceRecord, command string) (string, error) {
	session, err := m.connector.Connect(ctx, jumpRec)
	if err != nil {
		return "", &util.JumpError{
			Jump:   jumpRec.Alias,
			Target: target.Alias,
			Phase:  string(PhaseConnected),
			Err:    err,
		}
	}
	defer session.Close()

	ts, ok := session.(terminalSession)
	if !ok {
		return "", &util.JumpError{
			Jump:   jumpRec.Alias,
			Target: target.Alias,
			Phase:  string(PhaseConnected),
			Err:    fmt.Errorf("session type %T exposes no raw terminal", session),
		}
	}

	log := util.WithDevice(target.Alias).WithField("jump", jumpRec.Alias)
	var lastErr error
	for _, host := range target.Hosts() {
		h := &hop{
			cfg:        m.cfg,
			term:       ts.Terminal(),
			jumpRec:    jumpRec,
			jumpPrompt: session.Prompt(),
			target:     target,
			host:       host,
			phase:      PhaseConnected,
			readWindow: 500 * time.Millisecond,
		}
		out, err := h.run(command)
		if err == nil {
			return out, nil
		}
		log.WithField("host", host).Debugf("hop failed: %v", err)
		lastErr = err
	}
	if lastErr == nil {
		lastErr = &util.JumpError{
			Jump:   jumpRec.Alias,
			Target: target.Alias,
			Phase:  string(PhaseNegotiating),
			Err:    fmt.Errorf("no candidate hosts for %s", target.Alias),
		}
	}
	return "", lastErr
}

// hop is one jump attempt toward one target host over the live jump
// terminal. It owns the accumulated buffer and the phase.
type hop struct {
	cfg        *config.Config
	term       connect.Terminal
	jumpRec    *registry.DeviceRecord
	jumpPrompt string
	target     *registry.DeviceRecord
	host       string
	phase      Phase
	readWindow time.Duration

	buf  strings.Builder
	sent []string // negotiation commands, stripped from the transcript later
}

func (h *hop) fail(identity bool, err error) *util.JumpError {
	return &util.JumpError{
		Jump:     h.jumpRec.Alias,
		Target:   h.target.Alias,
		Host:     h.host,
		Phase:    string(h.phase),
		Buffer:   util.Truncate(h.buf.String(), 2000),
		Identity: identity,
		Err:      err,
	}
}

func (h *hop) run(command string) (string, error) {
	prompt, err := h.negotiate(true)
	if err != nil {
		// Retry once with the plain command; some jump hosts reject the
		// algorithm hints outright.
		prompt, err = h.negotiate(false)
	}
	if err != nil {
		return "", h.fail(false, fmt.Errorf("%w: %v", util.ErrJumpNegotiationFailed, err))
	}
	h.phase = PhasePromptFound

	if err := h.verifyIdentity(prompt); err != nil {
		return "", err
	}
	h.phase = PhaseIdentityVerified

	out, err := h.execute(command, prompt)
	if err != nil {
		return "", h.fail(false, err)
	}
	h.phase = PhaseClosed
	return out, nil
}

// send issues a negotiation command and remembers it for sanitization.
func (h *hop) send(line string) error {
	h.sent = append(h.sent, line)
	return h.term.Send(line)
}

// negotiate launches the outbound shell and drives host-key confirmation
// and password prompts until a foreign prompt settles.
func (h *hop) negotiate(legacyHints bool) (string, error) {
	h.phase = PhaseNegotiating
	username, password := hopCredentials(h.cfg, h.target)

	if err := h.send(shellCommand(username, h.host, h.cfg, legacyHints)); err != nil {
		return "", err
	}

	deadline := time.Now().Add(h.cfg.AuthTimeout)
	passwordSends := 0
	confirmedKey := false
	nudged := false

	for time.Now().Before(deadline) {
		chunk, err := h.term.ReadChunk(h.readWindow)
		if err != nil {
			return "", fmt.Errorf("stream closed during negotiation: %w", err)
		}
		h.buf.WriteString(chunk)
		text := h.buf.String()
		last := util.LastNonEmptyLine(text)

		if util.ContainsFold(text, "permission denied") || util.ContainsFold(text, "access denied") {
			return "", fmt.Errorf("authentication denied by %s", h.host)
		}

		switch {
		case !confirmedKey && hostKeyPrompt(last):
			if err := h.send("yes"); err != nil {
				return "", err
			}
			confirmedKey = true
		case passwordSends < 3 && util.ContainsFold(last, "assword"):
			h.phase = PhaseAwaitingPassword
			if err := h.term.SendRaw(password + "\n"); err != nil {
				return "", err
			}
			passwordSends++
			h.phase = PhaseNegotiating
		default:
			if p := h.detectPrompt(text); p != "" {
				return p, nil
			}
			if chunk == "" && !nudged {
				if err := h.send(""); err != nil {
					return "", err
				}
				nudged = true
			}
		}
	}

	// One last blank line and re-scan before giving up on this variant.
	if err := h.send(""); err != nil {
		return "", err
	}
	if chunk, err := h.term.ReadChunk(h.readWindow); err == nil {
		h.buf.WriteString(chunk)
	}
	if p := h.detectPrompt(h.buf.String()); p != "" {
		return p, nil
	}
	return "", fmt.Errorf("no target prompt from %s within %s", h.host, h.cfg.AuthTimeout)
}

// detectPrompt scans the buffer most-recent-line-first for a privileged
// prompt line that is not the jump device's own.
func (h *hop) detectPrompt(buffer string) string {
	lines := util.Lines(buffer)
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || !strings.HasSuffix(line, "#") {
			continue
		}
		if line == h.jumpPrompt {
			continue
		}
		return line
	}
	return ""
}

// verifyIdentity checks the hop really landed on the intended device.
// Relax settings win over strict ones; strict mode disables every
// acceptance path except the prompt substring.
func (h *hop) verifyIdentity(prompt string) error {
	log := util.WithDevice(h.target.Alias).WithField("host", h.host)

	if h.target.RelaxPrompt || h.cfg.AliasRelaxed(h.target.Alias) {
		return nil
	}
	strict := h.target.StrictPrompt || h.cfg.AliasStrict(h.target.Alias) || h.cfg.StrictByDefault
	expected := h.target.PromptContains

	if expected != "" && util.ContainsFold(prompt, expected) {
		return nil
	}
	if strict {
		if expected == "" {
			// Nothing to match against; strict mode cannot pass.
			return h.fail(true, fmt.Errorf("%w: strict verification with no expected prompt substring", util.ErrJumpIdentityUnverified))
		}
		return h.fail(true, fmt.Errorf("%w: prompt %q does not contain %q", util.ErrJumpIdentityUnverified, prompt, expected))
	}

	if h.probeIdentity(prompt, expected) {
		return nil
	}
	if h.target.AllowHostIdentity && h.target.HasHost(h.host) {
		return nil
	}

	log.Warnf("identity unverified for jump hop, accepting prompt %q in relaxed mode", prompt)
	return nil
}

// probeIdentity runs the identity commands and looks for the expected
// substring or any configured alternate in their output.
func (h *hop) probeIdentity(prompt, expected string) bool {
	cmds := h.target.IdentityVerifyCommands
	if len(cmds) == 0 {
		cmds = []string{"show running-config | include hostname"}
	}

	accepts := h.target.IdentityAcceptSubstrings
	if expected != "" {
		accepts = append([]string{expected}, accepts...)
	}
	if len(accepts) == 0 {
		return false
	}

	for _, cmd := range cmds {
		out, err := h.readUntilPrompt(cmd, prompt, h.cfg.CommandTimeout)
		if err != nil {
			continue
		}
		for _, want := range accepts {
			if util.ContainsFold(out, want) {
				return true
			}
		}
	}
	return false
}

// execute disables paging on the target and runs the command, bounded by
// the overall command deadline.
func (h *hop) execute(command, prompt string) (string, error) {
	h.phase = PhaseExecuting

	// Best effort; transcript noise from this is stripped later.
	h.readUntilPrompt(connect.PagingCommand(h.target.VendorKey()), prompt, h.cfg.CommandTimeout)

	if err := h.term.Send(command); err != nil {
		return "", err
	}
	transcript, err := h.collect(prompt, h.cfg.CommandTimeout)
	if err != nil {
		return "", fmt.Errorf("%w after %q: %v", util.ErrCommandExecutionFailed, command, err)
	}
	return sanitize(transcript, command, h.jumpPrompt, prompt, h.sent), nil
}

// readUntilPrompt sends a negotiation-side command and returns its framed
// output.
func (h *hop) readUntilPrompt(cmd, prompt string, timeout time.Duration) (string, error) {
	if err := h.send(cmd); err != nil {
		return "", err
	}
	return h.collect(prompt, timeout)
}

// collect reads in polling windows until the prompt line reappears.
func (h *hop) collect(prompt string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	var out strings.Builder
	for time.Now().Before(deadline) {
		chunk, err := h.term.ReadChunk(h.readWindow)
		if err != nil {
			return "", err
		}
		out.WriteString(chunk)
		h.buf.WriteString(chunk)
		if util.LastNonEmptyLine(out.String()) == prompt {
			return out.String(), nil
		}
	}
	return "", fmt.Errorf("prompt %q did not return within %s", prompt, timeout)
}

// hostKeyPrompt recognizes the first-connection host key confirmation.
func hostKeyPrompt(line string) bool {
	return util.ContainsFold(line, "yes/no") || util.ContainsFold(line, "fingerprint")
}

// shellCommand builds the outbound shell invocation issued on the jump
// device. Legacy hints keep old firmware reachable; the simplified form is
// the fallback when the jump host's own client rejects the options.
func shellCommand(username, host string, cfg *config.Config, legacyHints bool) string {
	if !legacyHints {
		return fmt.Sprintf("ssh %s@%s", username, host)
	}
	parts := []string{"ssh", "-o StrictHostKeyChecking=no"}
	if len(cfg.LegacyKexAlgos) > 0 {
		parts = append(parts, "-o KexAlgorithms=+"+strings.Join(cfg.LegacyKexAlgos, ","))
	}
	if len(cfg.LegacyCiphers) > 0 {
		parts = append(parts, "-o Ciphers=+"+strings.Join(cfg.LegacyCiphers, ","))
	}
	if len(cfg.LegacyHostKeyAlgos) > 0 {
		parts = append(parts, "-o HostKeyAlgorithms=+"+strings.Join(cfg.LegacyHostKeyAlgos, ","))
	}
	parts = append(parts, fmt.Sprintf("%s@%s", username, host))
	return strings.Join(parts, " ")
}

func hopCredentials(cfg *config.Config, rec *registry.DeviceRecord) (string, string) {
	username := rec.Username
	if username == "" {
		username = cfg.DefaultUsername
	}
	password := rec.Password
	if password == "" {
		password = cfg.DefaultPassword
	}
	return username, password
}
