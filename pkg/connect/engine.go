package connect

import (
	"context"
	"errors"
	"fmt"

	"github.com/switchyard-net/switchyard/pkg/config"
	"github.com/switchyard-net/switchyard/pkg/registry"
	"github.com/switchyard-net/switchyard/pkg/util"
)

// JumpRunner executes a command on a target device through an intermediate
// jump device. Implemented by pkg/jump; held as an interface here so the
// jump manager can itself connect to the jump device through this engine.
type JumpRunner interface {
	RunThrough(ctx context.Context, jump, target *registry.DeviceRecord, command string) (string, error)
}

// Engine is the connection strategy engine. It turns a device record into
// an ordered candidate list and folds over it until a session is live.
type Engine struct {
	cfg     *config.Config
	reg     *registry.Registry
	dialers map[TransportKind]Dialer
	jump    JumpRunner
}

// NewEngine builds the engine with the standard dialer set.
func NewEngine(cfg *config.Config, reg *registry.Registry) *Engine {
	e := &Engine{
		cfg: cfg,
		reg: reg,
		dialers: map[TransportKind]Dialer{
			TransportSSH:       NewSSHDialer(cfg),
			TransportTelnet:    NewTelnetDialer(cfg),
			TransportLegacySSH: NewLegacySSHDialer(cfg),
		},
	}
	return e
}

// SetJumpRunner wires the jump-session manager in after construction,
// breaking the mutual dependency between the two.
func (e *Engine) SetJumpRunner(r JumpRunner) {
	e.jump = r
}

// SetDialer replaces the dialer for one transport. Tests use this to
// substitute scripted dialers.
func (e *Engine) SetDialer(d Dialer) {
	e.dialers[d.Kind()] = d
}

// BuildCandidates produces the ordered (transport, host) list for a
// record: primary host then alternates, with loopback and blocked hosts
// excluded, each expanded across transports per the configured preference.
func (e *Engine) BuildCandidates(rec *registry.DeviceRecord) []Candidate {
	var hosts []string
	for _, h := range rec.Hosts() {
		if isLoopback(h) || e.cfg.HostBlocked(h) {
			continue
		}
		hosts = append(hosts, h)
	}

	var order []TransportKind
	switch e.cfg.TransportPreference {
	case config.SSHOnly:
		order = []TransportKind{TransportSSH}
	case config.PreferTelnet:
		order = []TransportKind{TransportTelnet, TransportSSH}
	default:
		order = []TransportKind{TransportSSH, TransportTelnet}
	}
	if e.cfg.TelnetDisabled {
		order = withoutTelnet(order)
	}

	var cands []Candidate
	for _, kind := range order {
		for _, h := range hosts {
			cands = append(cands, Candidate{Kind: kind, Host: h})
		}
	}
	return cands
}

func withoutTelnet(order []TransportKind) []TransportKind {
	var out []TransportKind
	for _, k := range order {
		if k != TransportTelnet {
			out = append(out, k)
		}
	}
	return out
}

// Execute runs one command on the device described by rec, applying the
// record's connection strategy. A command failure on a live session is
// surfaced immediately as an ExecError; only connection failures advance
// through the candidate list.
func (e *Engine) Execute(ctx context.Context, rec *registry.DeviceRecord, command string) (string, error) {
	if e.cfg.SimulateNetwork {
		return SimulatedOutput(rec.Alias, command), nil
	}
	if e.cfg.AliasBlocked(rec.Alias) {
		return "", &util.ConnectError{Alias: rec.Alias, Last: fmt.Errorf("device %s is blocked by configuration", rec.Alias)}
	}

	strategy := rec.EffectiveStrategy()
	log := util.WithDevice(rec.Alias).WithField("strategy", string(strategy))

	if strategy != registry.StrategyDirect && rec.JumpVia != "" {
		out, err := e.runViaJump(ctx, rec, command)
		if err == nil {
			return out, nil
		}
		if strategy == registry.StrategyJumpOnly {
			return "", &util.ConnectError{Alias: rec.Alias, Attempts: 1, Last: err}
		}
		log.Debugf("jump attempt failed, falling back to direct: %v", err)
	} else if strategy == registry.StrategyJumpOnly {
		return "", &util.ConnectError{Alias: rec.Alias, Last: fmt.Errorf("strategy jump_only but no jump device configured for %s", rec.Alias)}
	}

	cands := e.BuildCandidates(rec)
	attempts := make([]attempt, 0, len(cands)+1)

	for _, cand := range cands {
		out, attemptErr, execErr := e.tryCandidate(ctx, cand, rec, command)
		if execErr != nil {
			return "", execErr
		}
		if attemptErr == nil {
			return out, nil
		}
		attempts = append(attempts, attempt{cand: cand, err: attemptErr})
		log.WithField("host", cand.Host).WithField("transport", string(cand.Kind)).Debugf("candidate failed: %v", attemptErr)
	}

	// One more pass with the reduced algorithm set for very old firmware.
	if e.cfg.LegacySSHEnabled {
		for _, h := range hostsOf(cands) {
			cand := Candidate{Kind: TransportLegacySSH, Host: h}
			out, attemptErr, execErr := e.tryCandidate(ctx, cand, rec, command)
			if execErr != nil {
				return "", execErr
			}
			if attemptErr == nil {
				return out, nil
			}
			attempts = append(attempts, attempt{cand: cand, err: attemptErr})
		}
	}

	if e.cfg.DebugDiagnostics {
		for _, a := range attempts {
			log.Infof("attempt %s %s: %v", a.cand.Kind, a.cand.Host, a.err)
		}
	}
	if e.cfg.SimulateFallback {
		log.Warnf("device unreachable, returning simulated output: %v", lastErr(attempts))
		return fallbackOutput(rec.Alias, command, lastErr(attempts)), nil
	}
	return "", &util.ConnectError{Alias: rec.Alias, Attempts: len(attempts), Last: lastErr(attempts)}
}

// fallbackOutput is the simulated stand-in returned when a device cannot be
// reached and the fallback is enabled. The note carries the real failure so
// callers can tell the output is not live.
func fallbackOutput(alias, command string, cause error) string {
	out := SimulatedOutput(alias, command)
	if cause != nil {
		out += fmt.Sprintf("\n[connection note: %v]", cause)
	}
	return out
}

// ExecuteBatch runs several commands over one connection, in order. The
// health monitor uses this to gather CPU and neighbor output without paying
// the login negotiation once per command. A failure on the first command
// aborts with an ExecError; failures on later commands leave an empty slot
// so callers can treat them as best effort.
func (e *Engine) ExecuteBatch(ctx context.Context, rec *registry.DeviceRecord, commands []string) ([]string, error) {
	if len(commands) == 0 {
		return nil, nil
	}
	if e.cfg.SimulateNetwork {
		outs := make([]string, len(commands))
		for i, cmd := range commands {
			outs[i] = SimulatedOutput(rec.Alias, cmd)
		}
		return outs, nil
	}
	if e.cfg.AliasBlocked(rec.Alias) {
		return nil, &util.ConnectError{Alias: rec.Alias, Last: fmt.Errorf("device %s is blocked by configuration", rec.Alias)}
	}

	strategy := rec.EffectiveStrategy()
	if strategy != registry.StrategyDirect && rec.JumpVia != "" {
		outs, err := e.batchViaJump(ctx, rec, commands)
		if err == nil {
			return outs, nil
		}
		if strategy == registry.StrategyJumpOnly {
			return nil, &util.ConnectError{Alias: rec.Alias, Attempts: 1, Last: err}
		}
		util.WithDevice(rec.Alias).Debugf("jump attempt failed, falling back to direct: %v", err)
	} else if strategy == registry.StrategyJumpOnly {
		return nil, &util.ConnectError{Alias: rec.Alias, Last: fmt.Errorf("strategy jump_only but no jump device configured for %s", rec.Alias)}
	}

	session, err := e.Connect(ctx, rec)
	if err != nil {
		if e.cfg.SimulateFallback {
			cause := err
			var cerr *util.ConnectError
			if errors.As(err, &cerr) && cerr.Last != nil {
				cause = cerr.Last
			}
			util.WithDevice(rec.Alias).Warnf("device unreachable, returning simulated output: %v", cause)
			outs := make([]string, len(commands))
			for i, cmd := range commands {
				outs[i] = fallbackOutput(rec.Alias, cmd, cause)
			}
			return outs, nil
		}
		return nil, err
	}
	defer session.Close()

	outs := make([]string, len(commands))
	for i, cmd := range commands {
		out, runErr := session.Run(cmd)
		if runErr != nil {
			if i == 0 {
				return nil, &util.ExecError{Alias: rec.Alias, Command: cmd, Err: runErr}
			}
			util.WithDevice(rec.Alias).Debugf("batch command %q failed: %v", cmd, runErr)
			continue
		}
		outs[i] = out
	}
	return outs, nil
}

// batchViaJump hops once per command. The first command's failure aborts so
// the caller can fall back; later failures leave empty slots.
func (e *Engine) batchViaJump(ctx context.Context, rec *registry.DeviceRecord, commands []string) ([]string, error) {
	outs := make([]string, len(commands))
	for i, cmd := range commands {
		out, err := e.runViaJump(ctx, rec, cmd)
		if err != nil {
			if i == 0 {
				return nil, err
			}
			util.WithDevice(rec.Alias).Debugf("jump command %q failed: %v", cmd, err)
			continue
		}
		outs[i] = out
	}
	return outs, nil
}

// tryCandidate attempts one candidate end to end. The second return is the
// connection-level error (advance to next candidate); the third is a
// command-level error on a live session (abort the fold).
func (e *Engine) tryCandidate(ctx context.Context, cand Candidate, rec *registry.DeviceRecord, command string) (string, error, error) {
	session, err := e.dial(ctx, cand, rec)
	if err != nil {
		return "", err, nil
	}
	defer session.Close()

	out, err := session.Run(command)
	if err != nil {
		return "", nil, &util.ExecError{Alias: rec.Alias, Command: command, Err: err}
	}
	return out, nil, nil
}

// dial opens a session on one candidate, including the optional
// reachability precheck and best-effort privilege elevation.
func (e *Engine) dial(ctx context.Context, cand Candidate, rec *registry.DeviceRecord) (Session, error) {
	dialer, ok := e.dialers[cand.Kind]
	if !ok {
		return nil, fmt.Errorf("no dialer for transport %s", cand.Kind)
	}

	if e.cfg.PingPrecheck {
		port := rec.Port
		if port == 0 {
			if cand.Kind == TransportTelnet {
				port = 23
			} else {
				port = 22
			}
		}
		if err := Precheck(ctx, cand.Host, port, e.cfg.PrecheckTimeout); err != nil {
			return nil, err
		}
	}

	session, err := dialer.Dial(ctx, cand.Host, rec)
	if err != nil {
		return nil, err
	}

	if secret := enableSecret(e.cfg, rec); secret != "" {
		if err := session.Enable(secret); err != nil {
			util.WithDevice(rec.Alias).Warnf("privilege elevation failed: %v", err)
		}
	}
	return session, nil
}

// Connect opens a session without running a command. The jump manager uses
// this to reach the jump device itself, direct transports only.
func (e *Engine) Connect(ctx context.Context, rec *registry.DeviceRecord) (Session, error) {
	cands := e.BuildCandidates(rec)
	attempts := make([]attempt, 0, len(cands))
	for _, cand := range cands {
		session, err := e.dial(ctx, cand, rec)
		if err == nil {
			return session, nil
		}
		attempts = append(attempts, attempt{cand: cand, err: err})
	}
	if e.cfg.LegacySSHEnabled {
		for _, h := range hostsOf(cands) {
			cand := Candidate{Kind: TransportLegacySSH, Host: h}
			session, err := e.dial(ctx, cand, rec)
			if err == nil {
				return session, nil
			}
			attempts = append(attempts, attempt{cand: cand, err: err})
		}
	}
	return nil, &util.ConnectError{Alias: rec.Alias, Attempts: len(attempts), Last: lastErr(attempts)}
}

// runViaJump resolves the jump device's own record and delegates.
func (e *Engine) runViaJump(ctx context.Context, target *registry.DeviceRecord, command string) (string, error) {
	if e.jump == nil {
		return "", fmt.Errorf("jump requested for %s but no jump runner is configured", target.Alias)
	}
	jumpRec, ok := e.reg.Get(target.JumpVia)
	if !ok {
		return "", fmt.Errorf("jump device %q for %s not in registry", target.JumpVia, target.Alias)
	}
	return e.jump.RunThrough(ctx, jumpRec, target, command)
}

func hostsOf(cands []Candidate) []string {
	seen := map[string]bool{}
	var hosts []string
	for _, c := range cands {
		if !seen[c.Host] {
			seen[c.Host] = true
			hosts = append(hosts, c.Host)
		}
	}
	return hosts
}

func lastErr(attempts []attempt) error {
	if len(attempts) == 0 {
		return nil
	}
	return attempts[len(attempts)-1].err
}
