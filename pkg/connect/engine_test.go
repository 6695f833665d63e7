package connect

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/switchyard-net/switchyard/pkg/config"
	"github.com/switchyard-net/switchyard/pkg/registry"
	"github.com/switchyard-net/switchyard/pkg/util"
)

type fakeSession struct {
	output string
	runErr error
	errOn  map[string]error
	closed bool
	ran    []string
}

func (s *fakeSession) Run(command string) (string, error) {
	s.ran = append(s.ran, command)
	if err, ok := s.errOn[command]; ok {
		return "", err
	}
	if s.runErr != nil {
		return "", s.runErr
	}
	return s.output, nil
}

func (s *fakeSession) Enable(secret string) error { return nil }
func (s *fakeSession) Prompt() string             { return "FAKE#" }
func (s *fakeSession) Close() error               { s.closed = true; return nil }

// fakeDialer scripts per-host outcomes for one transport and records every
// dial in order.
type fakeDialer struct {
	kind     TransportKind
	sessions map[string]*fakeSession
	dialed   []string
}

func (d *fakeDialer) Kind() TransportKind { return d.kind }

func (d *fakeDialer) Dial(ctx context.Context, host string, rec *registry.DeviceRecord) (Session, error) {
	d.dialed = append(d.dialed, host)
	if s, ok := d.sessions[host]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%w: dial %s", util.ErrConnectionRefused, host)
}

type fakeJump struct {
	output string
	err    error
	calls  int
}

func (j *fakeJump) RunThrough(ctx context.Context, jump, target *registry.DeviceRecord, command string) (string, error) {
	j.calls++
	if j.err != nil {
		return "", j.err
	}
	return j.output, nil
}

func testConfig() *config.Config {
	return &config.Config{
		TransportPreference: config.PreferSSH,
		ConnectTimeout:      time.Second,
		AuthTimeout:         time.Second,
		BannerTimeout:       time.Second,
		CommandTimeout:      time.Second,
	}
}

func testEngine(cfg *config.Config, recs ...*registry.DeviceRecord) *Engine {
	devices := map[string]*registry.DeviceRecord{}
	for _, r := range recs {
		devices[r.Alias] = r
	}
	return NewEngine(cfg, registry.NewFromRecords(devices, nil))
}

func TestBuildCandidatesOrdering(t *testing.T) {
	rec := &registry.DeviceRecord{Alias: "SW1", Host: "10.0.0.1", AltHosts: []string{"10.0.0.2", "127.0.0.1", "localhost"}}

	tests := []struct {
		name       string
		preference string
		noTelnet   bool
		blocked    []string
		want       []Candidate
	}{
		{
			name:       "ssh preferred",
			preference: config.PreferSSH,
			want: []Candidate{
				{TransportSSH, "10.0.0.1"}, {TransportSSH, "10.0.0.2"},
				{TransportTelnet, "10.0.0.1"}, {TransportTelnet, "10.0.0.2"},
			},
		},
		{
			name:       "telnet preferred",
			preference: config.PreferTelnet,
			want: []Candidate{
				{TransportTelnet, "10.0.0.1"}, {TransportTelnet, "10.0.0.2"},
				{TransportSSH, "10.0.0.1"}, {TransportSSH, "10.0.0.2"},
			},
		},
		{
			name:       "ssh only",
			preference: config.SSHOnly,
			want:       []Candidate{{TransportSSH, "10.0.0.1"}, {TransportSSH, "10.0.0.2"}},
		},
		{
			name:       "telnet disabled",
			preference: config.PreferSSH,
			noTelnet:   true,
			want:       []Candidate{{TransportSSH, "10.0.0.1"}, {TransportSSH, "10.0.0.2"}},
		},
		{
			name:       "blocked host excluded",
			preference: config.SSHOnly,
			blocked:    []string{"10.0.0.1"},
			want:       []Candidate{{TransportSSH, "10.0.0.2"}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.TransportPreference = tc.preference
			cfg.TelnetDisabled = tc.noTelnet
			cfg.BlockedHosts = tc.blocked

			got := testEngine(cfg).BuildCandidates(rec)
			if len(got) != len(tc.want) {
				t.Fatalf("got %d candidates %v, want %d", len(got), got, len(tc.want))
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("candidate %d = %v, want %v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestExecuteDirectFallsThroughAltHosts(t *testing.T) {
	rec := &registry.DeviceRecord{
		Alias:    "SW1",
		Host:     "hostA",
		AltHosts: []string{"hostB", "hostC"},
		JumpVia:  "JUMP1",
		Strategy: registry.StrategyDirect,
	}
	cfg := testConfig()
	e := testEngine(cfg, rec)

	ssh := &fakeDialer{kind: TransportSSH, sessions: map[string]*fakeSession{
		"hostC": {output: "uptime is 5 weeks"},
	}}
	e.SetDialer(ssh)
	e.SetDialer(&fakeDialer{kind: TransportTelnet})
	jump := &fakeJump{output: "never"}
	e.SetJumpRunner(jump)

	out, err := e.Execute(context.Background(), rec, "show version")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "uptime is 5 weeks" {
		t.Errorf("output = %q", out)
	}
	if jump.calls != 0 {
		t.Errorf("jump attempted %d times under direct strategy", jump.calls)
	}
	want := []string{"hostA", "hostB", "hostC"}
	if len(ssh.dialed) != 3 {
		t.Fatalf("ssh dials = %v, want %v", ssh.dialed, want)
	}
	for i, h := range want {
		if ssh.dialed[i] != h {
			t.Errorf("dial %d = %s, want %s", i, ssh.dialed[i], h)
		}
	}
}

func TestExecuteJumpOnlyNeverDialsDirect(t *testing.T) {
	rec := &registry.DeviceRecord{
		Alias:    "SW1",
		Host:     "hostA",
		JumpVia:  "JUMP1",
		Strategy: registry.StrategyJumpOnly,
	}
	jumpRec := &registry.DeviceRecord{Alias: "JUMP1", Host: "jumphost"}
	e := testEngine(testConfig(), rec, jumpRec)

	ssh := &fakeDialer{kind: TransportSSH}
	tel := &fakeDialer{kind: TransportTelnet}
	e.SetDialer(ssh)
	e.SetDialer(tel)
	e.SetJumpRunner(&fakeJump{err: errors.New("jump broke")})

	_, err := e.Execute(context.Background(), rec, "show version")
	var cerr *util.ConnectError
	if !errors.As(err, &cerr) {
		t.Fatalf("want ConnectError, got %v", err)
	}
	if len(ssh.dialed) != 0 || len(tel.dialed) != 0 {
		t.Errorf("direct candidates dialed under jump_only: ssh=%v telnet=%v", ssh.dialed, tel.dialed)
	}
}

func TestExecuteJumpFirstFallsBackToDirect(t *testing.T) {
	rec := &registry.DeviceRecord{
		Alias:    "SW1",
		Host:     "hostA",
		JumpVia:  "JUMP1",
		Strategy: registry.StrategyJumpFirst,
	}
	jumpRec := &registry.DeviceRecord{Alias: "JUMP1", Host: "jumphost"}
	e := testEngine(testConfig(), rec, jumpRec)

	e.SetDialer(&fakeDialer{kind: TransportSSH, sessions: map[string]*fakeSession{
		"hostA": {output: "direct output"},
	}})
	e.SetDialer(&fakeDialer{kind: TransportTelnet})
	jump := &fakeJump{err: errors.New("jump broke")}
	e.SetJumpRunner(jump)

	out, err := e.Execute(context.Background(), rec, "show version")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "direct output" {
		t.Errorf("output = %q", out)
	}
	if jump.calls != 1 {
		t.Errorf("jump calls = %d, want 1", jump.calls)
	}
}

func TestExecuteJumpFirstUsesJumpOutput(t *testing.T) {
	rec := &registry.DeviceRecord{
		Alias:    "SW1",
		Host:     "hostA",
		JumpVia:  "JUMP1",
		Strategy: registry.StrategyJumpFirst,
	}
	jumpRec := &registry.DeviceRecord{Alias: "JUMP1", Host: "jumphost"}
	e := testEngine(testConfig(), rec, jumpRec)

	ssh := &fakeDialer{kind: TransportSSH}
	e.SetDialer(ssh)
	e.SetDialer(&fakeDialer{kind: TransportTelnet})
	e.SetJumpRunner(&fakeJump{output: "via jump"})

	out, err := e.Execute(context.Background(), rec, "show version")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "via jump" {
		t.Errorf("output = %q", out)
	}
	if len(ssh.dialed) != 0 {
		t.Errorf("direct dialed after successful jump: %v", ssh.dialed)
	}
}

func TestExecuteCommandFailureAbortsFold(t *testing.T) {
	rec := &registry.DeviceRecord{Alias: "SW1", Host: "hostA", AltHosts: []string{"hostB"}}
	e := testEngine(testConfig(), rec)

	ssh := &fakeDialer{kind: TransportSSH, sessions: map[string]*fakeSession{
		"hostA": {runErr: errors.New("prompt never returned")},
		"hostB": {output: "should not be reached"},
	}}
	e.SetDialer(ssh)
	e.SetDialer(&fakeDialer{kind: TransportTelnet})

	_, err := e.Execute(context.Background(), rec, "show version")
	var xerr *util.ExecError
	if !errors.As(err, &xerr) {
		t.Fatalf("want ExecError, got %v", err)
	}
	if !errors.Is(err, util.ErrCommandExecutionFailed) {
		t.Errorf("ExecError does not unwrap to ErrCommandExecutionFailed")
	}
	if len(ssh.dialed) != 1 {
		t.Errorf("fold continued past command failure: dials %v", ssh.dialed)
	}
}

func TestExecuteLegacySSHRetryAfterExhaustion(t *testing.T) {
	rec := &registry.DeviceRecord{Alias: "SW1", Host: "hostA"}
	cfg := testConfig()
	cfg.LegacySSHEnabled = true
	e := testEngine(cfg, rec)

	e.SetDialer(&fakeDialer{kind: TransportSSH})
	e.SetDialer(&fakeDialer{kind: TransportTelnet})
	legacy := &fakeDialer{kind: TransportLegacySSH, sessions: map[string]*fakeSession{
		"hostA": {output: "old iron speaks"},
	}}
	e.SetDialer(legacy)

	out, err := e.Execute(context.Background(), rec, "show version")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "old iron speaks" {
		t.Errorf("output = %q", out)
	}
	if len(legacy.dialed) != 1 {
		t.Errorf("legacy dials = %v", legacy.dialed)
	}
}

func TestExecuteExhaustionReportsAttemptsAndLastError(t *testing.T) {
	rec := &registry.DeviceRecord{Alias: "SW1", Host: "hostA", AltHosts: []string{"hostB"}}
	e := testEngine(testConfig(), rec)
	e.SetDialer(&fakeDialer{kind: TransportSSH})
	e.SetDialer(&fakeDialer{kind: TransportTelnet})

	_, err := e.Execute(context.Background(), rec, "show version")
	var cerr *util.ConnectError
	if !errors.As(err, &cerr) {
		t.Fatalf("want ConnectError, got %v", err)
	}
	if cerr.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", cerr.Attempts)
	}
	if !errors.Is(err, util.ErrConnectionRefused) {
		t.Errorf("last error not surfaced through Unwrap chain: %v", err)
	}
}

func TestExecuteBlockedAlias(t *testing.T) {
	rec := &registry.DeviceRecord{Alias: "SW1", Host: "hostA"}
	cfg := testConfig()
	cfg.BlockedAliases = []string{"SW1"}
	e := testEngine(cfg, rec)
	ssh := &fakeDialer{kind: TransportSSH, sessions: map[string]*fakeSession{"hostA": {output: "x"}}}
	e.SetDialer(ssh)

	if _, err := e.Execute(context.Background(), rec, "show version"); err == nil {
		t.Fatal("want error for blocked alias")
	}
	if len(ssh.dialed) != 0 {
		t.Errorf("blocked alias was dialed: %v", ssh.dialed)
	}
}

func TestExecuteUnreachableFallsBackToSimulated(t *testing.T) {
	rec := &registry.DeviceRecord{Alias: "SW1", Host: "hostA"}
	cfg := testConfig()
	cfg.SimulateFallback = true
	e := testEngine(cfg, rec)
	e.SetDialer(&fakeDialer{kind: TransportSSH})
	e.SetDialer(&fakeDialer{kind: TransportTelnet})

	out, err := e.Execute(context.Background(), rec, "show version")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "MOCK") {
		t.Errorf("fallback output = %q, want canned show version", out)
	}
	if !strings.Contains(out, "[connection note:") {
		t.Errorf("fallback output missing connection note: %q", out)
	}
	if !strings.Contains(out, "dial hostA") {
		t.Errorf("connection note does not carry the real failure: %q", out)
	}
}

func TestExecuteUnreachableDefaultStillErrors(t *testing.T) {
	rec := &registry.DeviceRecord{Alias: "SW1", Host: "hostA"}
	e := testEngine(testConfig(), rec)
	e.SetDialer(&fakeDialer{kind: TransportSSH})
	e.SetDialer(&fakeDialer{kind: TransportTelnet})

	_, err := e.Execute(context.Background(), rec, "show version")
	var cerr *util.ConnectError
	if !errors.As(err, &cerr) {
		t.Fatalf("want ConnectError with fallback disabled, got %v", err)
	}
}

func TestExecuteBatchSingleConnection(t *testing.T) {
	rec := &registry.DeviceRecord{Alias: "SW1", Host: "hostA"}
	e := testEngine(testConfig(), rec)

	session := &fakeSession{output: "line proto up"}
	ssh := &fakeDialer{kind: TransportSSH, sessions: map[string]*fakeSession{"hostA": session}}
	e.SetDialer(ssh)
	e.SetDialer(&fakeDialer{kind: TransportTelnet})

	outs, err := e.ExecuteBatch(context.Background(), rec, []string{"show processes cpu", "show cdp neighbors"})
	if err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	if len(ssh.dialed) != 1 {
		t.Errorf("dials = %v, want one connection for the whole batch", ssh.dialed)
	}
	if len(session.ran) != 2 {
		t.Fatalf("commands run = %v, want both on the same session", session.ran)
	}
	if outs[0] != "line proto up" || outs[1] != "line proto up" {
		t.Errorf("outputs = %v", outs)
	}
	if !session.closed {
		t.Error("session left open after batch")
	}
}

func TestExecuteBatchFirstCommandFailureAborts(t *testing.T) {
	rec := &registry.DeviceRecord{Alias: "SW1", Host: "hostA"}
	e := testEngine(testConfig(), rec)
	e.SetDialer(&fakeDialer{kind: TransportSSH, sessions: map[string]*fakeSession{
		"hostA": {errOn: map[string]error{"show processes cpu": errors.New("prompt never returned")}},
	}})
	e.SetDialer(&fakeDialer{kind: TransportTelnet})

	outs, err := e.ExecuteBatch(context.Background(), rec, []string{"show processes cpu", "show cdp neighbors"})
	var xerr *util.ExecError
	if !errors.As(err, &xerr) {
		t.Fatalf("want ExecError, got %v", err)
	}
	if outs != nil {
		t.Errorf("outputs = %v, want nil on abort", outs)
	}
}

func TestExecuteBatchLaterCommandFailureLeavesEmptySlot(t *testing.T) {
	rec := &registry.DeviceRecord{Alias: "SW1", Host: "hostA"}
	e := testEngine(testConfig(), rec)
	e.SetDialer(&fakeDialer{kind: TransportSSH, sessions: map[string]*fakeSession{
		"hostA": {output: "cpu is fine", errOn: map[string]error{"show cdp neighbors": errors.New("parser rejected")}},
	}})
	e.SetDialer(&fakeDialer{kind: TransportTelnet})

	outs, err := e.ExecuteBatch(context.Background(), rec, []string{"show processes cpu", "show cdp neighbors"})
	if err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	if outs[0] != "cpu is fine" {
		t.Errorf("outs[0] = %q", outs[0])
	}
	if outs[1] != "" {
		t.Errorf("outs[1] = %q, want empty for best-effort command", outs[1])
	}
}

func TestExecuteBatchUnreachableFallsBack(t *testing.T) {
	rec := &registry.DeviceRecord{Alias: "SW1", Host: "hostA"}
	cfg := testConfig()
	cfg.SimulateFallback = true
	e := testEngine(cfg, rec)
	e.SetDialer(&fakeDialer{kind: TransportSSH})
	e.SetDialer(&fakeDialer{kind: TransportTelnet})

	outs, err := e.ExecuteBatch(context.Background(), rec, []string{"show version", "show cdp neighbors"})
	if err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	for i, out := range outs {
		if !strings.Contains(out, "[connection note:") {
			t.Errorf("outs[%d] missing connection note: %q", i, out)
		}
	}
	if !strings.Contains(outs[0], "MOCK") {
		t.Errorf("outs[0] = %q, want canned show version", outs[0])
	}
}

func TestExecuteBatchJumpOnlyHopsPerCommand(t *testing.T) {
	rec := &registry.DeviceRecord{
		Alias:    "SW1",
		Host:     "hostA",
		JumpVia:  "JUMP1",
		Strategy: registry.StrategyJumpOnly,
	}
	jumpRec := &registry.DeviceRecord{Alias: "JUMP1", Host: "jumphost"}
	e := testEngine(testConfig(), rec, jumpRec)

	ssh := &fakeDialer{kind: TransportSSH}
	e.SetDialer(ssh)
	e.SetDialer(&fakeDialer{kind: TransportTelnet})
	jump := &fakeJump{output: "via jump"}
	e.SetJumpRunner(jump)

	outs, err := e.ExecuteBatch(context.Background(), rec, []string{"show processes cpu", "show cdp neighbors"})
	if err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	if jump.calls != 2 {
		t.Errorf("jump calls = %d, want 2", jump.calls)
	}
	if len(ssh.dialed) != 0 {
		t.Errorf("direct dialed under jump_only: %v", ssh.dialed)
	}
	if outs[0] != "via jump" || outs[1] != "via jump" {
		t.Errorf("outputs = %v", outs)
	}
}

func TestExecuteSimulated(t *testing.T) {
	rec := &registry.DeviceRecord{Alias: "SW1", Host: "hostA"}
	cfg := testConfig()
	cfg.SimulateNetwork = true
	e := testEngine(cfg, rec)

	out, err := e.Execute(context.Background(), rec, "show vlan")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "VLAN") {
		t.Errorf("simulated vlan output = %q", out)
	}

	out, _ = e.Execute(context.Background(), rec, "ping 8.8.8.8")
	if !strings.Contains(out, "(simulated)") {
		t.Errorf("generic simulated output = %q", out)
	}
}
