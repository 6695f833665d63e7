package connect

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/ziutek/telnet"

	"github.com/switchyard-net/switchyard/pkg/config"
	"github.com/switchyard-net/switchyard/pkg/registry"
	"github.com/switchyard-net/switchyard/pkg/util"
)

// telnetDialer opens CLI sessions over telnet for gear with no SSH at all.
type telnetDialer struct {
	cfg *config.Config
}

// NewTelnetDialer returns the telnet fallback dialer.
func NewTelnetDialer(cfg *config.Config) Dialer {
	return &telnetDialer{cfg: cfg}
}

func (d *telnetDialer) Kind() TransportKind {
	return TransportTelnet
}

func (d *telnetDialer) Dial(ctx context.Context, host string, rec *registry.DeviceRecord) (Session, error) {
	port := rec.Port
	if port == 0 || port == 22 {
		port = 23
	}
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	timeout := d.cfg.ConnectTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if until := time.Until(deadline); until < timeout {
			timeout = until
		}
	}
	conn, err := telnet.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, classifyDialError(err)
	}
	conn.SetUnixWriteMode(true)

	term := &telnetTerminal{conn: conn}
	username, password := credentials(d.cfg, rec)

	prompt, err := telnetLogin(term, username, password, d.cfg.AuthTimeout)
	if err != nil {
		term.Close()
		return nil, err
	}

	session := &CLISession{
		term:           term,
		kind:           TransportTelnet,
		alias:          rec.Alias,
		host:           host,
		vendorKey:      rec.VendorKey(),
		prompt:         prompt,
		readWindow:     500 * time.Millisecond,
		commandTimeout: d.cfg.CommandTimeout,
	}
	session.DisablePaging()
	util.WithDevice(rec.Alias).WithField("transport", "telnet").Debugf("session established to %s", addr)
	return session, nil
}

// telnetLogin drives the username and password exchange until a prompt
// settles. It returns the detected prompt so the session does not have to
// rediscover it.
func telnetLogin(term Terminal, username, password string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	var buf strings.Builder
	sentUser, sentPass := false, false

	for time.Now().Before(deadline) {
		chunk, err := term.ReadChunk(500 * time.Millisecond)
		if err != nil {
			return "", fmt.Errorf("reading login banner: %w", err)
		}
		buf.WriteString(chunk)
		text := buf.String()

		if util.ContainsFold(text, "authentication failed") || util.ContainsFold(text, "login invalid") {
			return "", fmt.Errorf("%w: telnet login rejected", util.ErrConnectionAuthFailed)
		}

		last := util.LastNonEmptyLine(text)
		switch {
		case !sentUser && (util.ContainsFold(last, "sername") || util.ContainsFold(last, "ogin:")):
			if err := term.Send(username); err != nil {
				return "", err
			}
			sentUser = true
		case !sentPass && util.ContainsFold(last, "assword"):
			if err := term.Send(password); err != nil {
				return "", err
			}
			sentPass = true
		default:
			if p := PromptLine(text); p != "" && sentPass {
				return p, nil
			}
			// Some devices skip straight to a prompt without auth.
			if p := PromptLine(text); p != "" && !sentUser {
				return p, nil
			}
		}
	}
	return "", fmt.Errorf("%w: no prompt after telnet login", util.ErrConnectionTimeout)
}

// telnetTerminal adapts a telnet connection to the Terminal interface using
// read deadlines as the polling window.
type telnetTerminal struct {
	conn *telnet.Conn
}

func (t *telnetTerminal) ReadChunk(window time.Duration) (string, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		return "", err
	}
	buf := make([]byte, 4096)
	n, err := t.conn.Read(buf)
	if err != nil {
		if isTimeout(err) {
			return string(buf[:n]), nil
		}
		return string(buf[:n]), err
	}
	return string(buf[:n]), nil
}

func (t *telnetTerminal) Send(line string) error {
	return t.SendRaw(line + "\n")
}

func (t *telnetTerminal) SendRaw(s string) error {
	_, err := t.conn.Write([]byte(s))
	return err
}

func (t *telnetTerminal) Close() error {
	return t.conn.Close()
}

func isTimeout(err error) bool {
	if os.IsTimeout(err) {
		return true
	}
	nerr, ok := err.(net.Error)
	return ok && nerr.Timeout()
}
