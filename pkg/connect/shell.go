package connect

import (
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/switchyard-net/switchyard/pkg/util"
)

// Terminal is a raw interactive byte stream with timed reads. Network CLIs
// are unstructured; every read is bounded by a window so callers can poll
// without blocking forever.
type Terminal interface {
	// ReadChunk returns whatever arrived within the window. An empty
	// string with nil error means nothing arrived; io.EOF means the
	// stream is gone.
	ReadChunk(window time.Duration) (string, error)
	// Send writes a line followed by a newline.
	Send(line string) error
	// SendRaw writes bytes as-is, for password entry and key confirmations.
	SendRaw(s string) error
	Close() error
}

// sshShell is a Terminal over an SSH shell channel with a PTY.
type sshShell struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	chunks  chan []byte
	closed  chan struct{}
}

func newSSHShell(client *ssh.Client) (*sshShell, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("opening session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("vt100", 0, 511, modes); err != nil {
		session.Close()
		return nil, fmt.Errorf("requesting pty: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		return nil, fmt.Errorf("starting shell: %w", err)
	}

	t := &sshShell{
		client:  client,
		session: session,
		stdin:   stdin,
		chunks:  make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
	go t.readLoop(stdout)
	return t, nil
}

func (t *sshShell) readLoop(stdout io.Reader) {
	defer close(t.chunks)
	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case t.chunks <- chunk:
			case <-t.closed:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

func (t *sshShell) ReadChunk(window time.Duration) (string, error) {
	var b strings.Builder

	select {
	case chunk, ok := <-t.chunks:
		if !ok {
			return "", io.EOF
		}
		b.Write(chunk)
	case <-time.After(window):
		return "", nil
	}

	// Drain whatever else is already buffered.
	for {
		select {
		case chunk, ok := <-t.chunks:
			if !ok {
				return b.String(), nil
			}
			b.Write(chunk)
		default:
			return b.String(), nil
		}
	}
}

func (t *sshShell) Send(line string) error {
	return t.SendRaw(line + "\n")
}

func (t *sshShell) SendRaw(s string) error {
	_, err := t.stdin.Write([]byte(s))
	return err
}

func (t *sshShell) Close() error {
	select {
	case <-t.closed:
		return nil
	default:
		close(t.closed)
	}
	t.session.Close()
	return t.client.Close()
}

// CLISession is a Session over any Terminal: it detects the device prompt
// once after login and frames every command by the prompt's return.
type CLISession struct {
	term      Terminal
	kind      TransportKind
	alias     string
	host      string
	vendorKey string
	prompt    string

	readWindow     time.Duration
	commandTimeout time.Duration
}

// newCLISession waits for the initial prompt and wraps the terminal.
func newCLISession(term Terminal, kind TransportKind, alias, host, vendorKey string, bannerTimeout, commandTimeout time.Duration) (*CLISession, error) {
	s := &CLISession{
		term:           term,
		kind:           kind,
		alias:          alias,
		host:           host,
		vendorKey:      vendorKey,
		readWindow:     500 * time.Millisecond,
		commandTimeout: commandTimeout,
	}

	prompt, err := awaitPrompt(term, bannerTimeout)
	if err != nil {
		term.Close()
		return nil, err
	}
	s.prompt = prompt
	return s, nil
}

// awaitPrompt reads the banner until a prompt-shaped line settles, nudging
// once with a blank line if the device stays quiet.
func awaitPrompt(term Terminal, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	var buf strings.Builder
	nudged := false

	for time.Now().Before(deadline) {
		chunk, err := term.ReadChunk(500 * time.Millisecond)
		if err != nil {
			return "", fmt.Errorf("reading banner: %w", err)
		}
		buf.WriteString(chunk)

		if p := PromptLine(buf.String()); p != "" {
			return p, nil
		}
		if chunk == "" && !nudged {
			if err := term.Send(""); err != nil {
				return "", err
			}
			nudged = true
		}
	}
	return "", fmt.Errorf("no prompt within %s", timeout)
}

// PromptLine returns the last non-empty line if it looks like a CLI prompt
// (ends in the privileged '#' or user '>' terminator), else "".
func PromptLine(buffer string) string {
	line := util.LastNonEmptyLine(buffer)
	if line == "" {
		return ""
	}
	if strings.HasSuffix(line, "#") || strings.HasSuffix(line, ">") {
		return line
	}
	return ""
}

// Prompt returns the device prompt detected at login (updated by Enable).
func (s *CLISession) Prompt() string {
	return s.prompt
}

// Terminal exposes the raw stream for interactive negotiation (jump hops).
func (s *CLISession) Terminal() Terminal {
	return s.term
}

// VendorKey returns the command-syntax family for the device.
func (s *CLISession) VendorKey() string {
	return s.vendorKey
}

// DisablePaging turns off output paging so long command output is not
// interrupted by --More-- prompts. Best effort.
func (s *CLISession) DisablePaging() {
	if _, err := s.Run(PagingCommand(s.vendorKey)); err != nil {
		util.WithDevice(s.alias).Debugf("disable paging: %v", err)
	}
}

// PagingCommand returns the vendor-specific command that disables paging.
func PagingCommand(vendorKey string) string {
	if vendorKey == "aruba" {
		return "no page"
	}
	return "terminal length 0"
}

// Run sends a command and reads until the prompt line returns or the
// command timeout elapses.
func (s *CLISession) Run(command string) (string, error) {
	if err := s.term.Send(command); err != nil {
		return "", fmt.Errorf("sending %q: %w", command, err)
	}

	deadline := time.Now().Add(s.commandTimeout)
	var out strings.Builder
	for time.Now().Before(deadline) {
		chunk, err := s.term.ReadChunk(s.readWindow)
		if err != nil {
			return "", fmt.Errorf("reading response to %q: %w", command, err)
		}
		out.WriteString(chunk)
		if promptReturned(out.String(), s.prompt) {
			return stripFraming(out.String(), command, s.prompt), nil
		}
	}
	return "", fmt.Errorf("prompt did not return after %q within %s", command, s.commandTimeout)
}

// Enable elevates privilege. The prompt is re-detected afterwards since it
// changes from the user to the privileged terminator.
func (s *CLISession) Enable(secret string) error {
	if strings.HasSuffix(s.prompt, "#") {
		return nil // already privileged
	}
	if err := s.term.Send("enable"); err != nil {
		return err
	}

	deadline := time.Now().Add(s.commandTimeout)
	var buf strings.Builder
	sentSecret := false
	for time.Now().Before(deadline) {
		chunk, err := s.term.ReadChunk(s.readWindow)
		if err != nil {
			return fmt.Errorf("reading enable response: %w", err)
		}
		buf.WriteString(chunk)
		text := buf.String()

		if util.ContainsFold(text, "denied") || util.ContainsFold(text, "bad secret") {
			return fmt.Errorf("enable rejected on %s", s.alias)
		}
		if !sentSecret && util.ContainsFold(util.LastNonEmptyLine(text), "assword") {
			if err := s.term.Send(secret); err != nil {
				return err
			}
			sentSecret = true
			continue
		}
		if line := PromptLine(text); strings.HasSuffix(line, "#") {
			s.prompt = line
			return nil
		}
	}
	return fmt.Errorf("enable timed out on %s", s.alias)
}

func (s *CLISession) Close() error {
	return s.term.Close()
}

// promptReturned reports whether the last settled line is the prompt again.
func promptReturned(buffer, prompt string) bool {
	if prompt == "" {
		return false
	}
	return util.LastNonEmptyLine(buffer) == prompt
}

// stripFraming removes the echoed command and prompt lines from a captured
// response.
func stripFraming(buffer, command, prompt string) string {
	var kept []string
	for _, line := range util.Lines(buffer) {
		trimmed := strings.TrimSpace(line)
		if trimmed == prompt || trimmed == prompt+command || trimmed == command {
			continue
		}
		if strings.HasPrefix(trimmed, prompt) && strings.TrimSpace(strings.TrimPrefix(trimmed, prompt)) == command {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Trim(strings.Join(kept, "\n"), "\r\n")
}
