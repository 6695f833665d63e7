package connect

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/switchyard-net/switchyard/pkg/config"
	"github.com/switchyard-net/switchyard/pkg/registry"
	"github.com/switchyard-net/switchyard/pkg/util"
)

// sshDialer opens interactive CLI sessions over SSH. With legacy=true it
// offers the reduced cipher, key exchange, MAC and host key algorithm sets
// that old network gear still requires.
type sshDialer struct {
	cfg    *config.Config
	legacy bool
}

// NewSSHDialer returns the standard SSH dialer.
func NewSSHDialer(cfg *config.Config) Dialer {
	return &sshDialer{cfg: cfg}
}

// NewLegacySSHDialer returns the dialer used on the retry pass for devices
// whose SSH stacks predate modern algorithm defaults.
func NewLegacySSHDialer(cfg *config.Config) Dialer {
	return &sshDialer{cfg: cfg, legacy: true}
}

func (d *sshDialer) Kind() TransportKind {
	if d.legacy {
		return TransportLegacySSH
	}
	return TransportSSH
}

func (d *sshDialer) Dial(ctx context.Context, host string, rec *registry.DeviceRecord) (Session, error) {
	username, password := credentials(d.cfg, rec)

	clientCfg := &ssh.ClientConfig{
		User: username,
		Auth: []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(passwordChallenge(password)),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         d.cfg.ConnectTimeout,
	}
	if d.legacy {
		clientCfg.Config = ssh.Config{
			Ciphers:      d.cfg.LegacyCiphers,
			KeyExchanges: d.cfg.LegacyKexAlgos,
			MACs:         d.cfg.LegacyMACs,
		}
		clientCfg.HostKeyAlgorithms = d.cfg.LegacyHostKeyAlgos
	}

	addr := hostPort(host, rec, d.cfg.DefaultPort)
	client, err := dialSSH(ctx, addr, clientCfg)
	if err != nil {
		return nil, classifyDialError(err)
	}

	term, err := newSSHShell(client)
	if err != nil {
		client.Close()
		return nil, err
	}

	session, err := newCLISession(term, d.Kind(), rec.Alias, host, rec.VendorKey(), d.cfg.BannerTimeout, d.cfg.CommandTimeout)
	if err != nil {
		return nil, err
	}
	session.DisablePaging()
	util.WithDevice(rec.Alias).WithField("transport", string(d.Kind())).Debugf("session established to %s", addr)
	return session, nil
}

// dialSSH honors context cancellation during the TCP connect and the SSH
// handshake.
func dialSSH(ctx context.Context, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	var nd net.Dialer
	conn, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else if cfg.Timeout > 0 {
		conn.SetDeadline(time.Now().Add(cfg.Timeout))
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetDeadline(time.Time{})
	return ssh.NewClient(c, chans, reqs), nil
}

// passwordChallenge answers keyboard-interactive prompts with the password.
// Some devices only enable that auth method.
func passwordChallenge(password string) ssh.KeyboardInteractiveChallenge {
	return func(name, instruction string, questions []string, echos []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range questions {
			answers[i] = password
		}
		return answers, nil
	}
}

// credentials merges record credentials over the configured defaults.
func credentials(cfg *config.Config, rec *registry.DeviceRecord) (string, string) {
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

// enableSecret merges the record secret over the configured default.
func enableSecret(cfg *config.Config, rec *registry.DeviceRecord) string {
	if rec.EnableSecret != "" {
		return rec.EnableSecret
	}
	return cfg.DefaultSecret
}

// classifyDialError maps transport failures onto the connection error
// sentinels so callers can branch on kind without string matching.
func classifyDialError(err error) error {
	if err == nil {
		return nil
	}
	var nerr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return fmt.Errorf("%w: %v", util.ErrConnectionTimeout, err)
	case errors.As(err, &nerr) && nerr.Timeout():
		return fmt.Errorf("%w: %v", util.ErrConnectionTimeout, err)
	case strings.Contains(err.Error(), "unable to authenticate"),
		strings.Contains(err.Error(), "permission denied"):
		return fmt.Errorf("%w: %v", util.ErrConnectionAuthFailed, err)
	case strings.Contains(err.Error(), "connection refused"):
		return fmt.Errorf("%w: %v", util.ErrConnectionRefused, err)
	}
	return err
}
