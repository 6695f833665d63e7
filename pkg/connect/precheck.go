package connect

import (
	"context"
	"fmt"
	"net"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/switchyard-net/switchyard/pkg/util"
)

// Precheck verifies basic reachability before any transport is tried. It
// pings first and falls back to a TCP probe of the candidate port, since
// many management networks filter ICMP.
func Precheck(ctx context.Context, host string, port int, timeout time.Duration) error {
	if pingHost(ctx, host, timeout) {
		return nil
	}

	d := net.Dialer{Timeout: timeout}
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %s unreachable: %v", util.ErrConnectionTimeout, host, err)
	}
	conn.Close()
	return nil
}

func pingHost(ctx context.Context, host string, timeout time.Duration) bool {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return false
	}
	pinger.Count = 1
	pinger.Timeout = timeout
	pinger.SetPrivileged(false)
	if err := pinger.RunWithContext(ctx); err != nil {
		return false
	}
	return pinger.Statistics().PacketsRecv > 0
}
